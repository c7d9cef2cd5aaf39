package cmd

import (
	"github.com/smazurov/simstream/internal/config"
	"github.com/smazurov/simstream/internal/logging"
)

// loadOptions builds options for a subcommand: defaults, then the config
// file, then SIMSTREAM_* env. Root flags do not reach subcommands.
func loadOptions(configFile string, verbose bool) (*config.Options, error) {
	opts := &config.Options{}
	config.ApplyDefaults(opts)
	if configFile != "" {
		opts.Config = configFile
	}
	err := config.LoadConfig(opts, nil)

	loggingConfig := opts.LoggingConfig()
	if verbose {
		loggingConfig.Level = "debug"
		loggingConfig.Modules = nil
	}
	logging.Initialize(loggingConfig)
	return opts, err
}
