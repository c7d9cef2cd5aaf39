package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/simstream/internal/simctl"
)

// PrintSimulators writes sims as a table, or as JSON when asJSON is set.
func PrintSimulators(w io.Writer, sims []simctl.Simulator, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sims)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UDID\tNAME\tSTATE\tRUNTIME")
	for _, s := range sims {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.UDID, s.Name, s.State, s.Runtime)
	}
	return tw.Flush()
}

// CreateSimulatorsCmd creates the simulators command.
func CreateSimulatorsCmd() *cobra.Command {
	var configFile string
	var asJSON bool
	var launchApp string
	var bundleID string

	cmd := &cobra.Command{
		Use:   "simulators [udid]",
		Short: "List simulators, or launch an app on one",
		Long: `Without arguments lists available simulators, booted first. ` +
			`With a UDID and --app, boots the simulator, installs the app bundle and launches it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			opts, err := loadOptions(configFile, false)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			}
			client := simctl.New(opts.XcrunPath)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			if len(args) == 1 {
				if err := simctl.ValidateUDID(args[0]); err != nil {
					return err
				}
				if launchApp == "" {
					return fmt.Errorf("--app is required to launch on %s", args[0])
				}
				id, err := client.InstallAndLaunch(ctx, args[0], launchApp, bundleID)
				if err != nil {
					return err
				}
				fmt.Printf("Launched %s on %s\n", id, args[0])
				return nil
			}

			sims, err := client.List(ctx)
			if err != nil {
				return err
			}
			return PrintSimulators(os.Stdout, sims, asJSON)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "simstream.toml", "Path to configuration file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	cmd.Flags().StringVar(&launchApp, "app", "", "App bundle to install and launch")
	cmd.Flags().StringVar(&bundleID, "bundle-id", "", "Bundle identifier (read from the app when omitted)")
	return cmd
}
