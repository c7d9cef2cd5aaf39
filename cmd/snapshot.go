package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/simstream/internal/capture"
	"github.com/smazurov/simstream/internal/logging"
	"github.com/smazurov/simstream/internal/simctl"
)

// CreateSnapshotCmd creates the snapshot command.
func CreateSnapshotCmd() *cobra.Command {
	var configFile string
	var output string
	var order string
	var quality float64
	var timeout time.Duration
	var verbose bool

	cmd := &cobra.Command{
		Use:   "snapshot [udid]",
		Short: "Capture one frame from a simulator",
		Long: `Runs the capture fallback chain for the simulator until one backend delivers a frame, ` +
			`writes it as JPEG and stops the capture tool.`,
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			udid := args[0]
			if err := simctl.ValidateUDID(udid); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(2)
			}

			opts, err := loadOptions(configFile, verbose)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			}
			if order != "" {
				opts.CaptureOrder = order
			}
			logger := logging.GetLogger("capture").With("udid", udid)

			cfg, err := opts.CaptureConfig()
			if err != nil {
				logger.Error("Invalid capture configuration", "error", err)
				os.Exit(1)
			}
			backends, err := capture.NewBackends(cfg, capture.Dependencies{Shooter: simctl.New(opts.XcrunPath)})
			if err != nil {
				logger.Error("Failed to build capture backends", "error", err)
				os.Exit(1)
			}

			params := opts.StreamDefaults()
			if quality > 0 {
				params = capture.ClampParams(params.FPS, quality)
			}
			if output == "" {
				output = fmt.Sprintf("%s-%s.jpg", udid, time.Now().Format("20060102-150405"))
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			req := capture.Request{Identity: udid, Params: params}
			if err := capture.CaptureToFile(ctx, req, backends, timeout, output); err != nil {
				logger.Error("Snapshot failed", "error", err)
				os.Exit(1)
			}
			logger.Info("Snapshot written", "path", output)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "simstream.toml", "Path to configuration file")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default <udid>-<time>.jpg)")
	cmd.Flags().StringVar(&order, "order", "", "Override the capture backend order")
	cmd.Flags().Float64VarP(&quality, "quality", "q", 0, "JPEG quality (0.1-1.0)")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 30*time.Second, "Give up after this long")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	return cmd
}
