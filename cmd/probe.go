package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/simstream/internal/capture"
	"github.com/smazurov/simstream/internal/simctl"
)

// ToolStatus is one line of the probe report.
type ToolStatus struct {
	Backend string
	Tool    string
	Path    string
	Err     error
}

// Probe reports which capture tools can be found for cfg.
func Probe(ctx context.Context, cfg capture.Config, lookPath func(string) (string, error)) []ToolStatus {
	var out []ToolStatus

	surface, err := capture.SurfaceLocator(cfg.Surface.Path).Find(capture.SurfaceTool)
	out = append(out, ToolStatus{Backend: capture.BackendSurface, Tool: capture.SurfaceTool, Path: surface, Err: err})

	tool, err := capture.StreamToolLocator(cfg.StreamTool.Path).Find(capture.StreamTool)
	out = append(out, ToolStatus{Backend: capture.BackendStreamTool, Tool: capture.StreamTool, Path: tool, Err: err})

	for _, name := range []string{"osascript", "screencapture"} {
		p, err := lookPath(name)
		out = append(out, ToolStatus{Backend: capture.BackendWindow, Tool: name, Path: p, Err: err})
	}

	xcrun := cfg.XcrunPath
	if xcrun == "" {
		xcrun = "xcrun"
	}
	p, err := lookPath(xcrun)
	if err == nil {
		_, err = simctl.New(p).List(ctx)
	}
	out = append(out, ToolStatus{Backend: capture.BackendScreenshot, Tool: "xcrun simctl", Path: p, Err: err})

	return out
}

// PrintProbe writes the report as a table.
func PrintProbe(w io.Writer, order []string, statuses []ToolStatus) {
	fmt.Fprintf(w, "Capture order: %v\n\n", order)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BACKEND\tTOOL\tSTATUS\tPATH")
	for _, s := range statuses {
		status := "ok"
		if s.Err != nil {
			status = s.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Backend, s.Tool, status, s.Path)
	}
	tw.Flush()
}

// CreateProbeCmd creates the probe command.
func CreateProbeCmd() *cobra.Command {
	var configFile string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check which capture tools are available",
		Long:  `Locates every capture tool in the configured backend order and reports whether each backend can run on this machine.`,
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			opts, err := loadOptions(configFile, verbose)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			}
			cfg, err := opts.CaptureConfig()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid capture configuration: %v\n", err)
				os.Exit(1)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			PrintProbe(os.Stdout, cfg.Order, Probe(ctx, cfg, exec.LookPath))
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "simstream.toml", "Path to configuration file")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	return cmd
}
