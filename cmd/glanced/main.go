// Command glanced runs the assistant without the desktop shell. Overlays
// connect to its bridge; hotkeys work as in the app.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"

	debug      bool
	configPath string
	addr       string
)

var rootCmd = &cobra.Command{
	Use:           "glanced",
	Short:         "Voice and vision assistant daemon",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(*cobra.Command, []string) {
		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: user config dir)")
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "", "bridge address (default from config)")
	rootCmd.AddCommand(stateCmd, sendCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
