// Package cli is the formfiller command line: the API server plus local
// record, replay and profile commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"formfiller/internal/config"
	"formfiller/pkg/logger"
)

var (
	verbose bool
	cfgFile string
	version = "dev"
	commit  = "unknown"

	cfg  *config.Config
	zlog = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "formfiller",
	Short: "Record form fills in a browser and replay them",
	Long: `formfiller records what you type and click into web forms and replays it
later, optionally feeding a spreadsheet row into the fields you mark as custom.

Quick Start:
  formfiller record https://example.com/signup   # record into a new profile
  formfiller profiles list                       # list saved profiles
  formfiller replay <profile-id> --data "$ROW"   # fill the form again
  formfiller serve                               # run the HTTP API`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zlog.Sync()
	},
}

func setup() error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if verbose {
		c.Log.Level = "debug"
	}
	l, err := logger.New(c.Log.Level, c.Log.Format)
	if err != nil {
		return err
	}
	cfg, zlog = c, l
	return nil
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", os.Getenv("CONFIG_FILE"), "YAML config file (env CONFIG_FILE)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
