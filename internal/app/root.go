package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/simsnap/internal/config"
)

var (
	configPath string
	deviceRoot string
	dbPath     string
	verbose    bool

	// RootCmd is the root command for simsnap
	RootCmd = &cobra.Command{
		Use:   "simsnap",
		Short: "Snapshot and restore iOS simulator app documents",
		Long: `simsnap discovers the simulators under the CoreSimulator device root and
the applications installed on them, and keeps point-in-time copies of each
application's Documents directory.

Snapshots live next to the Documents directory inside the application's
data container, so they survive simsnap itself and disappear with the app.

Quick Start:
  1. simsnap devices
  2. simsnap apps "iPhone 15"
  3. simsnap take "iPhone 15" com.example.app
  4. simsnap restore "iPhone 15" com.example.app latest

Features:
  • Copy-then-validate snapshots with rollback on mismatch
  • Restore with one automatic retry
  • Stale path recovery after an app is reinstalled
  • Pinned devices, custom snapshot names, push notifications

Examples:
  # List simulators, pinned first
  simsnap devices

  # Show snapshots of an app, newest first
  simsnap snapshots "iPhone 15" com.example.app

  # Watch the device root for installs and removals
  simsnap watch`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "simsnap: snapshots for iOS simulator app documents")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Run 'simsnap devices' to list simulators.")
			fmt.Fprintln(out, "Run 'simsnap --help' for the full reference.")
			return nil
		},
	}
)

func init() {
	// Global flags
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ~/.config/simsnap/config.yaml)")
	RootCmd.PersistentFlags().StringVar(&deviceRoot, "root", "", "simulator device root (default: ~/Library/Developer/CoreSimulator/Devices)")
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default: ~/.simsnap/simsnap.db)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")

	// Enable cobra's built-in suggestion feature for unknown subcommands
	RootCmd.SuggestionsMinimumDistance = 2
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

// loadConfig reads the config file, applies environment overrides and then
// the global flags.
func loadConfig() (*config.Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}

	path := configPath
	if path == "" {
		dir, err := config.Dir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
		path = filepath.Join(dir, config.FileName)
	}

	cfg, err := config.Load(path, home)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)

	if deviceRoot != "" {
		cfg.DeviceRoot = deviceRoot
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if verbose {
		cfg.Log.Verbose = true
	}
	return cfg, nil
}
