// Package main is the entry point for the t031a5 runtime CLI.
// It runs the G1 decision loop, queries a running dashboard, and manages
// configuration.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/normanking/t031a5/internal/config"
	"github.com/normanking/t031a5/pkg/theme"
)

var (
	version   = "0.1.0"
	cfgPath   string
	verbose   bool
	themeName string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cortex",
		Short: "t031a5 - multimodal decision loop for the Unitree G1",
		Long: `cortex runs the t031a5 decision loop: it collects sensor inputs,
fuses them, generates a reply and dispatches speech, LED, gesture and
audio actions as one synchronized batch.

Run the loop:            cortex run
Query a running loop:    cortex status
Configuration:           cortex config show`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.t031a5/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&themeName, "theme", theme.DefaultID, "colour theme ("+strings.Join(theme.IDs(), ", ")+")")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("t031a5 cortex v%s\n", version)
		},
	})

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(movementsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromPath(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func getConfigPath() string {
	if cfgPath != "" {
		return cfgPath
	}
	return config.DefaultPath()
}

func styles() theme.Styles {
	return theme.NewStyles(theme.Get(themeName))
}
