package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/shellyscan/internal/config"
	"github.com/muurk/shellyscan/internal/ui"
)

var forceInit bool

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing file without asking")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage stored preferences",
	Long: `Manage the preferences file that supplies defaults for scan and status.

Flags given on the command line always override stored preferences.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadPrefs()
		if err != nil {
			return err
		}
		data, err := reg.Marshal()
		if err != nil {
			return fmt.Errorf("failed to marshal preferences: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the preferences file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := prefsPath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a preferences file with default values",
	Example: `  # Create the per-user preferences file
  shellyscan config init

  # Write defaults to a specific file, replacing it
  shellyscan --config ./shellyscan.yaml config init --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := prefsPath()
		if err != nil {
			return err
		}

		_, statErr := os.Stat(path)
		exists := statErr == nil
		if statErr != nil && !errors.Is(statErr, os.ErrNotExist) {
			return fmt.Errorf("cannot access %s: %w", path, statErr)
		}

		if exists && !forceInit {
			ok := ui.Confirm(cmd.InOrStdin(), os.Stderr, "Replace preferences",
				[]string{
					path + " already exists",
					"Every stored preference will be reset to its default",
				}, "yes")
			if !ok {
				return nil
			}
		}

		if err := config.NewRegistry().SaveTo(path); err != nil {
			return err
		}
		ui.NewPrinter(os.Stderr).PrintSuccess("Preferences written", map[string]string{"File": path})
		return nil
	},
}

func prefsPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.GetConfigPath()
}
