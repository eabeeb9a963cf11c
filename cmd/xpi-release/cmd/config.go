package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oshokin/xpi-release/internal/config"
)

// errConfigExists is returned when config init would overwrite a file.
var errConfigExists = errors.New("configuration file already exists")

// forceInit overwrites an existing configuration file.
var forceInit bool

// configCmd groups configuration helpers.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

// configInitCmd writes the built-in defaults to the configuration file.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := configPath
		if path == "" {
			path = config.DefaultConfigFilename
		}

		if _, err := os.Stat(path); err == nil && !forceInit {
			return fmt.Errorf("%s: %w (use --force to overwrite)", path, errConfigExists)
		}

		if err := config.Save(path, config.Default()); err != nil {
			return err
		}

		_, err := fmt.Fprintln(cmd.OutOrStdout(), path)

		return err
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	configInitCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
