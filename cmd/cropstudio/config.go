package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menta2k/crop-studio/internal/config"
	"github.com/menta2k/crop-studio/internal/utils"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Long: `Write the default configuration as JSON. Without a path it goes to
the per-user location, e.g. ~/.config/crop-studio/config.json.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.GetConfigPath()
			if len(args) == 1 {
				path = args[0]
			}

			force, _ := cmd.Flags().GetBool("force")
			if !force && utils.FileExists(path) {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			if err := config.Default().SaveToFile(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	initCmd.Flags().Bool("force", false, "overwrite an existing file")

	configCmd.AddCommand(initCmd)
	return configCmd
}
