package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mohallaa/mohallaa/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or inspect the configuration",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a default " + config.ConfigFileName,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if config.Exists(dir) && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", filepath.Join(dir, config.ConfigFileName))
			}
			path := filepath.Join(dir, config.ConfigFileName)
			if err := config.New().SaveTo(path); err != nil {
				return err
			}
			success("Wrote %s", path)
			warn("Set auth.secret (or MOHALLAA_AUTH_SECRET) before running serve")
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			shown := *cfg
			if shown.Auth.Secret != "" {
				shown.Auth.Secret = "********"
			}
			if shown.Upload.S3.SecretAccessKey != "" {
				shown.Upload.S3.SecretAccessKey = "********"
			}
			out, err := yaml.Marshal(&shown)
			if err != nil {
				return err
			}
			if p := cfg.Path(); p != "" {
				info("# %s", p)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
