package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"moodboard/internal/config"
)

func newConfigCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Get or set configuration",
	}

	cmd.AddCommand(newConfigGetCmd(cfg))
	cmd.AddCommand(newConfigSetCmd())
	return cmd
}

func newConfigGetCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the effective value of a config key",
		Args:  argNames("config key"),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := checkConfigKey(args[0])
			if err != nil {
				return err
			}
			value, err := cfg.Get(key)
			if err != nil {
				return err
			}
			return writePlain("%s\n", value)
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write a config key to the project or global config file",
		Args:  argNames("config key", "value"),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := checkConfigKey(args[0])
			if err != nil {
				return err
			}

			path, err := config.ProjectPath()
			if global {
				path, err = config.GlobalPath()
			}
			if err != nil {
				return err
			}

			if err := config.SetKey(path, key, args[1]); err != nil {
				return err
			}
			return writePlain("%s set in %s (env override: %s)\n", key, path, config.EnvKey(key))
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "write to global config (~/"+config.ConfigFileName+")")
	return cmd
}

func checkConfigKey(raw string) (string, error) {
	key := strings.TrimSpace(raw)
	if !config.IsAllowedKey(key) {
		return "", fmt.Errorf("unknown key: %s (allowed: %s)", key, strings.Join(config.AllowedKeys(), ", "))
	}
	return key, nil
}
