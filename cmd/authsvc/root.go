// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/authsvc/internal/config"
	"github.com/holomush/authsvc/internal/xdg"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the authsvc CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authsvc",
		Short: "authsvc - session credential service",
		Long: `authsvc registers users, verifies passwords, issues and revokes
session tokens, and handles password reset tokens over HTTP.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML; default: "+xdg.ConfigFile()+" if present)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "dotenv file loaded before reading the environment (ignored if absent)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig reads the env file, then the config file and flags of cmd,
// and validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cmd.Flags(), configPath())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configPath returns --config, or the XDG config file when the flag is
// unset and that file exists.
func configPath() string {
	if configFile != "" {
		return configFile
	}
	if path, ok := xdg.FindConfigFile(); ok {
		return path
	}
	return ""
}
