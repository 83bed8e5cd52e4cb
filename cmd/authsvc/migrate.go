// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authsvc/internal/config"
	"github.com/holomush/authsvc/internal/store"
)

// migrator is the part of store.Migrator the migrate commands use.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (store.Status, error)
	Close() error
}

// newMigrator is replaced in tests.
var newMigrator = func(databaseURL string) (migrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Apply, roll back, or inspect the embedded PostgreSQL schema migrations.
The database is store.database_url, or DATABASE_URL when that is empty.`,
	}

	cmd.AddCommand(newMigrateUpCmd())
	cmd.AddCommand(newMigrateDownCmd())
	cmd.AddCommand(newMigrateStatusCmd())
	cmd.AddCommand(newMigrateForceCmd())

	return cmd
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up [N]",
		Short: "Apply pending migrations (all, or the next N)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 0
			if len(args) == 1 {
				n, err := parseSteps(args[0])
				if err != nil {
					return err
				}
				steps = n
			}
			return withMigrator(cmd, func(m migrator) error {
				cmd.Println("Running migrations...")
				var err error
				if steps == 0 {
					err = m.Up()
				} else {
					err = m.Steps(steps)
				}
				if err != nil {
					return err
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	}
}

func newMigrateDownCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "down [N]",
		Short: "Roll back the last N migrations (default 1)",
		Long: `Roll back the last N migrations, one by default. With --all every
migration is rolled back, which drops the users table and all of its data.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				if all {
					return oops.Code("INVALID_ARGUMENTS").Errorf("--all cannot be combined with a step count")
				}
				n, err := parseSteps(args[0])
				if err != nil {
					return err
				}
				steps = n
			}
			return withMigrator(cmd, func(m migrator) error {
				var err error
				if all {
					cmd.Println("Rolling back all migrations...")
					err = m.Down()
				} else {
					cmd.Printf("Rolling back %d migration(s)...\n", steps)
					err = m.Steps(-steps)
				}
				if err != nil {
					return err
				}
				cmd.Println("Rollback completed successfully")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "roll back every migration")
	return cmd
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the applied schema version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m migrator) error {
				st, err := m.Status()
				if err != nil {
					return err
				}
				cmd.Print(formatStatus(st))
				return nil
			})
		},
	}
}

func newMigrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it",
		Long: `Mark VERSION as applied and clear the dirty flag without running any
migration. Only use this after fixing a failed migration by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, func(m migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Forced schema version to %d\n", version)
				return nil
			})
		},
	}
}

// withMigrator opens a migrator for the configured database, runs fn, and
// closes it.
func withMigrator(cmd *cobra.Command, fn func(migrator) error) (err error) {
	databaseURL, err := getDatabaseURL(cmd)
	if err != nil {
		return err
	}
	m, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(m)
}

// getDatabaseURL loads the configuration without validating the store
// driver, since migrations always target PostgreSQL.
func getDatabaseURL(cmd *cobra.Command) (string, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return "", err
	}
	cfg, err := config.Load(cmd.Flags(), configPath())
	if err != nil {
		return "", err
	}
	if cfg.Store.DatabaseURL == "" {
		return "", oops.Code("CONFIG_INVALID").
			Errorf("store.database_url or the %s environment variable is required", config.DatabaseURLEnv)
	}
	return cfg.Store.DatabaseURL, nil
}

// parseForceVersion reads a leading integer. Trailing characters are
// ignored; the migrator rejects out-of-range versions.
func parseForceVersion(s string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(s, "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Wrapf(err, "invalid version %q", s)
	}
	return version, nil
}

// parseSteps reads a positive step count.
func parseSteps(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, oops.Code("INVALID_STEPS").With("input", s).Errorf("step count must be a positive integer, got %q", s)
	}
	return n, nil
}

func formatStatus(st store.Status) string {
	var b strings.Builder
	name := st.Name
	if name == "" {
		name = "none"
	}
	fmt.Fprintf(&b, "Version: %d (%s)\n", st.Version, name)
	fmt.Fprintf(&b, "Dirty:   %t\n", st.Dirty)
	fmt.Fprintf(&b, "Applied: %s\n", joinVersions(st.Applied))
	fmt.Fprintf(&b, "Pending: %s\n", joinVersions(st.Pending))
	if st.Dirty {
		b.WriteString("The last migration failed. Fix the schema by hand, then run `authsvc migrate force VERSION`.\n")
	}
	return b.String()
}

func joinVersions(vs []uint) string {
	if len(vs) == 0 {
		return "none"
	}
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatUint(uint64(v), 10)
	}
	return strings.Join(parts, ", ")
}
