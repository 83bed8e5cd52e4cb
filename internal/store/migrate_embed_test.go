// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsFS_EmbeddedFiles(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err, "should read embedded migrations directory")

	names := make(map[string]bool, len(entries))
	for _, entry := range entries {
		names[entry.Name()] = true
	}
	assert.True(t, names["000001_create_users.up.sql"])
	assert.True(t, names["000001_create_users.down.sql"])

	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	for name := range names {
		assert.True(t, pattern.MatchString(name), "file %s should match NNNNNN_name.(up|down).sql", name)

		// Every up migration has a matching down migration.
		if base, ok := strings.CutSuffix(name, ".up.sql"); ok {
			assert.True(t, names[base+".down.sql"], "missing down migration for %s", name)
		}
	}
}

func TestMigrationsFS_UsersConstraints(t *testing.T) {
	raw, err := migrationsFS.ReadFile("migrations/000001_create_users.up.sql")
	require.NoError(t, err)
	sql := string(raw)

	// The postgres store maps these names to domain errors.
	for _, constraint := range []string{"users_email_key", "users_session_token_key", "users_reset_token_key"} {
		assert.Contains(t, sql, constraint)
	}
}
