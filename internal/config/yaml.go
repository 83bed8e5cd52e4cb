// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"net/url"
	"time"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// YAML renders the configuration in the file format Load accepts. The
// database password, if any, is masked.
func (c *Config) YAML() ([]byte, error) {
	doc := map[string]any{
		"http": map[string]any{
			"addr":             c.HTTP.Addr,
			"request_timeout":  duration(c.HTTP.RequestTimeout),
			"shutdown_timeout": duration(c.HTTP.ShutdownTimeout),
			"cookie_secure":    c.HTTP.CookieSecure,
			"cors_origins":     nonNil(c.HTTP.CORSOrigins),
			"excluded_paths":   nonNil(c.HTTP.ExcludedPaths),
		},
		"metrics": map[string]any{
			"addr": c.Metrics.Addr,
		},
		"log": map[string]any{
			"format":        c.Log.Format,
			"level":         c.Log.Level,
			"redact_fields": nonNil(c.Log.RedactFields),
		},
		"auth": map[string]any{
			"hasher":      c.Auth.Hasher,
			"bcrypt_cost": c.Auth.BcryptCost,
			"session_ttl": duration(c.Auth.SessionTTL),
			"reset_ttl":   duration(c.Auth.ResetTTL),
			"argon2": map[string]any{
				"time":       c.Auth.Argon2.Time,
				"memory_kib": c.Auth.Argon2.MemoryKiB,
				"threads":    c.Auth.Argon2.Threads,
			},
		},
		"store": map[string]any{
			"driver":          c.Store.Driver,
			"database_url":    RedactURL(c.Store.DatabaseURL),
			"auto_migrate":    c.Store.AutoMigrate,
			"connect_retries": c.Store.ConnectRetries,
			"connect_backoff": duration(c.Store.ConnectBackoff),
		},
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, oops.Code("CONFIG_MARSHAL_FAILED").Wrap(err)
	}
	return out, nil
}

// RedactURL masks the password of a URL. Strings that do not parse are
// replaced entirely.
func RedactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "xxxxx"
	}
	return u.Redacted()
}

func duration(d time.Duration) string {
	return d.String()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
