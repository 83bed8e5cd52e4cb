// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/authsvc/internal/auth"
	"github.com/holomush/authsvc/internal/logging"
)

// DatabaseURLEnv is read when store.database_url is not configured.
const DatabaseURLEnv = "DATABASE_URL"

// DefaultEnvFile is loaded by the CLI when present.
const DefaultEnvFile = ".env"

// Defaults for every configuration key. The flag set carries them so that
// `--help` shows the effective default.
var (
	defaultExcludedPaths = []string{"/", "/users", "/sessions", "/reset_password"}
	defaultArgon2        = auth.DefaultArgon2Params()
)

// RegisterFlags adds one flag per configuration key to fs. Flag names are
// the dotted keys, for example --http.addr.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("http.addr", ":5000", "HTTP listen address")
	fs.Duration("http.request_timeout", 5*time.Second, "per-request timeout (0 disables)")
	fs.Duration("http.shutdown_timeout", 10*time.Second, "graceful shutdown timeout")
	fs.Bool("http.cookie_secure", false, "mark the session cookie Secure")
	fs.StringSlice("http.cors_origins", nil, "allowed CORS origins (empty disables CORS)")
	fs.StringSlice("http.excluded_paths", defaultExcludedPaths, "path globs that do not require a session")

	fs.String("metrics.addr", "127.0.0.1:9100", "metrics/health HTTP address (empty disables)")

	fs.String("log.format", "json", "log format (json or text)")
	fs.String("log.level", "info", "log level (debug, info, warn, error)")
	fs.StringSlice("log.redact_fields", logging.DefaultRedactFields, "log fields whose values are redacted")

	fs.String("auth.hasher", auth.AlgorithmArgon2id, "password hash algorithm (argon2id or bcrypt)")
	fs.Int("auth.bcrypt_cost", 12, "bcrypt cost")
	fs.Duration("auth.session_ttl", auth.DefaultSessionTTL, "session lifetime (0 disables expiry)")
	fs.Duration("auth.reset_ttl", auth.DefaultResetTTL, "reset token lifetime (0 disables expiry)")
	fs.Uint32("auth.argon2.time", defaultArgon2.Time, "argon2id iterations")
	fs.Uint32("auth.argon2.memory_kib", defaultArgon2.MemoryKiB, "argon2id memory in KiB")
	fs.Uint8("auth.argon2.threads", defaultArgon2.Threads, "argon2id parallelism")

	fs.String("store.driver", DriverMemory, "credential store (memory or postgres)")
	fs.String("store.database_url", "", "PostgreSQL URL (default: $"+DatabaseURLEnv+")")
	fs.Bool("store.auto_migrate", true, "apply pending migrations on startup")
	fs.Int("store.connect_retries", 5, "database connection retries")
	fs.Duration("store.connect_backoff", 500*time.Millisecond, "initial database connection backoff")
}

// LoadEnvFile loads variables from path into the process environment.
// Variables that are already set keep their value. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return oops.Code("CONFIG_ENV_FILE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

// Load builds the configuration. configPath names an optional YAML file.
// Flags changed on the command line override the file; flag defaults fill
// keys the file leaves unset.
func Load(flags *pflag.FlagSet, configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", configPath).Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only dotted flags are configuration keys.
			if !strings.Contains(f.Name, ".") {
				return "", nil
			}
			return f.Name, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "unmarshal").Wrap(err)
	}

	if cfg.Store.DatabaseURL == "" {
		cfg.Store.DatabaseURL = os.Getenv(DatabaseURLEnv)
	}

	return &cfg, nil
}
