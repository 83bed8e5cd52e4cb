// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package xdg resolves the XDG Base Directory locations authsvc reads.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "authsvc"

// ConfigFileName is the config file looked up in ConfigDir.
const ConfigFileName = "config.yaml"

// ConfigDir returns the XDG config directory for authsvc.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// ConfigFile returns the default config file path. The file may not exist.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), ConfigFileName)
}

// FindConfigFile returns the default config file path if a regular file
// exists there.
func FindConfigFile() (string, bool) {
	path := ConfigFile()
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return path, true
}
