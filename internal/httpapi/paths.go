// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// DefaultExcludedPaths are reachable without a session.
var DefaultExcludedPaths = []string{"/", "/users", "/sessions", "/reset_password"}

// PathMatcher decides which request paths need an authenticated session.
// Patterns are globs in which * matches any run of characters, slashes
// included.
type PathMatcher struct {
	patterns []string
	globs    []glob.Glob
}

// NewPathMatcher compiles the exclusion patterns once.
func NewPathMatcher(excluded []string) (*PathMatcher, error) {
	m := &PathMatcher{
		patterns: make([]string, 0, len(excluded)),
		globs:    make([]glob.Glob, 0, len(excluded)),
	}
	for _, p := range excluded {
		g, err := glob.Compile(normalizePath(p))
		if err != nil {
			return nil, oops.Code("HTTP_INVALID_PATH_PATTERN").With("pattern", p).Wrap(err)
		}
		m.patterns = append(m.patterns, p)
		m.globs = append(m.globs, g)
	}
	return m, nil
}

// RequireAuth reports whether path needs a session. An empty path, or a
// matcher without patterns, always needs one.
func (m *PathMatcher) RequireAuth(path string) bool {
	if path == "" || len(m.globs) == 0 {
		return true
	}
	path = normalizePath(path)
	for _, g := range m.globs {
		if g.Match(path) {
			return false
		}
	}
	return true
}

// Patterns returns the exclusion patterns as given.
func (m *PathMatcher) Patterns() []string {
	return append([]string(nil), m.patterns...)
}

// RequireAuth reports whether path needs a session given the exclusion
// patterns. A pattern that fails to compile only matches itself literally.
func RequireAuth(path string, excluded []string) bool {
	if path == "" || len(excluded) == 0 {
		return true
	}
	path = normalizePath(path)
	for _, p := range excluded {
		p = normalizePath(p)
		g, err := glob.Compile(p)
		if err != nil {
			if p == path {
				return false
			}
			continue
		}
		if g.Match(path) {
			return false
		}
	}
	return true
}

// normalizePath drops trailing slashes so /status and /status/ are the same
// path. The root stays "/".
func normalizePath(p string) string {
	trimmed := strings.TrimRight(p, "/")
	if trimmed == "" && p != "" {
		return "/"
	}
	return trimmed
}
