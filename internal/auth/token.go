// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Token lifetimes.
const (
	DefaultSessionTTL = 24 * time.Hour
	DefaultResetTTL   = time.Hour
)

// TokenGenerator produces unguessable tokens.
type TokenGenerator func() (string, error)

// NewToken returns a random (version 4) UUID read from crypto/rand.
// Session and reset tokens are both produced here.
func NewToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "uuid.NewRandom").
			Wrap(err)
	}
	return id.String(), nil
}
