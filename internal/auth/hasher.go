// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Hasher algorithm names accepted by NewHasher.
const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

// Argon2Params are the argon2id cost parameters.
type Argon2Params struct {
	Time      uint32 // iterations
	MemoryKiB uint32 // memory in KiB
	Threads   uint8  // parallelism
	SaltLen   uint32 // salt length in bytes
	KeyLen    uint32 // output length in bytes
}

// DefaultArgon2Params returns the OWASP-recommended argon2id parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:      1,
		MemoryKiB: 64 * 1024,
		Threads:   4,
		SaltLen:   16,
		KeyLen:    32,
	}
}

// PasswordHasher provides one-way password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted hash of the password. Every call uses a fresh salt.
	Hash(password string) ([]byte, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(password string, hash []byte) (bool, error)
}

// NewHasher returns a hasher that hashes with the named algorithm and
// verifies hashes of either algorithm, so changing the algorithm does not
// lock out users whose passwords were hashed with the other one.
func NewHasher(algorithm string, argon Argon2Params, bcryptCost int) (PasswordHasher, error) {
	switch algorithm {
	case AlgorithmArgon2id, "":
		argonHasher, err := NewArgon2idHasherWithParams(argon)
		if err != nil {
			return nil, err
		}
		// bcrypt verification does not depend on the cost.
		return &dispatchHasher{
			primary:  argonHasher,
			argon2id: argonHasher,
			bcrypt:   &BcryptHasher{cost: bcrypt.DefaultCost},
		}, nil
	case AlgorithmBcrypt:
		bcryptHasher, err := NewBcryptHasher(bcryptCost)
		if err != nil {
			return nil, err
		}
		// argon2id verification reads its parameters from the hash.
		return &dispatchHasher{
			primary:  bcryptHasher,
			argon2id: NewArgon2idHasher(),
			bcrypt:   bcryptHasher,
		}, nil
	default:
		return nil, oops.Code("AUTH_UNKNOWN_HASHER").
			With("algorithm", algorithm).
			Errorf("unknown password hash algorithm %q", algorithm)
	}
}

// dispatchHasher hashes with primary and verifies by hash prefix.
type dispatchHasher struct {
	primary  PasswordHasher
	argon2id *Argon2idHasher
	bcrypt   *BcryptHasher
}

func (h *dispatchHasher) Hash(password string) ([]byte, error) {
	//nolint:wrapcheck // errors are coded by the wrapped hasher
	return h.primary.Hash(password)
}

func (h *dispatchHasher) Verify(password string, hash []byte) (bool, error) {
	switch {
	case bytes.HasPrefix(hash, []byte("$argon2id$")):
		return h.argon2id.Verify(password, hash)
	case bytes.HasPrefix(hash, []byte("$2")):
		return h.bcrypt.Verify(password, hash)
	default:
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("unrecognized hash format")
	}
}

// Argon2idHasher implements PasswordHasher using argon2id.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates an Argon2idHasher with the default parameters.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{params: DefaultArgon2Params()}
}

// NewArgon2idHasherWithParams creates an Argon2idHasher with custom
// parameters. Zero salt and key lengths take the defaults.
func NewArgon2idHasherWithParams(p Argon2Params) (*Argon2idHasher, error) {
	def := DefaultArgon2Params()
	if p.SaltLen == 0 {
		p.SaltLen = def.SaltLen
	}
	if p.KeyLen == 0 {
		p.KeyLen = def.KeyLen
	}
	if p.Time == 0 || p.MemoryKiB == 0 || p.Threads == 0 {
		return nil, oops.Code("AUTH_INVALID_HASHER_PARAMS").
			With("time", p.Time).
			With("memory_kib", p.MemoryKiB).
			With("threads", p.Threads).
			Errorf("argon2id time, memory and threads must be positive")
	}
	return &Argon2idHasher{params: p}, nil
}

// Hash produces an argon2id hash of the password.
func (h *Argon2idHasher) Hash(password string) ([]byte, error) {
	if password == "" {
		return nil, oops.Code("AUTH_EMPTY_PASSWORD").Wrap(ErrEmptyPassword)
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.MemoryKiB, h.params.Threads, h.params.KeyLen)

	// PHC string format: $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKiB,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return []byte(encoded), nil
}

// Verify checks if the password matches an argon2id hash. The cost
// parameters are read from the hash, not from the hasher.
func (h *Argon2idHasher) Verify(password string, encodedHash []byte) (bool, error) {
	parts := strings.Split(string(encodedHash), "$")
	if len(parts) != 6 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}

	if parts[1] != "argon2id" {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if version != argon2.Version {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported argon2 version: %d", version)
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	// threads must fit in uint8 to prevent silent truncation
	if threads == 0 || threads > 255 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid threads value %d", threads)
	}

	keyLen := len(expected)
	if keyLen <= 0 || keyLen > 1<<30 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", keyLen)
	}

	computed := argon2.IDKey([]byte(password), salt, iterations, memory, uint8(threads), uint32(keyLen))

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// MaxBcryptPasswordBytes is the longest password bcrypt accepts.
const MaxBcryptPasswordBytes = 72

// BcryptHasher implements PasswordHasher using bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a BcryptHasher. A zero cost uses bcrypt.DefaultCost.
func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, oops.Code("AUTH_INVALID_HASHER_PARAMS").
			With("cost", cost).
			Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &BcryptHasher{cost: cost}, nil
}

// Hash produces a bcrypt hash of the password.
func (h *BcryptHasher) Hash(password string) ([]byte, error) {
	if password == "" {
		return nil, oops.Code("AUTH_EMPTY_PASSWORD").Wrap(ErrEmptyPassword)
	}
	if len(password) > MaxBcryptPasswordBytes {
		return nil, oops.Code("AUTH_PASSWORD_TOO_LONG").
			With("max_bytes", MaxBcryptPasswordBytes).
			Wrap(errors.Join(ErrPasswordTooLong, bcrypt.ErrPasswordTooLong))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return nil, oops.Code("AUTH_HASH_FAILED").With("algorithm", AlgorithmBcrypt).Wrap(err)
	}
	return hash, nil
}

// Verify checks if the password matches a bcrypt hash.
func (h *BcryptHasher) Verify(password string, hash []byte) (bool, error) {
	if !bytes.HasPrefix(hash, []byte("$2")) {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}
	err := bcrypt.CompareHashAndPassword(hash, []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
}

// Compile-time interface checks.
var (
	_ PasswordHasher = (*Argon2idHasher)(nil)
	_ PasswordHasher = (*BcryptHasher)(nil)
	_ PasswordHasher = (*dispatchHasher)(nil)
)
