// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides an in-process CredentialStore.
package memory

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/authsvc/internal/auth"
)

// Store implements auth.CredentialStore in memory. It is safe for
// concurrent use; every operation holds the store lock for its whole
// duration.
type Store struct {
	mu      sync.RWMutex
	nextID  int64
	users   map[int64]*auth.UserRecord
	byEmail map[string]int64
	bySess  map[string]int64
	byReset map[string]int64
	now     func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		nextID:  1,
		users:   make(map[int64]*auth.UserRecord),
		byEmail: make(map[string]int64),
		bySess:  make(map[string]int64),
		byReset: make(map[string]int64),
		now:     time.Now,
	}
}

// AddUser inserts a new record.
func (s *Store) AddUser(ctx context.Context, email string, hashedPassword []byte) (*auth.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("USER_CREATE_FAILED").Wrap(err)
	}
	if err := auth.ValidateUpdates([]auth.Update{auth.SetEmail(email), auth.SetHashedPassword(hashedPassword)}); err != nil {
		return nil, oops.Code("USER_CREATE_FAILED").With("operation", "validate user").Wrap(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[email]; taken {
		return nil, oops.Code("USER_DUPLICATE_EMAIL").Wrap(auth.ErrDuplicateEmail)
	}

	now := s.now().UTC()
	rec := &auth.UserRecord{
		ID:             s.nextID,
		Email:          email,
		HashedPassword: append([]byte(nil), hashedPassword...),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.nextID++
	s.users[rec.ID] = rec
	s.byEmail[email] = rec.ID

	return rec.Clone(), nil
}

// FindUserBy returns the record matching all criteria.
func (s *Store) FindUserBy(ctx context.Context, criteria ...auth.Criterion) (*auth.UserRecord, error) {
	if err := auth.ValidateCriteria(criteria); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("USER_FIND_FAILED").Wrap(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Start from an indexed criterion when there is one.
	var candidates []*auth.UserRecord
	if rec, indexed := s.lookupIndexed(criteria); indexed {
		if rec != nil {
			candidates = []*auth.UserRecord{rec}
		}
	} else {
		candidates = make([]*auth.UserRecord, 0, len(s.users))
		for _, rec := range s.users {
			candidates = append(candidates, rec)
		}
	}

	for _, rec := range candidates {
		if matchesAll(rec, criteria) {
			return rec.Clone(), nil
		}
	}
	return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
}

// UpdateUser applies updates to the record with id, all or nothing.
func (s *Store) UpdateUser(ctx context.Context, id int64, updates ...auth.Update) error {
	if err := auth.ValidateUpdates(updates); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return oops.Code("USER_UPDATE_FAILED").Wrap(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}

	next := current.Clone()
	auth.ApplyUpdates(next, updates)

	if next.Email != current.Email {
		if _, taken := s.byEmail[next.Email]; taken {
			return oops.Code("USER_DUPLICATE_EMAIL").With("id", id).Wrap(auth.ErrDuplicateEmail)
		}
	}
	if err := checkTokenFree(s.bySess, next.SessionToken, id, "session_token"); err != nil {
		return err
	}
	if err := checkTokenFree(s.byReset, next.ResetToken, id, "reset_token"); err != nil {
		return err
	}

	next.UpdatedAt = s.now().UTC()
	reindex(s.byEmail, &current.Email, &next.Email, id)
	reindex(s.bySess, current.SessionToken, next.SessionToken, id)
	reindex(s.byReset, current.ResetToken, next.ResetToken, id)
	s.users[id] = next
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// lookupIndexed resolves the first criterion backed by an index. The
// second result is false when no criterion is indexed.
func (s *Store) lookupIndexed(criteria []auth.Criterion) (*auth.UserRecord, bool) {
	for _, c := range criteria {
		var (
			id    int64
			found bool
		)
		switch c.Field {
		case auth.FieldID:
			id, found = c.Value.(int64), true
		case auth.FieldEmail:
			id, found = s.byEmail[c.Value.(string)]
		case auth.FieldSessionToken:
			id, found = s.bySess[c.Value.(string)]
		case auth.FieldResetToken:
			id, found = s.byReset[c.Value.(string)]
		default:
			continue
		}
		if !found {
			return nil, true
		}
		return s.users[id], true
	}
	return nil, false
}

func matchesAll(rec *auth.UserRecord, criteria []auth.Criterion) bool {
	for _, c := range criteria {
		if !matches(rec, c) {
			return false
		}
	}
	return true
}

func matches(rec *auth.UserRecord, c auth.Criterion) bool {
	switch c.Field {
	case auth.FieldID:
		return rec.ID == c.Value.(int64)
	case auth.FieldEmail:
		return rec.Email == c.Value.(string)
	case auth.FieldHashedPassword:
		return bytes.Equal(rec.HashedPassword, c.Value.([]byte))
	case auth.FieldSessionToken:
		return rec.SessionToken != nil && *rec.SessionToken == c.Value.(string)
	case auth.FieldResetToken:
		return rec.ResetToken != nil && *rec.ResetToken == c.Value.(string)
	default:
		return false
	}
}

func checkTokenFree(index map[string]int64, token *string, id int64, field string) error {
	if token == nil {
		return nil
	}
	if owner, taken := index[*token]; taken && owner != id {
		return oops.Code("USER_DUPLICATE_TOKEN").
			With("id", id).
			With("field", field).
			Errorf("%s already in use", field)
	}
	return nil
}

func reindex(index map[string]int64, oldKey, newKey *string, id int64) {
	if oldKey != nil {
		delete(index, *oldKey)
	}
	if newKey != nil {
		index[*newKey] = id
	}
}

// Compile-time interface check.
var _ auth.CredentialStore = (*Store)(nil)
