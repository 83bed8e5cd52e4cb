// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mocks provides testify mocks for the auth interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/holomush/authsvc/internal/auth"
)

// MockCredentialStore is a mock auth.CredentialStore.
type MockCredentialStore struct {
	mock.Mock
}

// NewMockCredentialStore creates a mock that asserts its expectations when
// the test ends.
func NewMockCredentialStore(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockCredentialStore {
	m := &MockCredentialStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// AddUser records the call and returns the configured results.
func (m *MockCredentialStore) AddUser(ctx context.Context, email string, hashedPassword []byte) (*auth.UserRecord, error) {
	args := m.Called(ctx, email, hashedPassword)
	var rec *auth.UserRecord
	if v := args.Get(0); v != nil {
		rec = v.(*auth.UserRecord)
	}
	return rec, args.Error(1)
}

// FindUserBy records the call and returns the configured results. Criteria
// are matched as a single slice argument.
func (m *MockCredentialStore) FindUserBy(ctx context.Context, criteria ...auth.Criterion) (*auth.UserRecord, error) {
	args := m.Called(ctx, criteria)
	var rec *auth.UserRecord
	if v := args.Get(0); v != nil {
		rec = v.(*auth.UserRecord)
	}
	return rec, args.Error(1)
}

// UpdateUser records the call and returns the configured error. Updates are
// matched as a single slice argument.
func (m *MockCredentialStore) UpdateUser(ctx context.Context, id int64, updates ...auth.Update) error {
	args := m.Called(ctx, id, updates)
	return args.Error(0)
}

var _ auth.CredentialStore = (*MockCredentialStore)(nil)
