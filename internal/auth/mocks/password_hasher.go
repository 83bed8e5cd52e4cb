// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/holomush/authsvc/internal/auth"
)

// MockPasswordHasher is a mock auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a mock that asserts its expectations when
// the test ends.
func NewMockPasswordHasher(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Hash records the call and returns the configured results.
func (m *MockPasswordHasher) Hash(password string) ([]byte, error) {
	args := m.Called(password)
	var hash []byte
	if v := args.Get(0); v != nil {
		hash = v.([]byte)
	}
	return hash, args.Error(1)
}

// Verify records the call and returns the configured results.
func (m *MockPasswordHasher) Verify(password string, hash []byte) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}

var _ auth.PasswordHasher = (*MockPasswordHasher)(nil)
