// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth implements the session-credential lifecycle.
//
// # Records
//
// A UserRecord holds an email, a one-way password hash, and at most one live
// session token and one pending reset token. Records are owned by a
// CredentialStore; callers only ever see copies and change state through
// CredentialStore.UpdateUser.
//
// Lookups and updates name record attributes through the closed Field
// enumeration. Criterion and Update values are built with their typed
// constructors (ByEmail, SetSessionToken, ...) or the generic Where and Set,
// and are validated before a store touches storage.
//
// # Services
//
// SessionManager implements the business rules on top of a CredentialStore:
//   - RegisterUser - create a record, rejecting duplicate emails
//   - ValidLogin - verify a password without surfacing lookup misses
//   - CreateSession, GetUserFromSession, DestroySession - session lifecycle
//   - GetResetToken, UpdatePassword - single-use password reset
//
// SessionManager is created with NewSessionManager; there is no package-level
// instance.
package auth
