// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sistema POS Contributors

// Package auth implements session authentication for the POS back office.
//
// # Components
//
//   - CredentialHasher - salts, hashes and verifies passwords (PBKDF2-SHA256)
//   - SessionStore - issues, validates and deletes server-side sessions
//   - ResolveCookiePolicy - derives Secure/SameSite/Domain from request facts
//   - PermissionsFor - maps a role to its capability set
//   - Service - orchestrates login, session probe and logout
//
// Users are owned by an external store and reached through UserRepository.
// Service never returns salts or hashes to callers; all user data leaves the
// package as PublicUser.
//
// Validation re-checks that the owning user is active on every probe, so
// deactivating a user invalidates every live session without touching the
// session table.
package auth
