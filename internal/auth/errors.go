// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sistema POS Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Error codes attached to oops errors produced by this package.
const (
	CodeInvalidInput       = "AUTH_INVALID_INPUT"
	CodeEmptyPassword      = "AUTH_EMPTY_PASSWORD"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeSessionMissing     = "SESSION_MISSING"
	CodeSessionInvalid     = "SESSION_INVALID"
	CodeStoreUnavailable   = "STORE_UNAVAILABLE"
	CodeHashFailed         = "AUTH_HASH_FAILED"
	CodeInternal           = "AUTH_INTERNAL"
)

// ErrorKind is the caller-visible category of an authentication failure.
type ErrorKind int

// Error categories. Everything that is not one of the first four is
// KindInternal.
const (
	KindInternal ErrorKind = iota
	KindInput
	KindAuthentication
	KindSession
	KindStoreUnavailable
)

// String returns the category name used in logs and metrics.
func (k ErrorKind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindAuthentication:
		return "authentication"
	case KindSession:
		return "session"
	case KindStoreUnavailable:
		return "store_unavailable"
	default:
		return "internal"
	}
}

// Classify maps an error to its ErrorKind using the oops code attached to it.
// Errors without a recognised code are internal.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindInternal
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindInternal
	}
	code, _ := oopsErr.Code().(string)
	switch code {
	case CodeInvalidInput, CodeEmptyPassword:
		return KindInput
	case CodeInvalidCredentials:
		return KindAuthentication
	case CodeSessionMissing, CodeSessionInvalid:
		return KindSession
	case CodeStoreUnavailable:
		return KindStoreUnavailable
	default:
		return KindInternal
	}
}

func errInvalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("invalid credentials")
}
