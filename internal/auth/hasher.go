// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sistema POS Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameters. The salt is stored hex encoded and its text bytes are
// fed to PBKDF2, which keeps digests written by earlier deployments valid.
const (
	DefaultPBKDF2Iterations = 100_000
	MinPBKDF2Iterations     = 10_000
	MaxPBKDF2Iterations     = 10_000_000
	SaltBytes               = 16
	DigestBytes             = 32
)

// PBKDF2DigestPrefix marks a stored digest that carries its own work factor:
// pbkdf2_sha256$<iterations>$<hex>. A bare hex digest was derived with
// DefaultPBKDF2Iterations.
const PBKDF2DigestPrefix = "pbkdf2_sha256$"

// CredentialHasher salts, hashes and verifies passwords.
type CredentialHasher interface {
	// GenerateSalt returns a fresh random salt, hex encoded.
	GenerateSalt() (string, error)

	// Hash derives the hex digest of password under salt.
	Hash(password, salt string) (string, error)

	// Verify recomputes the digest with the work factor recorded in it and
	// compares in constant time. Returns (true, nil) on match, (false, nil)
	// on mismatch.
	Verify(password, salt, digest string) (bool, error)

	// NeedsUpgrade reports whether a stored digest was derived with a
	// weaker work factor than the hasher currently uses.
	NeedsUpgrade(digest string) bool
}

// PBKDF2Hasher implements CredentialHasher with PBKDF2-HMAC-SHA256.
type PBKDF2Hasher struct {
	iterations int
}

// NewPBKDF2Hasher creates a hasher. Iteration counts outside
// [MinPBKDF2Iterations, MaxPBKDF2Iterations] are clamped.
func NewPBKDF2Hasher(iterations int) *PBKDF2Hasher {
	iterations = max(MinPBKDF2Iterations, min(iterations, MaxPBKDF2Iterations))
	return &PBKDF2Hasher{iterations: iterations}
}

// Iterations returns the configured PBKDF2 work factor.
func (h *PBKDF2Hasher) Iterations() int {
	return h.iterations
}

// GenerateSalt returns SaltBytes random bytes as lowercase hex.
func (h *PBKDF2Hasher) GenerateSalt() (string, error) {
	salt := make([]byte, SaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code(CodeHashFailed).
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SaltBytes).
			Wrap(err)
	}
	return hex.EncodeToString(salt), nil
}

// Hash derives the PBKDF2 digest of password under salt. At
// DefaultPBKDF2Iterations the digest is bare hex; any other work factor is
// recorded in the PBKDF2DigestPrefix form.
func (h *PBKDF2Hasher) Hash(password, salt string) (string, error) {
	if password == "" {
		return "", oops.Code(CodeEmptyPassword).Errorf("password cannot be empty")
	}
	if salt == "" {
		return "", oops.Code(CodeHashFailed).Errorf("salt cannot be empty")
	}
	return FormatPBKDF2Digest(h.iterations, derive(password, salt, h.iterations)), nil
}

// Verify checks password against a stored salt and digest, using the
// iteration count the digest was written with.
func (h *PBKDF2Hasher) Verify(password, salt, digest string) (bool, error) {
	if salt == "" || digest == "" {
		return false, oops.Code(CodeHashFailed).Errorf("stored credential is incomplete")
	}
	iterations, expected, err := ParsePBKDF2Digest(digest)
	if err != nil {
		return false, err
	}
	if password == "" {
		return false, nil
	}
	computed := derive(password, salt, iterations)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(expected)) == 1, nil
}

// NeedsUpgrade is true when digest records fewer iterations than h uses.
// Malformed digests never need an upgrade; Verify rejects them.
func (h *PBKDF2Hasher) NeedsUpgrade(digest string) bool {
	iterations, _, err := ParsePBKDF2Digest(digest)
	if err != nil {
		return false
	}
	return iterations < h.iterations
}

// FormatPBKDF2Digest encodes a hex digest with its iteration count.
func FormatPBKDF2Digest(iterations int, hexDigest string) string {
	if iterations == DefaultPBKDF2Iterations {
		return hexDigest
	}
	return PBKDF2DigestPrefix + strconv.Itoa(iterations) + "$" + hexDigest
}

// ParsePBKDF2Digest splits a stored digest into its iteration count and hex
// digest. Bare hex is read as DefaultPBKDF2Iterations.
func ParsePBKDF2Digest(digest string) (int, string, error) {
	rest, ok := strings.CutPrefix(digest, PBKDF2DigestPrefix)
	if !ok {
		return DefaultPBKDF2Iterations, digest, nil
	}
	count, hexDigest, ok := strings.Cut(rest, "$")
	if !ok || hexDigest == "" {
		return 0, "", oops.Code(CodeHashFailed).Errorf("stored digest is malformed")
	}
	iterations, err := strconv.Atoi(count)
	if err != nil || iterations < 1 || iterations > MaxPBKDF2Iterations {
		return 0, "", oops.Code(CodeHashFailed).
			With("iterations", count).
			Errorf("stored digest has an invalid iteration count")
	}
	return iterations, hexDigest, nil
}

func derive(password, salt string, iterations int) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), iterations, DigestBytes, sha256.New)
	return hex.EncodeToString(key)
}

// VerifyLegacySHA256 checks digest against hex(sha256(password+salt)), the
// single-round scheme used by older user records. It must only gate a
// one-time re-hash to the PBKDF2 scheme.
func VerifyLegacySHA256(password, salt, digest string) bool {
	sum := sha256.Sum256([]byte(password + salt))
	computed := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1
}

// Compile-time interface check.
var _ CredentialHasher = (*PBKDF2Hasher)(nil)
