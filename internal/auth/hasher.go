// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes
)

// PasswordHasher provides one-way salted password hashing.
type PasswordHasher interface {
	// Hash produces a salted digest of the password. Two calls with the
	// same input produce different, independently verifiable digests.
	Hash(password string) (string, error)

	// Verify reports whether the digest was produced from the password.
	// Malformed digests verify false; Verify never panics and is
	// side-effect free.
	Verify(password, encodedHash string) bool
}

// Argon2idHasher implements PasswordHasher using argon2id with PHC
// string encoding.
type Argon2idHasher struct{}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// Hash produces an argon2id digest of the password. The empty string is
// a hashable input; rejecting empty credentials is the engine's job.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	digest := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	// PHC format: $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	)

	return encoded, nil
}

// Verify reports whether encodedHash was produced from password.
// Any parse failure is a mismatch, not an error.
func (h *Argon2idHasher) Verify(password, encodedHash string) bool {
	salt, expected, params, ok := parsePHC(encodedHash)
	if !ok {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(len(expected)))

	return subtle.ConstantTimeCompare(computed, expected) == 1
}

type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
}

// parsePHC parses a PHC-encoded argon2id digest. ok is false for any
// digest this hasher could not have produced.
func parsePHC(encodedHash string) (salt, digest []byte, params argon2Params, ok bool) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, argon2Params{}, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, nil, argon2Params{}, false
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return nil, nil, argon2Params{}, false
	}
	// Threads must fit in uint8 for argon2.IDKey.
	if threads == 0 || threads > 255 {
		return nil, nil, argon2Params{}, false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, argon2Params{}, false
	}
	digest, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(digest) == 0 {
		return nil, nil, argon2Params{}, false
	}

	return salt, digest, argon2Params{memory: memory, time: time, threads: uint8(threads)}, true
}

// Compile-time interface check.
var _ PasswordHasher = (*Argon2idHasher)(nil)
