// Package password hashes and verifies user passwords and admin codes.
// New hashes are Argon2id PHC strings; bcrypt hashes from older installs
// still verify and report NeedsRehash.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	argonTime    uint32 = 1
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 4
	argonKeyLen  uint32 = 32
	argonSaltLen        = 16
)

// Hash returns an Argon2id PHC string for secret.
func Hash(secret string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(secret), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether secret matches encoded. Unknown formats never match.
func Verify(secret, encoded string) bool {
	switch {
	case isBcrypt(encoded):
		return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(secret)) == nil
	case strings.HasPrefix(encoded, "$argon2id$"):
		return verifyArgon(secret, encoded)
	default:
		return false
	}
}

// NeedsRehash is true for hashes that are not Argon2id with the current cost.
func NeedsRehash(encoded string) bool {
	p, _, _, ok := decodeArgon(encoded)
	if !ok {
		return true
	}
	return p.memory != argonMemory || p.time != argonTime || p.threads != argonThreads
}

// GenerateCode returns a zero-padded random numeric code of the given length.
func GenerateCode(digits int) (string, error) {
	if digits <= 0 {
		return "", fmt.Errorf("invalid code length %d", digits)
	}
	var b strings.Builder
	b.Grow(digits)
	ten := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// dummyHash is compared against when the account does not exist so both
// paths do the same amount of work.
var dummyHash, _ = Hash("invoicekit-dummy-secret")

// Burn runs one verification against a throwaway hash.
func Burn(secret string) {
	_ = Verify(secret, dummyHash)
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

type argonParams struct {
	memory  uint32
	time    uint32
	threads uint8
}

func verifyArgon(secret, encoded string) bool {
	p, salt, key, ok := decodeArgon(encoded)
	if !ok {
		return false
	}
	check := argon2.IDKey([]byte(secret), salt, p.time, p.memory, p.threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, check) == 1
}

func decodeArgon(encoded string) (argonParams, []byte, []byte, bool) {
	var p argonParams
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" || parts[2] != "v=19" {
		return p, nil, nil, false
	}

	params := strings.Split(parts[3], ",")
	if len(params) != 3 {
		return p, nil, nil, false
	}
	m, okM := strings.CutPrefix(params[0], "m=")
	t, okT := strings.CutPrefix(params[1], "t=")
	th, okP := strings.CutPrefix(params[2], "p=")
	if !okM || !okT || !okP {
		return p, nil, nil, false
	}

	m64, err := strconv.ParseUint(m, 10, 32)
	if err != nil {
		return p, nil, nil, false
	}
	t64, err := strconv.ParseUint(t, 10, 32)
	if err != nil {
		return p, nil, nil, false
	}
	p64, err := strconv.ParseUint(th, 10, 8)
	if err != nil {
		return p, nil, nil, false
	}
	p = argonParams{memory: uint32(m64), time: uint32(t64), threads: uint8(p64)}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, false
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, false
	}
	return p, salt, key, true
}
