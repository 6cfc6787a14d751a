// Password hashing.
//
// bcrypt generates a random salt per hash and embeds it, along with the cost,
// in the output:
//
//	$2a$12$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (12 rounds → 2^12 = 4096 iterations)
//	 version
//
// Plaintext passwords never leave this file in any form other than a bcrypt hash.

package auth

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor (~250ms on a modern server).
const defaultCost = 12

// MaxPasswordBytes is bcrypt's input limit. Longer input is rejected rather
// than silently truncated.
const MaxPasswordBytes = 72

// PasswordService hashes passwords with a configurable bcrypt cost.
//
// Verification does not need the cost (it is embedded in the hash) and is the
// free function Verify.
type PasswordService struct {
	cost int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewPasswordService creates a PasswordService with the default cost (12).
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceForTest creates a PasswordService with a custom cost.
// Tests in other packages pass bcrypt.MinCost (4).
//
// Do NOT use in production.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash hashes the given plaintext password with bcrypt.
//
// Returns an error if the plaintext is longer than 72 bytes.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", fmt.Errorf("auth: password must be %d bytes or fewer", MaxPasswordBytes)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify reports whether plaintext matches the stored bcrypt hash.
//
// bcrypt.CompareHashAndPassword compares in constant time. A malformed hash
// verifies as false.
func Verify(storedHash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(plaintext)) == nil
}

// VerifyAgainstDummy burns the same bcrypt work as Verify against a hash of
// this service's cost. Login calls it when the username does not exist so the
// response time does not reveal whether the account exists.
func (p *PasswordService) VerifyAgainstDummy(plaintext string) {
	p.dummyOnce.Do(func() {
		// Error ignored: the input is a fixed short string.
		p.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("photoshare-dummy-password"), p.cost)
	})
	_ = bcrypt.CompareHashAndPassword(p.dummyHash, []byte(plaintext))
}
