// ABOUTME: One-way password hashing and verification backed by bcrypt
// ABOUTME: A wrong password is a false result; only a corrupt digest is an error

package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrCredentialFormat is returned when a stored digest cannot be parsed as bcrypt.
var ErrCredentialFormat = errors.New("malformed credential digest")

// dummyDigest is compared against when no account exists so the login path
// costs the same whether or not the phone number is registered.
const dummyDigest = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Hasher hashes and verifies passwords. The zero value uses bcrypt.DefaultCost.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher using the given bcrypt cost. A cost of zero
// selects bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	return &Hasher{cost: cost}
}

func (h *Hasher) effectiveCost() int {
	if h == nil || h.cost == 0 {
		return bcrypt.DefaultCost
	}
	return h.cost
}

// Hash returns a salted bcrypt digest of plaintext. Two calls with the same
// input return different digests.
func (h *Hasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.effectiveCost())
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether plaintext matches digest. A mismatch returns
// (false, nil); a digest that is not valid bcrypt returns ErrCredentialFormat.
func (h *Hasher) Verify(plaintext, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", ErrCredentialFormat, err)
}

// Burn performs a throwaway comparison against a fixed digest.
func (h *Hasher) Burn(plaintext string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyDigest), []byte(plaintext))
}
