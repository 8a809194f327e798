package auth

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// dummyPassword backs the compare that runs when no user matched, so a
// miss costs as much as a wrong password.
const dummyPassword = "not-a-real-password"

// BcryptVerifier hashes passwords with bcrypt. Every Hash call draws a
// fresh random salt.
type BcryptVerifier struct {
	cost      int
	dummyHash []byte
}

// NewBcryptVerifier returns a verifier. A cost outside bcrypt's bounds falls
// back to the build default. The dummy hash used by CompareMissing is
// generated here at the same cost, so the first missed login is not slower
// than the ones after it.
func NewBcryptVerifier(cost ...int) *BcryptVerifier {
	c := passwordHashCost()
	if len(cost) > 0 && cost[0] >= bcrypt.MinCost && cost[0] <= bcrypt.MaxCost {
		c = cost[0]
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte(dummyPassword), c)
	if err != nil {
		panic("AUTH: unable to generate dummy bcrypt hash: " + err.Error())
	}

	return &BcryptVerifier{cost: c, dummyHash: dummy}
}

// Hash will generate a salted password hash
func (v *BcryptVerifier) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), v.cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Compare validates the cleartext password against the hash through
// bcrypt's own verification routine
func (v *BcryptVerifier) Compare(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// CompareMissing burns a compare against a fixed hash and always fails
func (v *BcryptVerifier) CompareMissing(password string) bool {
	_ = bcrypt.CompareHashAndPassword(v.dummyHash, []byte(password))
	return false
}

var defaultVerifier = sync.OnceValue(func() *BcryptVerifier {
	return NewBcryptVerifier()
})

// DefaultBcryptVerifier returns the shared verifier at the build default
// cost, created on first use
func DefaultBcryptVerifier() *BcryptVerifier {
	return defaultVerifier()
}

// HashPassword hashes with the default verifier
func HashPassword(password string) (string, error) {
	return defaultVerifier().Hash(password)
}

// ComparePasswordAndHash compares with the default verifier
func ComparePasswordAndHash(password, hash string) bool {
	return defaultVerifier().Compare(password, hash)
}
