package codegen

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PINHasher hashes PINs with bcrypt at a fixed cost.
type PINHasher struct {
	cost int
}

// NewPINHasher returns a hasher; a cost of 0 selects bcrypt.DefaultCost.
func NewPINHasher(cost int) *PINHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &PINHasher{cost: cost}
}

func (h *PINHasher) Hash(pin string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash pin: %w", err)
	}
	return string(hash), nil
}

// Matches reports whether pin produced hash. Malformed hashes never match.
func (h *PINHasher) Matches(hash, pin string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}
