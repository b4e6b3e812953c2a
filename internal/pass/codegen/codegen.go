// Package codegen issues pass codes and PINs.
//
// Codes are pseudo-random and short enough to read aloud at a gate. They are
// not secrets: the PIN, hashed at rest, is what admits a visitor.
package codegen

import (
	"math/rand/v2"
	"strconv"
	"sync"
)

const (
	alphabet   = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	CodeLength = 6
	PINLength  = 4
)

// Generator is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Generator)

// WithSource makes output deterministic for tests.
func WithSource(src rand.Source) Option {
	return func(g *Generator) {
		g.rng = rand.New(src)
	}
}

func New(opts ...Option) *Generator {
	g := &Generator{}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return g
}

// PassCode returns CodeLength uppercase base-36 characters.
func (g *Generator) PassCode() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	b := make([]byte, CodeLength)
	for i := range b {
		b[i] = alphabet[g.rng.IntN(len(alphabet))]
	}
	return string(b)
}

// PIN returns a numeric PIN in [1000, 9999].
func (g *Generator) PIN() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return strconv.Itoa(1000 + g.rng.IntN(9000))
}

// IsPassCode reports whether s has the shape of a generated pass code.
func IsPassCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}
