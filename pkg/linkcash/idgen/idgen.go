package idgen

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

const (
	// Alphabet is the set of characters used in generated codes.
	Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	DefaultLength = 8
	MinLength     = 6
)

// Generator produces uniformly random short codes.
type Generator struct {
	length  int
	entropy io.Reader
}

// Option configures a Generator.
type Option func(*Generator)

// WithLength sets the code length.
func WithLength(n int) Option {
	return func(g *Generator) { g.length = n }
}

// WithEntropy replaces crypto/rand as the randomness source.
func WithEntropy(r io.Reader) Option {
	return func(g *Generator) { g.entropy = r }
}

// New creates a generator. Lengths below MinLength are rejected.
func New(opts ...Option) (*Generator, error) {
	g := &Generator{length: DefaultLength, entropy: rand.Reader}
	for _, opt := range opts {
		opt(g)
	}
	if g.length < MinLength {
		return nil, fmt.Errorf("code length %d is below minimum %d", g.length, MinLength)
	}
	return g, nil
}

// Length returns the length of generated codes.
func (g *Generator) Length() int {
	return g.length
}

// Generate returns a new random code.
func (g *Generator) Generate() (string, error) {
	size := big.NewInt(int64(len(Alphabet)))
	code := make([]byte, g.length)
	for i := range code {
		n, err := rand.Int(g.entropy, size)
		if err != nil {
			return "", fmt.Errorf("failed to read entropy: %w", err)
		}
		code[i] = Alphabet[n.Int64()]
	}
	return string(code), nil
}
