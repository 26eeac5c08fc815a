package code

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// Length is the number of characters in a session code.
	Length = 4

	// Alphabet omits 0/O and 1/I so codes survive being read aloud or copied off a slide.
	Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	// MaxAttempts caps collision retries when issuing a fresh code.
	MaxAttempts = 10
)

var ErrInvalid = errors.New("invalid session code")

// Generator issues random session codes.
type Generator struct {
	rand io.Reader
}

// NewGenerator returns a Generator reading from src, or crypto/rand when src is nil.
func NewGenerator(src io.Reader) *Generator {
	if src == nil {
		src = rand.Reader
	}
	return &Generator{rand: src}
}

func (g *Generator) Generate() (string, error) {
	buf := make([]byte, Length)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	out := make([]byte, Length)
	for i, b := range buf {
		// len(Alphabet) divides 256, so the modulo is unbiased.
		out[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return string(out), nil
}

// Normalize trims and uppercases a user-supplied code.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Valid reports whether s is a normalized, well-formed code.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// Parse normalizes s and returns ErrInvalid when the result is not well-formed.
func Parse(s string) (string, error) {
	c := Normalize(s)
	if !Valid(c) {
		return "", fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return c, nil
}
