// Package roomcode issues short room codes that people can read out loud and
// type on a phone.
package roomcode

import (
	"fmt"

	nanoid "github.com/jaevor/go-nanoid"
)

const (
	// Alphabet drops characters that are easy to confuse when read aloud.
	Alphabet      = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	DefaultLength = 6
)

// Generator produces random room codes.
type Generator struct {
	next func() string
}

// New returns a generator of codes with the given length.
func New(length int) (*Generator, error) {
	if length <= 0 {
		length = DefaultLength
	}
	gen, err := nanoid.CustomASCII(Alphabet, length)
	if err != nil {
		return nil, fmt.Errorf("room code generator: %w", err)
	}
	return &Generator{next: gen}, nil
}

// Next returns a fresh code.
func (g *Generator) Next() string { return g.next() }
