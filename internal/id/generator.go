package id

import (
	"context"

	"urlitrim/internal/core"
)

// Generator implements core.CodeGenerator with fixed-length base62 codes.
type Generator struct {
	length int
}

// NewGenerator returns a Generator producing codes of length n (DefaultLength if n <= 0).
func NewGenerator(n int) *Generator {
	if n <= 0 {
		n = DefaultLength
	}
	return &Generator{length: n}
}

// NewCode draws a fresh code.
func (g *Generator) NewCode(_ context.Context) (string, error) {
	return RandomBase62(g.length)
}

var _ core.CodeGenerator = (*Generator)(nil)
