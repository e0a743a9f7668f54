// Package otp generates the numeric codes riders read to drivers at pickup.
package otp

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

const DefaultLength = 6

// Generator draws codes uniformly from [10^(n-1), 10^n) using a CSPRNG,
// so codes always have exactly n digits and no leading zero.
type Generator struct {
	length int
	src    io.Reader
}

func NewGenerator(length int) (*Generator, error) {
	if length <= 0 {
		length = DefaultLength
	}
	if length > 18 {
		return nil, fmt.Errorf("otp length %d too large", length)
	}
	return &Generator{length: length, src: rand.Reader}, nil
}

func (g *Generator) Length() int { return g.length }

func (g *Generator) Generate() (string, error) {
	lo := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(g.length-1)), nil)
	span := new(big.Int).Mul(lo, big.NewInt(9))
	n, err := rand.Int(g.src, span)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return n.Add(n, lo).String(), nil
}
