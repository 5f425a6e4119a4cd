package ledger

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
)

const (
	codeLength = 6
	codeMin    = 100000
	codeSpan   = 900000
)

// Generator produces new codes.
type Generator interface {
	Generate() (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func() (string, error)

func (f GeneratorFunc) Generate() (string, error) { return f() }

type randomGenerator struct{}

// Generate returns a uniformly random code in [100000, 999999].
func (randomGenerator) Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", err
	}

	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}

// NormalizeCode turns a supplied code into its canonical 6-digit form.
// It returns "" when the input can never match an issued code.
func NormalizeCode(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return ""
		}
	}

	s = strings.TrimLeft(s, "0")
	if len(s) > codeLength {
		return ""
	}

	return strings.Repeat("0", codeLength-len(s)) + s
}
