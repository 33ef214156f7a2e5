package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var codeSpace = big.NewInt(900000)

// GenerateCode returns a random six digit verification code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
