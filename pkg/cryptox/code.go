package cryptox

import (
	"crypto/rand"
	"fmt"
)

// codeAlphabet is the character set invitation codes are drawn from.
// Uppercase plus digits keeps codes easy to read out over the phone.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateCode creates a random code of length characters drawn uniformly
// from uppercase ASCII letters and digits using crypto/rand. Rejection
// sampling keeps the distribution uniform across the 36-character alphabet.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("code length must be positive, got %d", length)
	}

	// Bytes >= limit would bias the modulo towards the low characters.
	const limit = 256 - 256%len(codeAlphabet)

	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate random code: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == length {
				break
			}
		}
	}

	return string(out), nil
}

// MustGenerateCode is like GenerateCode but panics on error. Use only where
// failure is unrecoverable, e.g. test setup.
func MustGenerateCode(length int) string {
	code, err := GenerateCode(length)
	if err != nil {
		panic(fmt.Sprintf("cryptox: failed to generate code: %v", err))
	}
	return code
}
