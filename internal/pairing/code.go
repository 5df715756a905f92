package pairing

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	minCodeLength = 4
	maxCodeLength = 10
)

// GenerateCode returns a uniformly random numeric code of the given length.
func GenerateCode(length int) (string, error) {
	if length < minCodeLength || length > maxCodeLength {
		return "", fmt.Errorf("code length %d outside %d-%d", length, minCodeLength, maxCodeLength)
	}
	ten := big.NewInt(10)
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
