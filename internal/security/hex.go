package security

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrNoUniqueValue is returned when GenerateUniqueHex keeps hitting taken values
var ErrNoUniqueValue = errors.New("could not generate a unique value")

const maxHexAttempts = 10

// RandomHex returns a random lowercase hex string of the given length
func RandomHex(length int) (string, error) {
	buf := make([]byte, (length+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf)[:length], nil
}

// GenerateUniqueHex returns a random hex string of the given length for which
// taken reports false. taken is usually an existence query on the target column.
func GenerateUniqueHex(ctx context.Context, length int, taken func(ctx context.Context, value string) (bool, error)) (string, error) {
	for range maxHexAttempts {
		value, err := RandomHex(length)
		if err != nil {
			return "", fmt.Errorf("failed to generate random value: %w", err)
		}
		exists, err := taken(ctx, value)
		if err != nil {
			return "", err
		}
		if !exists {
			return value, nil
		}
	}
	return "", ErrNoUniqueValue
}
