package usecase

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"strings"
)

// generateTokenCode creates a secure, random token code with a human-readable
// course prefix. Format: <prefix>-XXXX-XXXX-XXXX where each segment is the hex
// of 2 secure-random bytes (48 bits of randomness per code).
func generateTokenCode(prefix string) (string, error) {
	segs := make([]string, 3)
	for i := range segs {
		b := make([]byte, 2)
		if _, err := io.ReadFull(rand.Reader, b); err != nil {
			return "", err
		}
		segs[i] = hex.EncodeToString(b)
	}
	return prefix + "-" + strings.Join(segs, "-"), nil
}

// generateHexPassword creates a credential in the format xxx-xxx-xxx-xxx:
// four groups of 3 hex characters, each group from 2 secure-random bytes.
func generateHexPassword() (string, error) {
	groups := make([]string, 4)
	for i := range groups {
		b := make([]byte, 2)
		if _, err := io.ReadFull(rand.Reader, b); err != nil {
			return "", err
		}
		groups[i] = hex.EncodeToString(b)[:3]
	}
	return strings.Join(groups, "-"), nil
}

// generateUsername combines the email's lowercased local part with a random
// 4-digit suffix. Uniqueness is the caller's job (bounded check-and-retry).
func generateUsername(email string) (string, error) {
	local := strings.ToLower(strings.SplitN(email, "@", 2)[0])
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%04d", local, n.Int64()+1000), nil
}
