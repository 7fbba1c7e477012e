// Package random generates unguessable tokens.
package random

import (
	"crypto/rand"
	"github.com/chatscope/chatscope/internal/errors"
	"strings"
)

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// rejectFrom is the first byte value that would bias the modulo towards the start of the alphabet.
const rejectFrom = 256 - 256%len(alphabet)

// Letters returns n letters drawn uniformly from a-z and A-Z with crypto/rand, e.g., for CSP nonces.
func Letters(n int) (string, error) {
	var sb strings.Builder
	sb.Grow(n)
	buf := make([]byte, n)
	for sb.Len() < n {
		if _, err := rand.Read(buf); err != nil {
			return "", errors.Wrap(err, "read random bytes")
		}
		for _, b := range buf {
			if int(b) >= rejectFrom {
				continue
			}
			sb.WriteByte(alphabet[int(b)%len(alphabet)])
			if sb.Len() == n {
				break
			}
		}
	}
	return sb.String(), nil
}
