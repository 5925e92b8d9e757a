package shortcode

import (
	"crypto/rand"
	"math/big"
)

// TokenLength is the length of tokens returned by NewToken.
const TokenLength = 6

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

var base36Len = big.NewInt(int64(len(base36)))

// NewToken returns a fresh random token of TokenLength base36 characters.
func NewToken() (string, error) {
	return RandomString(TokenLength)
}

// RandomString returns n random lowercase base36 characters.
func RandomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	out := make([]byte, n)
	for i := range out {
		v, err := rand.Int(rand.Reader, base36Len)
		if err != nil {
			return "", err
		}
		out[i] = base36[v.Int64()]
	}
	return string(out), nil
}

// IsToken reports whether s looks like a token produced by NewToken.
func IsToken(s string) bool {
	if len(s) != TokenLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'z') {
			return false
		}
	}
	return true
}
