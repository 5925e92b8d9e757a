package shortcode

import (
	"encoding/base64"
	"strings"
)

// DefaultKey is the key used by deployments that never configured one.
// Changing it invalidates every link issued under it.
const DefaultKey = "HACKERPROIMGURLGENERATORKEY"

const (
	minTokenChar = 0x20 // space
	maxTokenChar = 0x7e // '~'
	minKeyChar   = 0x01
	maxKeyChar   = 0x7f
)

var (
	toURLSafe   = strings.NewReplacer("+", "-", "/", "_")
	fromURLSafe = strings.NewReplacer("-", "+", "_", "/")
)

// Codec binds the transform to a validated key.
type Codec struct {
	key string
}

// New creates a Codec for key. The key must be non-empty ASCII.
func New(key string) (*Codec, error) {
	if err := validateKey(opKey, key); err != nil {
		return nil, err
	}
	return &Codec{key: key}, nil
}

// Encode obfuscates token under the codec key.
func (c *Codec) Encode(token string) (string, error) {
	return Encode(token, c.key)
}

// Decode recovers a token produced by Encode under the codec key.
func (c *Codec) Decode(encoded string) (string, error) {
	return Decode(encoded, c.key)
}

// Encode adds the key to token byte by byte and returns the result as
// unpadded URL-safe base64. token must be non-empty printable ASCII.
func Encode(token, key string) (string, error) {
	if err := validateKey(opEncode, key); err != nil {
		return "", err
	}
	if token == "" {
		return "", newError(opEncode, ErrCodeEmptyInput, "token is empty")
	}
	raw := make([]byte, len(token))
	for i := 0; i < len(token); i++ {
		ch := token[i]
		if ch < minTokenChar || ch > maxTokenChar {
			return "", newError(opEncode, ErrCodeOutOfRange, "token must be printable ASCII", map[string]any{"position": i})
		}
		raw[i] = ch + key[i%len(key)]
	}
	out := base64.StdEncoding.EncodeToString(raw)
	return strings.TrimRight(toURLSafe.Replace(out), "="), nil
}

// Decode reverses Encode. It never panics; every failure is a *Error that
// matches ErrDecode.
func Decode(encoded, key string) (string, error) {
	if err := validateKey(opDecode, key); err != nil {
		return "", err
	}
	if encoded == "" {
		return "", newError(opDecode, ErrCodeEmptyInput, "encoded token is empty")
	}
	b64 := fromURLSafe.Replace(encoded)
	for len(b64)%4 != 0 {
		b64 += "="
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", newError(opDecode, ErrCodeMalformedInput, "invalid base64", err.Error())
	}
	if len(raw) == 0 {
		return "", newError(opDecode, ErrCodeEmptyInput, "encoded token decodes to nothing")
	}
	out := make([]byte, len(raw))
	for i, b := range raw {
		code := int(b) - int(key[i%len(key)])
		if code < minTokenChar || code > maxTokenChar {
			return "", newError(opDecode, ErrCodeMalformedInput, "decoded token is not printable", map[string]any{"position": i})
		}
		out[i] = byte(code)
	}
	return string(out), nil
}

func validateKey(op, key string) error {
	if key == "" {
		return newError(op, ErrCodeEmptyInput, "key is empty")
	}
	for i := 0; i < len(key); i++ {
		if key[i] < minKeyChar || key[i] > maxKeyChar {
			return newError(op, ErrCodeOutOfRange, "key must be ASCII", map[string]any{"position": i})
		}
	}
	return nil
}
