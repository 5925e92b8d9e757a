/*
Package shortcode implements the reversible short-code obfuscation used in
shareable image links.

A short code (a Token) is a few random base36 characters that identify an
uploaded image in the metadata store. Before a Token is placed in a URL it is
passed through a keyed additive stream transform and URL-safe base64, so that
links do not visibly expose the lookup key:

	encoded = base64url( token[i] + key[i mod len(key)] ... )

The transform is NOT cryptographically secure. It has no diffusion, the key
is a shared constant and anyone holding one link can recover it. It exists
only to make codes look non-sequential. Links already issued depend on the
exact transform, so it must stay bit-for-bit stable.

# Usage

	codec, err := shortcode.New(shortcode.DefaultKey)
	if err != nil {
		return err
	}
	encoded, err := codec.Encode("ab3f9z") // "qaN2sX7M"
	token, err := codec.Decode(encoded)    // "ab3f9z"

Decode never panics. Any failure (empty input, bad base64, output that could
not have come from Encode) is returned as a *Error that also matches ErrDecode:

	token, err := codec.Decode(segment)
	if err != nil {
		// treat exactly like "link not found"
	}

# Error Codes

- EMPTY_INPUT: token, key or encoded string is empty
- OUT_OF_RANGE: token or key contains characters outside the supported ASCII range
- MALFORMED_INPUT: encoded string is not valid URL-safe base64 or does not decode to a printable token

# Thread Safety

Codec is immutable after New and safe for concurrent use.
*/
package shortcode
