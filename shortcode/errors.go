package shortcode

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error codes
const (
	ErrCodeEmptyInput     = "EMPTY_INPUT"
	ErrCodeOutOfRange     = "OUT_OF_RANGE"
	ErrCodeMalformedInput = "MALFORMED_INPUT"
)

const (
	opEncode = "encode"
	opDecode = "decode"
	opKey    = "key"
)

// ErrDecode matches every error returned by Decode.
var ErrDecode = errors.New("shortcode: decode failed")

// Error represents a structured error with code and details
type Error struct {
	Op      string `json:"op"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether the error is a decode failure when target is ErrDecode.
func (e *Error) Is(target error) bool {
	return target == ErrDecode && e.Op == opDecode
}

// MarshalJSON implements json.Marshaler
func (e *Error) MarshalJSON() ([]byte, error) {
	type Alias Error
	return json.Marshal(&struct {
		*Alias
		Error string `json:"error"`
	}{
		Alias: (*Alias)(e),
		Error: e.Error(),
	})
}

func newError(op, code, message string, details ...any) *Error {
	e := &Error{
		Op:      op,
		Code:    code,
		Message: message,
	}
	if len(details) > 0 {
		e.Details = details[0]
	}
	return e
}

// IsEmpty returns true if the error is an empty input error
func IsEmpty(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeEmptyInput
}

// IsOutOfRange returns true if the error is an out of range error
func IsOutOfRange(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeOutOfRange
}

// IsMalformed returns true if the error is a malformed input error
func IsMalformed(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeMalformedInput
}
