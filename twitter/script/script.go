// Package script lets operators adapt twitvid to any resolver API by
// supplying a JavaScript file that defines
//
//	function mapResponse(body) { ... }
//
// body is the parsed JSON response. The function returns null when the API
// reported no video, or an object with any of the string properties hd, sd,
// audio, thumbnail, description and creator.
//
// Two engines are available: goja (default) and otto. Scripts are read and
// compiled once; every call runs in a fresh VM, so mappers are safe for
// concurrent use.
package script

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ytget/twitvid/internal/logger"
)

// FuncName is the function a mapping script must define.
const FuncName = "mapResponse"

// Engine names.
const (
	EngineGoja = "goja"
	EngineOtto = "otto"
)

// entry parses the body inside the VM so both engines see plain JS values.
const entry = FuncName + "(JSON.parse(__body))"

var (
	// ErrNoFunction is returned when the script does not define mapResponse.
	ErrNoFunction = errors.New("script: mapResponse is not defined")
	// ErrBadResult is returned when mapResponse returns neither null nor an object.
	ErrBadResult = errors.New("script: mapResponse must return an object or null")
)

var log = logger.WithComponent(logger.ComponentScript)

// Result is what a script extracted from a response.
type Result struct {
	HD          string
	SD          string
	Audio       string
	Thumbnail   string
	Description string
	Creator     string
}

// Mapper converts a raw JSON response body into a Result. A nil Result with
// a nil error means the API reported no video.
type Mapper interface {
	Map(ctx context.Context, body []byte) (*Result, error)
}

// New loads the script at path for the named engine ("" selects goja).
func New(engine, path string) (Mapper, error) {
	switch engine {
	case "", EngineGoja:
		return NewGojaMapper(path)
	case EngineOtto:
		return NewOttoMapper(path)
	default:
		return nil, fmt.Errorf("script: unknown engine %q", engine)
	}
}

func readScript(path string) (string, error) {
	if path == "" {
		return "", errors.New("script: path is empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}
	return string(b), nil
}

// resultFromExport builds a Result from an exported JS value.
func resultFromExport(v any) (*Result, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w, got %T", ErrBadResult, v)
	}
	return &Result{
		HD:          str(m["hd"]),
		SD:          str(m["sd"]),
		Audio:       str(m["audio"]),
		Thumbnail:   str(m["thumbnail"]),
		Description: str(m["description"]),
		Creator:     str(m["creator"]),
	}, nil
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// consoleLog forwards console.log from scripts to the script component.
func consoleLog(args ...any) {
	log.Debug("console.log", logger.Fields{"args": fmt.Sprint(args...)})
}
