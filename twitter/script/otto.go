package script

import (
	"context"
	"errors"
	"fmt"

	"github.com/robertkrimen/otto"
)

var errHalt = errors.New("script: interrupted")

// OttoMapper runs mapping scripts on otto.
type OttoMapper struct {
	name string
	src  string
}

// NewOttoMapper reads the script at path and checks that it compiles.
func NewOttoMapper(path string) (*OttoMapper, error) {
	src, err := readScript(path)
	if err != nil {
		return nil, err
	}
	return newOttoMapper(path, src)
}

func newOttoMapper(name, src string) (*OttoMapper, error) {
	if _, err := otto.New().Compile(name, src); err != nil {
		return nil, fmt.Errorf("compile script: %w", err)
	}
	return &OttoMapper{name: name, src: src}, nil
}

// Map implements Mapper.
func (m *OttoMapper) Map(ctx context.Context, body []byte) (res *Result, err error) {
	vm := otto.New()
	vm.Interrupt = make(chan func(), 1)
	_ = vm.Set("console", map[string]any{"log": consoleLog})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt <- func() { panic(errHalt) }
		case <-stop:
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			if r != errHalt {
				panic(r)
			}
			res, err = nil, fmt.Errorf("%s: %w", FuncName, ctx.Err())
		}
	}()

	if _, err := vm.Run(m.src); err != nil {
		return nil, fmt.Errorf("run script %s: %w", m.name, err)
	}
	if fn, err := vm.Get(FuncName); err != nil || !fn.IsFunction() {
		return nil, ErrNoFunction
	}
	if err := vm.Set("__body", string(body)); err != nil {
		return nil, err
	}

	value, err := vm.Run(entry)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", FuncName, err)
	}
	if value.IsNull() || value.IsUndefined() {
		return nil, nil
	}
	if !value.IsObject() {
		return nil, fmt.Errorf("%w, got %v", ErrBadResult, value)
	}
	exported, err := value.Export()
	if err != nil {
		return nil, fmt.Errorf("export result: %w", err)
	}
	return resultFromExport(exported)
}
