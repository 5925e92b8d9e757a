package script

import (
	"context"
	"fmt"

	"github.com/dop251/goja"
)

// GojaMapper runs mapping scripts on goja.
type GojaMapper struct {
	name    string
	program *goja.Program
	call    *goja.Program
}

// NewGojaMapper reads and compiles the script at path.
func NewGojaMapper(path string) (*GojaMapper, error) {
	src, err := readScript(path)
	if err != nil {
		return nil, err
	}
	return newGojaMapper(path, src)
}

func newGojaMapper(name, src string) (*GojaMapper, error) {
	program, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, fmt.Errorf("compile script: %w", err)
	}
	call, err := goja.Compile("entry", entry, false)
	if err != nil {
		return nil, fmt.Errorf("compile entry: %w", err)
	}
	return &GojaMapper{name: name, program: program, call: call}, nil
}

// Map implements Mapper.
func (m *GojaMapper) Map(ctx context.Context, body []byte) (*Result, error) {
	vm := goja.New()
	_ = vm.Set("console", map[string]any{"log": consoleLog})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-stop:
		}
	}()

	if _, err := vm.RunProgram(m.program); err != nil {
		return nil, fmt.Errorf("run script %s: %w", m.name, err)
	}
	if _, ok := goja.AssertFunction(vm.Get(FuncName)); !ok {
		return nil, ErrNoFunction
	}
	if err := vm.Set("__body", string(body)); err != nil {
		return nil, err
	}

	res, err := vm.RunProgram(m.call)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", FuncName, err)
	}
	if goja.IsUndefined(res) || goja.IsNull(res) {
		return nil, nil
	}
	return resultFromExport(res.Export())
}
