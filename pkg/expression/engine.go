// Package expression evaluates boolean step conditions with expr-lang. Compiled
// programs are cached per expression string.
package expression

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Function is a custom function callable from expressions
type Function func(params ...interface{}) (interface{}, error)

// Engine compiles and runs condition expressions
type Engine struct {
	programCache map[string]*vm.Program
	functions    map[string]Function
	now          func() time.Time
	mu           sync.RWMutex
}

// NewEngine creates a new expression engine
func NewEngine() *Engine {
	return &Engine{
		programCache: make(map[string]*vm.Program),
		functions:    make(map[string]Function),
		now:          time.Now,
	}
}

// WithClock replaces the clock used by TODAY()
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
	e.programCache = make(map[string]*vm.Program)
	return e
}

// RegisterFunction registers a custom function
func (e *Engine) RegisterFunction(name string, fn Function) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.functions[name] = fn
	// Clear cache as available functions changed
	e.programCache = make(map[string]*vm.Program)
}

// EvaluateBool runs a boolean expression against env
func (e *Engine) EvaluateBool(expression string, env map[string]interface{}) (bool, error) {
	program, err := e.getProgram(expression)
	if err != nil {
		return false, err
	}

	output, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", expression, err)
	}

	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q returned %T, want bool", expression, output)
	}
	return result, nil
}

// Validate compiles the expression without running it
func (e *Engine) Validate(expression string) error {
	_, err := e.getProgram(expression)
	return err
}

func (e *Engine) getProgram(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.programCache[expression]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double check
	if prog, ok := e.programCache[expression]; ok {
		return prog, nil
	}

	now := e.now
	options := []expr.Option{
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
		expr.Function("TODAY", func(params ...interface{}) (interface{}, error) {
			return now().Format("2006-01-02"), nil
		}),
		expr.Function("HAS_PREFIX", func(params ...interface{}) (interface{}, error) {
			if len(params) != 2 {
				return nil, fmt.Errorf("HAS_PREFIX requires 2 arguments")
			}
			s, ok1 := params[0].(string)
			prefix, ok2 := params[1].(string)
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("HAS_PREFIX arguments must be strings")
			}
			return strings.HasPrefix(s, prefix), nil
		}),
	}

	for name, fn := range e.functions {
		options = append(options, expr.Function(name, fn))
	}

	program, err := expr.Compile(expression, options...)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", expression, err)
	}

	e.programCache[expression] = program
	return program, nil
}
