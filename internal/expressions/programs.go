package expressions

import (
	"sync"

	"github.com/rendis/pathway/pkg/schema"
)

// programs memoizes compiled expressions by source text. Rules, guards and
// extraction queries are fixed per process, so entries are never evicted.
type programs[P any] struct {
	mu       sync.RWMutex
	compiled map[string]P
}

func newPrograms[P any]() *programs[P] {
	return &programs[P]{compiled: make(map[string]P)}
}

// get returns the program for expression, compiling it once.
func (p *programs[P]) get(expression string, compile func(string) (P, error)) (P, error) {
	p.mu.RLock()
	prg, ok := p.compiled[expression]
	p.mu.RUnlock()
	if ok {
		return prg, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if prg, ok := p.compiled[expression]; ok {
		return prg, nil
	}
	prg, err := compile(expression)
	if err != nil {
		return prg, err
	}
	p.compiled[expression] = prg
	return prg, nil
}

func (p *programs[P]) len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.compiled)
}

// invalidExpression reports an expression that cannot be compiled.
func invalidExpression(engine, expression string, cause error) *schema.PathwayError {
	if expression == "" {
		return schema.NewErrorf(schema.ErrCodeInvalidExpression, "%s expression is empty", engine).
			WithDetails(map[string]any{"engine": engine})
	}
	return schema.NewErrorf(schema.ErrCodeInvalidExpression,
		"%s expression %q does not compile: %v", engine, expression, cause).
		WithCause(cause).
		WithDetails(map[string]any{"engine": engine, "expression": expression})
}

// evaluationFailed reports a compiled expression that failed at run time.
func evaluationFailed(engine, expression string, cause error) *schema.PathwayError {
	return schema.NewErrorf(schema.ErrCodeExpression,
		"%s expression %q failed: %v", engine, expression, cause).
		WithCause(cause).
		WithDetails(map[string]any{"engine": engine, "expression": expression})
}
