package expressions

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// Acceptance guards see three maps of signals:
//
//	candidate  scorer signals of the proposed graph
//	prior      scorer signals of the graph it would replace
//	session    id, operation and history_depth
var guardVariables = []string{"candidate", "prior", "session"}

// CELEngine evaluates acceptance guards such as
// `candidate.quality_score >= prior.quality_score`. Safe for concurrent use.
type CELEngine struct {
	env      *cel.Env
	programs *programs[cel.Program]
}

// NewCELEngine builds the guard environment.
func NewCELEngine() (*CELEngine, error) {
	signals := cel.MapType(cel.StringType, cel.DynType)
	opts := make([]cel.EnvOption, 0, len(guardVariables))
	for _, name := range guardVariables {
		opts = append(opts, cel.Variable(name, signals))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create guard environment: %w", err)
	}
	return &CELEngine{env: env, programs: newPrograms[cel.Program]()}, nil
}

func (e *CELEngine) Name() string {
	return "cel"
}

// Compile type-checks a guard. Names outside the three guard maps are rejected.
func (e *CELEngine) Compile(expression string) error {
	_, err := e.program(expression)
	return err
}

// Evaluate runs a guard. A map missing from data is bound as empty, so a
// guard reading it fails with a missing-key error instead of a nil reference.
func (e *CELEngine) Evaluate(_ context.Context, expression string, data map[string]any) (any, error) {
	prg, err := e.program(expression)
	if err != nil {
		return nil, err
	}
	bindings := make(map[string]any, len(guardVariables))
	for _, name := range guardVariables {
		if v, ok := data[name]; ok && v != nil {
			bindings[name] = v
		} else {
			bindings[name] = map[string]any{}
		}
	}
	out, _, err := prg.Eval(bindings)
	if err != nil {
		return nil, evaluationFailed(e.Name(), expression, err)
	}
	return out.Value(), nil
}

func (e *CELEngine) program(expression string) (cel.Program, error) {
	if expression == "" {
		return nil, invalidExpression(e.Name(), expression, nil)
	}
	return e.programs.get(expression, func(src string) (cel.Program, error) {
		ast, issues := e.env.Compile(src)
		if issues != nil && issues.Err() != nil {
			return nil, invalidExpression(e.Name(), src, issues.Err())
		}
		prg, err := e.env.Program(ast)
		if err != nil {
			return nil, invalidExpression(e.Name(), src, err)
		}
		return prg, nil
	})
}

var _ Engine = (*CELEngine)(nil)
