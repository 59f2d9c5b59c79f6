package engine

import (
	"fmt"

	"github.com/expr-lang/expr"
)

// EvaluateCondition compiles and runs a boolean expression against the run's
// environment. Undefined variables are allowed so a condition over optional
// trigger fields does not fail at compile time; a non-boolean result is an
// evaluation error.
func EvaluateCondition(condition string, env map[string]any) (bool, error) {
	if condition == "" {
		return false, fmt.Errorf("condition expression is empty")
	}

	program, err := expr.Compile(condition, expr.Env(env), expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return false, fmt.Errorf("failed to compile condition '%s': %w", condition, err)
	}

	output, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate condition '%s': %w", condition, err)
	}

	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("condition '%s' did not evaluate to a boolean", condition)
	}

	return result, nil
}
