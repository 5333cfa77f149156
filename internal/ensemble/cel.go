package ensemble

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/osprey-risk/internal/domain"
)

// CELScorer evaluates a compiled CEL expression over the feature vector.
// Every feature is bound as a double variable of the same name, and the
// whole vector is also available as the map "features".
type CELScorer struct {
	expression string
	program    cel.Program
}

// newFeatureEnv builds the CEL environment shared by all expression scorers.
func newFeatureEnv() (*cel.Env, error) {
	opts := []cel.EnvOption{
		cel.Variable("features", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("low_confidence", cel.BoolType),
	}
	for _, name := range domain.FeatureNames {
		opts = append(opts, cel.Variable(name, cel.DoubleType))
	}
	return cel.NewEnv(opts...)
}

// NewCELScorer compiles expression. The expression must return a double,
// an int, or a bool.
func NewCELScorer(expression string) (*CELScorer, error) {
	env, err := newFeatureEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: failed to compile expression: %v", domain.ErrModelValidation, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("%w: expression must return bool, int, or double, got %s", domain.ErrModelValidation, outputType)
	}

	program, err := env.Program(ast, cel.InterruptCheckFrequency(100))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create program: %v", domain.ErrModelValidation, err)
	}

	return &CELScorer{expression: expression, program: program}, nil
}

// Expression returns the source expression.
func (c *CELScorer) Expression() string {
	return c.expression
}

// Score implements Scorer.
func (c *CELScorer) Score(ctx context.Context, fv *domain.FeatureVector) (float64, error) {
	values := fv.AsMap()
	activation := make(map[string]any, len(values)+2)
	for k, v := range values {
		activation[k] = v
	}
	activation["features"] = values
	activation["low_confidence"] = fv.LowConfidence

	out, _, err := c.program.ContextEval(ctx, activation)
	if err != nil {
		return 0, fmt.Errorf("evaluation error: %w", err)
	}
	return toScore(out)
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) (float64, error) {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0, nil
		}
		return 0.0, nil
	case types.Double:
		return float64(v), nil
	case types.Int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("unexpected CEL result type %s", val.Type())
	}
}
