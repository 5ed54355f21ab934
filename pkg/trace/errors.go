package trace

import "errors"

var (
	// ErrInvalidLiteral is returned when literal text cannot be read as a value.
	ErrInvalidLiteral = errors.New("invalid literal")

	// ErrEvaluation wraps every failure to evaluate a fragment.
	ErrEvaluation = errors.New("evaluation failed")

	ErrUndefinedIdentifier = errors.New("undefined identifier")
	ErrTypeError           = errors.New("type error")
	ErrUnbalancedFragment  = errors.New("unbalanced fragment")
	ErrStepLimit           = errors.New("step limit exceeded")
)
