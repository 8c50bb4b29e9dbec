package weights

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is matched by every *ValidationError.
var ErrInvalidInput = errors.New("invalid input")

// Kind tells validation failures apart.
type Kind int

const (
	// KindQuestionIndex means the question index is outside the schema.
	KindQuestionIndex Kind = iota + 1
	// KindWeightCount means the number of weights differs from the option count.
	KindWeightCount
	// KindWeightRange means a weight lies outside [0,10].
	KindWeightRange
	// KindWeightSyntax means the weight list could not be parsed.
	KindWeightSyntax
)

func (k Kind) String() string {
	switch k {
	case KindQuestionIndex:
		return "question_index"
	case KindWeightCount:
		return "weight_count"
	case KindWeightRange:
		return "weight_range"
	case KindWeightSyntax:
		return "weight_syntax"
	}
	return "unknown"
}

// ValidationError is a user-facing rejection of a weight edit. No write happens when one is
// returned.
type ValidationError struct {
	Kind    Kind
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Is lets errors.Is(err, ErrInvalidInput) match any validation failure.
func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

func invalid(kind Kind, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of a validation error in err's chain, or zero.
func KindOf(err error) Kind {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return 0
}
