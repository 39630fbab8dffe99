package melody

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks. Every typed error below unwraps to one of them.
var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrUnknownSymbol    = errors.New("unknown symbol")
	ErrDecoding         = errors.New("decoding error")
	ErrMalformedSymbol  = errors.New("malformed symbol")
	ErrPredictor        = errors.New("predictor failed")
	ErrInvalidMapping   = errors.New("invalid vocabulary mapping")
)

// InvalidParameterError reports a generation or encoding parameter outside its domain.
type InvalidParameterError struct {
	Name   string
	Value  any
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%v: %s", e.Name, e.Value, e.Reason)
}

func (e *InvalidParameterError) Unwrap() error { return ErrInvalidParameter }

// UnknownSymbolError reports a seed token that is not part of the vocabulary.
type UnknownSymbolError struct {
	Symbol   Symbol
	Position int
}

func (e *UnknownSymbolError) Error() string {
	return fmt.Sprintf("unknown symbol %q at position %d", e.Symbol, e.Position)
}

func (e *UnknownSymbolError) Unwrap() error { return ErrUnknownSymbol }

// DecodingError reports a sampled code with no symbol in the vocabulary.
// It means the model and the vocabulary disagree on the output space.
type DecodingError struct {
	Code int
	Step int
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("sampled code %d at step %d has no symbol in the vocabulary", e.Code, e.Step)
}

func (e *DecodingError) Unwrap() error { return ErrDecoding }

// MalformedSymbolError reports a melody token that is neither a pitch, a rest nor a hold.
type MalformedSymbolError struct {
	Symbol   Symbol
	Position int
}

func (e *MalformedSymbolError) Error() string {
	return fmt.Sprintf("malformed symbol %q at position %d", e.Symbol, e.Position)
}

func (e *MalformedSymbolError) Unwrap() error { return ErrMalformedSymbol }

// PredictorError reports a failed model query. It matches both ErrPredictor
// and the underlying cause.
type PredictorError struct {
	Step int
	Err  error
}

func (e *PredictorError) Error() string {
	return fmt.Sprintf("predictor failed at step %d: %v", e.Step, e.Err)
}

func (e *PredictorError) Unwrap() []error { return []error{ErrPredictor, e.Err} }
