package melody

import (
	"context"
	"fmt"
)

// Predictor returns the next-symbol probability distribution for a context window.
// The window always holds exactly WindowLength codes; implementations must not
// retain or modify it. The returned slice must have Vocabulary.Size() entries.
// Implementations are shared between concurrent generations.
type Predictor interface {
	Predict(ctx context.Context, window []int) ([]float64, error)
}

// PredictorFunc adapts a plain function to Predictor.
type PredictorFunc func(ctx context.Context, window []int) ([]float64, error)

func (f PredictorFunc) Predict(ctx context.Context, window []int) ([]float64, error) {
	return f(ctx, window)
}

// StopReason tells why the decoding loop ended. Both reasons are successful outcomes.
type StopReason string

const (
	StopBoundary StopReason = "boundary" // model emitted the boundary symbol
	StopBudget   StopReason = "budget"   // NumSteps exhausted
)

// State is the decoder's position in its WARMING -> STEPPING -> DONE lifecycle.
type State int

const (
	StateWarming State = iota
	StateStepping
	StateDone
)

func (s State) String() string {
	switch s {
	case StateWarming:
		return "warming"
	case StateStepping:
		return "stepping"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StepFunc observes each symbol appended to the melody. Returning an error aborts generation.
type StepFunc func(step int, symbol Symbol) error

// Params controls one generation call.
type Params struct {
	NumSteps     int     // maximum symbols to generate after the seed; 0 returns the seed
	WindowLength int     // context length the model expects
	Temperature  float64 // sampling sharpness, > 0

	// Sampler overrides the decoder's sampler for this call (e.g. a seeded one).
	Sampler *Sampler
	OnStep  StepFunc
}

// Validate checks the numeric parameters.
func (p Params) Validate() error {
	if p.NumSteps < 0 {
		return &InvalidParameterError{Name: "num_steps", Value: p.NumSteps, Reason: "must not be negative"}
	}
	if p.WindowLength <= 0 {
		return &InvalidParameterError{Name: "window_length", Value: p.WindowLength, Reason: "must be positive"}
	}
	if !(p.Temperature > 0) {
		return &InvalidParameterError{Name: "temperature", Value: p.Temperature, Reason: "must be strictly positive"}
	}
	return nil
}

// Result is a finished generation.
type Result struct {
	Melody     Melody
	SeedLength int
	Generated  int // symbols appended after the seed
	Steps      int // model queries made
	StopReason StopReason
}

// Decoder runs the autoregressive generation loop. The vocabulary, predictor
// and sampler are shared; everything else is owned by a single Generate call.
type Decoder struct {
	vocab     *Vocabulary
	predictor Predictor
	sampler   *Sampler
}

// NewDecoder wires a decoder. A nil sampler gets a randomly seeded one.
func NewDecoder(vocab *Vocabulary, predictor Predictor, sampler *Sampler) *Decoder {
	if sampler == nil {
		sampler = NewSampler(nil)
	}
	return &Decoder{vocab: vocab, predictor: predictor, sampler: sampler}
}

// Vocabulary returns the decoder's vocabulary.
func (d *Decoder) Vocabulary() *Vocabulary {
	return d.vocab
}

// Generate extends seed by up to params.NumSteps symbols. The context starts
// as WindowLength boundary symbols followed by the seed; the boundary padding
// never appears in the returned melody. The loop stops early when the model
// emits the boundary symbol, which is discarded. ctx is checked between steps.
func (d *Decoder) Generate(ctx context.Context, seed Melody, params Params) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	sampler := params.Sampler
	if sampler == nil {
		sampler = d.sampler
	}

	run := &decodeRun{state: StateWarming}
	seedCodes, err := d.vocab.Encode(seed)
	if err != nil {
		return nil, err
	}
	boundary, _ := d.vocab.Code(Boundary)

	window := make([]int, 0, params.WindowLength+len(seedCodes)+1)
	for range params.WindowLength {
		window = append(window, boundary)
	}
	window = append(window, seedCodes...)

	result := &Result{
		Melody:     seed.clone(),
		SeedLength: len(seed),
		StopReason: StopBudget,
	}
	run.transition(StateStepping)

	for step := 0; step < params.NumSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if len(window) > params.WindowLength {
			// Shift instead of reslicing so the backing array does not grow with the melody.
			n := copy(window, window[len(window)-params.WindowLength:])
			window = window[:n]
		}

		dist, err := d.predictor.Predict(ctx, window)
		if err != nil {
			return nil, &PredictorError{Step: step, Err: err}
		}
		result.Steps++
		if len(dist) != d.vocab.Size() {
			return nil, &InvalidParameterError{
				Name:   "distribution",
				Value:  len(dist),
				Reason: fmt.Sprintf("model returned %d probabilities for a vocabulary of %d symbols", len(dist), d.vocab.Size()),
			}
		}

		code, err := sampler.Sample(dist, params.Temperature)
		if err != nil {
			return nil, err
		}
		window = append(window, code)

		symbol, ok := d.vocab.Symbol(code)
		if !ok {
			return nil, &DecodingError{Code: code, Step: step}
		}
		if symbol == Boundary {
			result.StopReason = StopBoundary
			break
		}

		result.Melody = append(result.Melody, symbol)
		result.Generated++
		if params.OnStep != nil {
			if err := params.OnStep(step, symbol); err != nil {
				return nil, err
			}
		}
	}

	run.transition(StateDone)
	return result, nil
}

type decodeRun struct {
	state State
}

// transition only moves forward through the lifecycle.
func (r *decodeRun) transition(next State) {
	if next <= r.state {
		panic(fmt.Sprintf("melody: invalid decoder transition %s -> %s", r.state, next))
	}
	r.state = next
}
