package predictor

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/Conceptual-Machines/melody-api/internal/melody"
)

// ErrNoCandidates is returned when an LLM response carries no token that maps to a vocabulary symbol
var ErrNoCandidates = errors.New("no candidate maps to a vocabulary symbol")

// Named is implemented by predictors that report their backend and model
type Named interface {
	Name() string
	Model() string
}

// Usage is the token usage accumulated by an LLM-backed predictor
type Usage struct {
	Calls        int64 `json:"calls"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// UsageReporter is implemented by predictors that call a metered API
type UsageReporter interface {
	Usage() Usage
}

type usageCounter struct {
	calls  atomic.Int64
	input  atomic.Int64
	output atomic.Int64
}

func (u *usageCounter) add(input, output int64) {
	u.calls.Add(1)
	u.input.Add(input)
	u.output.Add(output)
}

func (u *usageCounter) snapshot() Usage {
	return Usage{
		Calls:        u.calls.Load(),
		InputTokens:  u.input.Load(),
		OutputTokens: u.output.Load(),
	}
}

// candidate is one alternative token for the next position with its log probability
type candidate struct {
	token   string
	logprob float64
}

// distributionFromCandidates turns top-k token alternatives into a distribution
// over the vocabulary. Tokens are trimmed before lookup, duplicates that map to
// the same symbol add up, and symbols with no candidate get zero probability.
func distributionFromCandidates(vocab *melody.Vocabulary, candidates []candidate) ([]float64, error) {
	dist := make([]float64, vocab.Size())
	mass := 0.0
	for _, c := range candidates {
		code, ok := vocab.Code(melody.Symbol(strings.TrimSpace(c.token)))
		if !ok || math.IsNaN(c.logprob) {
			continue
		}
		p := math.Exp(c.logprob)
		dist[code] += p
		mass += p
	}
	if !(mass > 0) {
		return nil, fmt.Errorf("%w (%d candidates)", ErrNoCandidates, len(candidates))
	}
	for i := range dist {
		dist[i] /= mass
	}
	return dist, nil
}

// windowMelody maps a context window back to symbols for prompting
func windowMelody(vocab *melody.Vocabulary, window []int) (melody.Melody, error) {
	if len(window) == 0 {
		return nil, errors.New("empty context window")
	}
	return vocab.Decode(window)
}
