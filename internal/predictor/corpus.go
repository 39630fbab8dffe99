package predictor

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/Conceptual-Machines/melody-api/internal/melody"
)

const (
	// DefaultDecay keeps some memory of the previous symbols so held notes
	// do not forget which pitch they are holding.
	DefaultDecay     = 0.35
	DefaultSmoothing = 0.01
)

// SequencesFromCorpus encodes a reference corpus with one melody per line.
// Blank lines and lines starting with '#' are skipped. Every melody is framed
// by boundary symbols so the model learns how melodies start and end.
func SequencesFromCorpus(vocab *melody.Vocabulary, corpus string) ([][]int, error) {
	boundary, ok := vocab.Code(melody.Boundary)
	if !ok {
		return nil, fmt.Errorf("vocabulary has no boundary symbol")
	}

	var sequences [][]int
	scanner := bufio.NewScanner(strings.NewReader(corpus))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		codes, err := vocab.Encode(melody.ParseSeed(text))
		if err != nil {
			return nil, fmt.Errorf("corpus line %d: %w", line, err)
		}
		seq := make([]int, 0, len(codes)+2)
		seq = append(seq, boundary)
		seq = append(seq, codes...)
		seq = append(seq, boundary)
		sequences = append(sequences, seq)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}
	return sequences, nil
}

// NewCorpusModel estimates a transition model from a reference corpus
func NewCorpusModel(vocab *melody.Vocabulary, corpus string, decay, smoothing float64) (*TransitionModel, error) {
	sequences, err := SequencesFromCorpus(vocab, corpus)
	if err != nil {
		return nil, err
	}
	if len(sequences) == 0 {
		return nil, fmt.Errorf("%w: corpus has no melodies", ErrInvalidModel)
	}
	rows, err := EstimateTransitions(sequences, vocab.Size(), smoothing)
	if err != nil {
		return nil, err
	}
	return NewTransitionModel(rows, decay)
}
