package predictor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"
)

// ErrInvalidModel is returned for malformed transition model files or matrices
var ErrInvalidModel = errors.New("invalid transition model")

// TransitionFile is the on-disk JSON form of a TransitionModel
type TransitionFile struct {
	Decay  float64     `json:"decay"`
	Matrix [][]float64 `json:"matrix"`
}

// TransitionModel predicts the next symbol from a row-stochastic V x V
// transition matrix. The context window is one-hot encoded, rows are weighted
// by recency (weight decay^age, so the newest symbol has weight 1) and summed
// into a context profile, which is then pushed through the matrix.
// A decay of 0 gives a first-order Markov model on the last symbol.
// The model is immutable and safe for concurrent use.
type TransitionModel struct {
	matrix *mat.Dense
	decay  float64
	size   int
}

// NewTransitionModel validates and row-normalizes rows. Rows without mass become uniform.
func NewTransitionModel(rows [][]float64, decay float64) (*TransitionModel, error) {
	if math.IsNaN(decay) || decay < 0 || decay >= 1 {
		return nil, fmt.Errorf("%w: decay must be in [0, 1), got %v", ErrInvalidModel, decay)
	}
	size := len(rows)
	if size == 0 {
		return nil, fmt.Errorf("%w: empty matrix", ErrInvalidModel)
	}

	data := make([]float64, 0, size*size)
	for i, row := range rows {
		if len(row) != size {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrInvalidModel, i, len(row), size)
		}
		sum := 0.0
		for j, p := range row {
			if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
				return nil, fmt.Errorf("%w: entry (%d,%d) = %v", ErrInvalidModel, i, j, p)
			}
			sum += p
		}
		for _, p := range row {
			if sum == 0 {
				data = append(data, 1/float64(size))
				continue
			}
			data = append(data, p/sum)
		}
	}

	return &TransitionModel{
		matrix: mat.NewDense(size, size, data),
		decay:  decay,
		size:   size,
	}, nil
}

// ParseTransitionModel decodes a TransitionFile
func ParseTransitionModel(data []byte) (*TransitionModel, error) {
	var file TransitionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	return NewTransitionModel(file.Matrix, file.Decay)
}

// LoadTransitionModel reads a TransitionFile from path
func LoadTransitionModel(path string) (*TransitionModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transition model: %w", err)
	}
	return ParseTransitionModel(data)
}

// Size is the vocabulary size the model was built for
func (m *TransitionModel) Size() int {
	return m.size
}

// Name returns the backend name
func (m *TransitionModel) Name() string {
	return BackendTransition
}

// Model describes the model configuration
func (m *TransitionModel) Model() string {
	return fmt.Sprintf("markov-decay-%.2f", m.decay)
}

// Predict implements melody.Predictor
func (m *TransitionModel) Predict(ctx context.Context, window []int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(window) == 0 {
		return nil, errors.New("empty context window")
	}

	encoded, err := OneHot(window, m.size)
	if err != nil {
		return nil, err
	}

	weights := mat.NewVecDense(len(window), recencyWeights(len(window), m.decay))

	// profile (V) = onehot^T (V x L) * weights (L)
	var profile mat.VecDense
	profile.MulVec(encoded.T(), weights)

	// next (V) = matrix^T (V x V) * profile (V)
	var next mat.VecDense
	next.MulVec(m.matrix.T(), &profile)

	return normalize(next.RawVector().Data)
}

// Matrix returns a copy of the normalized transition matrix
func (m *TransitionModel) Matrix() [][]float64 {
	rows := make([][]float64, m.size)
	for i := range rows {
		rows[i] = mat.Row(nil, i, m.matrix)
	}
	return rows
}

// MarshalJSON writes the model in TransitionFile form
func (m *TransitionModel) MarshalJSON() ([]byte, error) {
	return json.Marshal(TransitionFile{Decay: m.decay, Matrix: m.Matrix()})
}

// EstimateTransitions counts symbol bigrams over sequences of codes with
// add-k smoothing. Codes outside 0..size-1 are an error.
func EstimateTransitions(sequences [][]int, size int, smoothing float64) ([][]float64, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive", ErrInvalidModel)
	}
	if smoothing < 0 {
		return nil, fmt.Errorf("%w: smoothing must not be negative", ErrInvalidModel)
	}

	counts := mat.NewDense(size, size, nil)
	for _, seq := range sequences {
		for i := 1; i < len(seq); i++ {
			from, to := seq[i-1], seq[i]
			if from < 0 || from >= size || to < 0 || to >= size {
				return nil, fmt.Errorf("%w: code out of range in transition %d -> %d", ErrInvalidModel, from, to)
			}
			counts.Set(from, to, counts.At(from, to)+1)
		}
	}

	rows := make([][]float64, size)
	for i := range rows {
		row := mat.Row(nil, i, counts)
		for j := range row {
			row[j] += smoothing
		}
		rows[i] = row
	}
	return rows, nil
}

// recencyWeights returns decay^(n-1-i) for i in 0..n-1
func recencyWeights(n int, decay float64) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = math.Pow(decay, float64(n-1-i))
	}
	return w
}

func normalize(v []float64) ([]float64, error) {
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	if !(sum > 0) {
		return nil, errors.New("model produced no probability mass")
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / sum
	}
	return out, nil
}
