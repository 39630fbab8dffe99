package melody

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testVocabulary is {"60":0,"r":1,"_":2,"/":3,"62":4,"64":5}
func testVocabulary(t *testing.T) *Vocabulary {
	t.Helper()
	vocab, err := NewVocabulary(map[string]int{"60": 0, "r": 1, "_": 2, "/": 3, "62": 4, "64": 5})
	require.NoError(t, err)
	return vocab
}

// fixedPredictor always returns the same distribution and records the windows it saw
type fixedPredictor struct {
	dist    []float64
	windows [][]int
}

func (p *fixedPredictor) Predict(_ context.Context, window []int) ([]float64, error) {
	w := make([]int, len(window))
	copy(w, window)
	p.windows = append(p.windows, w)
	return p.dist, nil
}

// oneHot returns a distribution with all mass on code
func oneHot(size, code int) []float64 {
	d := make([]float64, size)
	d[code] = 1
	return d
}

func TestParseSeed(t *testing.T) {
	m := ParseSeed("  60 _ r\t_\n62 ")
	assert.Equal(t, Melody{"60", "_", "r", "_", "62"}, m)
	assert.Equal(t, "60 _ r _ 62", m.String())
	assert.Empty(t, ParseSeed("   "))
}

func TestNewVocabulary(t *testing.T) {
	tests := []struct {
		name    string
		mapping map[string]int
		wantErr bool
	}{
		{"valid", map[string]int{"60": 0, "r": 1, "_": 2, "/": 3}, false},
		{"duplicate code", map[string]int{"60": 0, "r": 0, "_": 2, "/": 3}, true},
		{"code out of range", map[string]int{"60": 7, "r": 1, "_": 2, "/": 3}, true},
		{"negative code", map[string]int{"60": -1, "r": 1, "_": 2, "/": 3}, true},
		{"missing boundary", map[string]int{"60": 0, "r": 1, "_": 2}, true},
		{"missing hold", map[string]int{"60": 0, "r": 1, "/": 2}, true},
		{"empty", map[string]int{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vocab, err := NewVocabulary(tt.mapping)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidMapping)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.mapping), vocab.Size())
		})
	}
}

func TestVocabularyTwoWayLookup(t *testing.T) {
	vocab := testVocabulary(t)

	for symbol, code := range vocab.Mapping() {
		got, ok := vocab.Symbol(code)
		require.True(t, ok)
		assert.Equal(t, Symbol(symbol), got)

		back, ok := vocab.Code(got)
		require.True(t, ok)
		assert.Equal(t, code, back)
	}

	_, ok := vocab.Symbol(99)
	assert.False(t, ok)
	_, ok = vocab.Symbol(-1)
	assert.False(t, ok)

	_, err := vocab.Decode([]int{0, 42})
	var decErr *DecodingError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, 42, decErr.Code)
}

func TestParseVocabulary(t *testing.T) {
	vocab, err := ParseVocabulary([]byte(`{"60": 0, "r": 1, "_": 2, "/": 3}`))
	require.NoError(t, err)
	assert.Equal(t, []Symbol{"60", "r", "_", "/"}, vocab.Symbols())

	_, err = ParseVocabulary([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidMapping)
}

func TestRescale(t *testing.T) {
	dist := []float64{0.1, 0.2, 0.7}

	t.Run("temperature one reproduces the distribution", func(t *testing.T) {
		got, err := Rescale(dist, 1)
		require.NoError(t, err)
		for i := range dist {
			assert.InDelta(t, dist[i], got[i], 1e-12)
		}
	})

	t.Run("low temperature sharpens towards arg-max", func(t *testing.T) {
		got, err := Rescale(dist, 0.01)
		require.NoError(t, err)
		assert.Greater(t, got[2], 0.999)
	})

	t.Run("tiny temperature underflow still yields arg-max", func(t *testing.T) {
		got, err := Rescale([]float64{0.3, 0.6, 0.1}, 1e-320)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 1, 0}, got)
	})

	t.Run("high temperature flattens towards uniform", func(t *testing.T) {
		got, err := Rescale(dist, 1e6)
		require.NoError(t, err)
		for _, p := range got {
			assert.InDelta(t, 1.0/3, p, 1e-5)
		}
	})

	t.Run("zero probability stays zero without NaN", func(t *testing.T) {
		for _, temp := range []float64{0.01, 0.5, 1, 10, math.Inf(1)} {
			got, err := Rescale([]float64{0, 0.5, 0.5, 0}, temp)
			require.NoError(t, err)
			assert.Equal(t, 0.0, got[0])
			assert.Equal(t, 0.0, got[3])
			sum := 0.0
			for _, p := range got {
				assert.False(t, math.IsNaN(p))
				sum += p
			}
			assert.InDelta(t, 1.0, sum, 1e-12)
		}
	})

	t.Run("invalid inputs", func(t *testing.T) {
		_, err := Rescale(dist, 0)
		assert.ErrorIs(t, err, ErrInvalidParameter)
		_, err = Rescale(dist, -1)
		assert.ErrorIs(t, err, ErrInvalidParameter)
		_, err = Rescale(dist, math.NaN())
		assert.ErrorIs(t, err, ErrInvalidParameter)
		_, err = Rescale([]float64{0, 0}, 1)
		assert.ErrorIs(t, err, ErrInvalidParameter)
		_, err = Rescale([]float64{0.5, -0.5}, 1)
		assert.ErrorIs(t, err, ErrInvalidParameter)
		_, err = Rescale(nil, 1)
		assert.ErrorIs(t, err, ErrInvalidParameter)
	})
}

func TestSamplerLowTemperatureIsGreedy(t *testing.T) {
	sampler := NewSeededSampler(7)
	dist := []float64{0.05, 0.05, 0.8, 0.1}

	for range 1000 {
		code, err := sampler.Sample(dist, 0.01)
		require.NoError(t, err)
		assert.Equal(t, 2, code)
	}
}

func TestSamplerHighTemperatureIsUniform(t *testing.T) {
	sampler := NewSeededSampler(11)
	dist := []float64{0.97, 0.01, 0.01, 0.01}
	const draws = 40000

	counts := make([]int, len(dist))
	for range draws {
		code, err := sampler.Sample(dist, 1000)
		require.NoError(t, err)
		counts[code]++
	}
	for _, c := range counts {
		assert.InDelta(t, 0.25, float64(c)/draws, 0.02)
	}
}

func TestSamplerNeverPicksZeroMass(t *testing.T) {
	sampler := NewSeededSampler(3)
	dist := []float64{0, 0.5, 0, 0.5}
	for range 2000 {
		code, err := sampler.Sample(dist, 2)
		require.NoError(t, err)
		assert.Contains(t, []int{1, 3}, code)
	}
}

func TestSamplerSeedIsReproducible(t *testing.T) {
	dist := []float64{0.25, 0.25, 0.25, 0.25}
	a, b := NewSeededSampler(42), NewSeededSampler(42)
	for range 100 {
		x, err := a.Sample(dist, 1)
		require.NoError(t, err)
		y, err := b.Sample(dist, 1)
		require.NoError(t, err)
		assert.Equal(t, x, y)
	}
}

func TestGenerateZeroStepsReturnsSeed(t *testing.T) {
	vocab, err := NewVocabulary(map[string]int{"60": 0, "r": 1, "_": 2, "/": 3})
	require.NoError(t, err)
	predictor := &fixedPredictor{dist: oneHot(4, 0)}
	decoder := NewDecoder(vocab, predictor, NewSeededSampler(1))

	seed := ParseSeed("60 _ r _")
	result, err := decoder.Generate(context.Background(), seed, Params{NumSteps: 0, WindowLength: 4, Temperature: 1})
	require.NoError(t, err)
	assert.Equal(t, seed, result.Melody)
	assert.Equal(t, 0, result.Generated)
	assert.Equal(t, StopBudget, result.StopReason)
	assert.Empty(t, predictor.windows)
}

func TestGenerateRunsFullBudget(t *testing.T) {
	vocab := testVocabulary(t)
	predictor := &fixedPredictor{dist: oneHot(vocab.Size(), 4)} // always "62"
	decoder := NewDecoder(vocab, predictor, NewSeededSampler(1))

	seed := ParseSeed("60 _")
	result, err := decoder.Generate(context.Background(), seed, Params{NumSteps: 5, WindowLength: 3, Temperature: 0.5})
	require.NoError(t, err)

	assert.Equal(t, Melody{"60", "_", "62", "62", "62", "62", "62"}, result.Melody)
	assert.Equal(t, 5, result.Generated)
	assert.Equal(t, 5, result.Steps)
	assert.Equal(t, StopBudget, result.StopReason)
	assert.Equal(t, seed, result.Melody[:len(seed)])
}

func TestGenerateSlidingWindow(t *testing.T) {
	vocab := testVocabulary(t)
	predictor := &fixedPredictor{dist: oneHot(vocab.Size(), 5)} // always "64"
	decoder := NewDecoder(vocab, predictor, NewSeededSampler(1))

	_, err := decoder.Generate(context.Background(), ParseSeed("60 r"), Params{NumSteps: 3, WindowLength: 4, Temperature: 1})
	require.NoError(t, err)

	// boundary = 3, "60" = 0, "r" = 1, "64" = 5
	require.Len(t, predictor.windows, 3)
	assert.Equal(t, []int{3, 3, 0, 1}, predictor.windows[0])
	assert.Equal(t, []int{3, 0, 1, 5}, predictor.windows[1])
	assert.Equal(t, []int{0, 1, 5, 5}, predictor.windows[2])
	for _, w := range predictor.windows {
		assert.Len(t, w, 4)
	}
}

func TestGenerateShortSeedIsPadded(t *testing.T) {
	vocab := testVocabulary(t)
	predictor := &fixedPredictor{dist: oneHot(vocab.Size(), 0)}
	decoder := NewDecoder(vocab, predictor, nil)

	_, err := decoder.Generate(context.Background(), Melody{}, Params{NumSteps: 1, WindowLength: 3, Temperature: 1})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{3, 3, 3}}, predictor.windows)
}

func TestGenerateStopsOnBoundary(t *testing.T) {
	vocab := testVocabulary(t)
	calls := 0
	predictor := PredictorFunc(func(_ context.Context, _ []int) ([]float64, error) {
		calls++
		if calls == 3 {
			return oneHot(vocab.Size(), 3), nil // boundary
		}
		return oneHot(vocab.Size(), 2), nil // hold
	})
	decoder := NewDecoder(vocab, predictor, NewSeededSampler(1))

	result, err := decoder.Generate(context.Background(), ParseSeed("64"), Params{NumSteps: 100, WindowLength: 8, Temperature: 1})
	require.NoError(t, err)
	assert.Equal(t, Melody{"64", "_", "_"}, result.Melody)
	assert.Equal(t, StopBoundary, result.StopReason)
	assert.Equal(t, 3, result.Steps)
	assert.NotContains(t, result.Melody, Boundary)
}

func TestGenerateLengthBounds(t *testing.T) {
	vocab := testVocabulary(t)
	uniform := make([]float64, vocab.Size())
	for i := range uniform {
		uniform[i] = 1 / float64(len(uniform))
	}
	decoder := NewDecoder(vocab, &fixedPredictor{dist: uniform}, NewSeededSampler(99))
	seed := ParseSeed("60 _ 62 _ r")

	for range 200 {
		result, err := decoder.Generate(context.Background(), seed, Params{NumSteps: 10, WindowLength: 6, Temperature: 1})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(result.Melody), len(seed))
		assert.LessOrEqual(t, len(result.Melody), len(seed)+10)
		assert.Equal(t, seed, result.Melody[:len(seed)])
		if len(result.Melody) < len(seed)+10 {
			assert.Equal(t, StopBoundary, result.StopReason)
		}
	}
}

func TestGenerateDoesNotAliasSeed(t *testing.T) {
	vocab := testVocabulary(t)
	decoder := NewDecoder(vocab, &fixedPredictor{dist: oneHot(vocab.Size(), 0)}, nil)

	seed := make(Melody, 1, 8)
	seed[0] = "62"
	result, err := decoder.Generate(context.Background(), seed, Params{NumSteps: 2, WindowLength: 2, Temperature: 1})
	require.NoError(t, err)
	result.Melody[0] = "64"
	assert.Equal(t, Symbol("62"), seed[0])
}

func TestGenerateErrors(t *testing.T) {
	vocab := testVocabulary(t)
	ok := &fixedPredictor{dist: oneHot(vocab.Size(), 0)}

	t.Run("unknown seed symbol", func(t *testing.T) {
		decoder := NewDecoder(vocab, ok, nil)
		_, err := decoder.Generate(context.Background(), ParseSeed("60 99"), Params{NumSteps: 1, WindowLength: 2, Temperature: 1})
		var unknown *UnknownSymbolError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, Symbol("99"), unknown.Symbol)
		assert.Equal(t, 1, unknown.Position)
	})

	t.Run("zero temperature fails fast", func(t *testing.T) {
		decoder := NewDecoder(vocab, ok, nil)
		_, err := decoder.Generate(context.Background(), ParseSeed("60"), Params{NumSteps: 1, WindowLength: 2, Temperature: 0})
		assert.ErrorIs(t, err, ErrInvalidParameter)
	})

	t.Run("invalid window and steps", func(t *testing.T) {
		decoder := NewDecoder(vocab, ok, nil)
		_, err := decoder.Generate(context.Background(), ParseSeed("60"), Params{NumSteps: 1, WindowLength: 0, Temperature: 1})
		assert.ErrorIs(t, err, ErrInvalidParameter)
		_, err = decoder.Generate(context.Background(), ParseSeed("60"), Params{NumSteps: -1, WindowLength: 2, Temperature: 1})
		assert.ErrorIs(t, err, ErrInvalidParameter)
	})

	t.Run("distribution size mismatch", func(t *testing.T) {
		decoder := NewDecoder(vocab, &fixedPredictor{dist: []float64{1}}, nil)
		_, err := decoder.Generate(context.Background(), ParseSeed("60"), Params{NumSteps: 1, WindowLength: 2, Temperature: 1})
		assert.ErrorIs(t, err, ErrInvalidParameter)
	})

	t.Run("predictor failure is wrapped", func(t *testing.T) {
		boom := errors.New("boom")
		decoder := NewDecoder(vocab, PredictorFunc(func(context.Context, []int) ([]float64, error) {
			return nil, boom
		}), nil)
		_, err := decoder.Generate(context.Background(), ParseSeed("60"), Params{NumSteps: 1, WindowLength: 2, Temperature: 1})
		assert.ErrorIs(t, err, boom)
		assert.ErrorIs(t, err, ErrPredictor)
		var failed *PredictorError
		require.ErrorAs(t, err, &failed)
		assert.Equal(t, 0, failed.Step)
	})

	t.Run("cancelled context stops between steps", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		decoder := NewDecoder(vocab, PredictorFunc(func(context.Context, []int) ([]float64, error) {
			calls++
			cancel()
			return oneHot(vocab.Size(), 0), nil
		}), nil)
		result, err := decoder.Generate(ctx, ParseSeed("60"), Params{NumSteps: 10, WindowLength: 2, Temperature: 1})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, result)
		assert.Equal(t, 1, calls)
	})

	t.Run("step observer can abort", func(t *testing.T) {
		stop := errors.New("client went away")
		decoder := NewDecoder(vocab, ok, nil)
		_, err := decoder.Generate(context.Background(), ParseSeed("60"), Params{
			NumSteps: 5, WindowLength: 2, Temperature: 1,
			OnStep: func(int, Symbol) error { return stop },
		})
		assert.ErrorIs(t, err, stop)
	})
}

func TestGenerateStepObserver(t *testing.T) {
	vocab := testVocabulary(t)
	decoder := NewDecoder(vocab, &fixedPredictor{dist: oneHot(vocab.Size(), 1)}, nil)

	var seen []Symbol
	result, err := decoder.Generate(context.Background(), ParseSeed("60"), Params{
		NumSteps: 3, WindowLength: 2, Temperature: 1,
		OnStep: func(step int, s Symbol) error {
			assert.Equal(t, len(seen), step)
			seen = append(seen, s)
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []Symbol{"r", "r", "r"}, seen)
	assert.Equal(t, 3, result.Generated)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "warming", StateWarming.String())
	assert.Equal(t, "stepping", StateStepping.String())
	assert.Equal(t, "done", StateDone.String())
}
