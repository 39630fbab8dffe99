package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Conceptual-Machines/melody-api/internal/melody"
	"github.com/Conceptual-Machines/melody-api/internal/models"
	"github.com/Conceptual-Machines/melody-api/internal/predictor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testVocabulary is "/"=0, "_"=1, "r"=2, "60"=3, "62"=4
func testVocabulary(t *testing.T) *melody.Vocabulary {
	t.Helper()
	vocab, err := melody.NewVocabulary(map[string]int{"/": 0, "_": 1, "r": 2, "60": 3, "62": 4})
	require.NoError(t, err)
	return vocab
}

// scriptedPredictor puts all mass on the next code of a fixed script
type scriptedPredictor struct {
	mu     sync.Mutex
	script []int
	next   int
	usage  predictor.Usage
}

func (p *scriptedPredictor) Predict(_ context.Context, _ []int) ([]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	dist := make([]float64, 5)
	dist[p.script[p.next%len(p.script)]] = 1
	p.next++
	p.usage.Calls++
	p.usage.InputTokens += 10
	p.usage.OutputTokens++
	return dist, nil
}

func (p *scriptedPredictor) Name() string           { return "scripted" }
func (p *scriptedPredictor) Model() string          { return "gpt-4o-mini" }
func (p *scriptedPredictor) Usage() predictor.Usage { return p.usage }

type stubSource struct {
	predictor melody.Predictor
	err       error
	backend   string
	model     string
}

func (s *stubSource) GetPredictor(_ context.Context, backend, model string) (melody.Predictor, error) {
	s.backend = backend
	s.model = model
	return s.predictor, s.err
}

type memoryStore struct {
	records map[string]*models.MelodyRecord
	saveErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[string]*models.MelodyRecord{}}
}

func (m *memoryStore) Save(_ context.Context, record *models.MelodyRecord) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records[record.ID] = record
	return nil
}

func (m *memoryStore) Get(_ context.Context, id string) (*models.MelodyRecord, error) {
	record, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return record, nil
}

func (m *memoryStore) List(_ context.Context, userID string, _ int) ([]models.MelodyRecord, error) {
	var out []models.MelodyRecord
	for _, r := range m.records {
		if userID == "" || r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func testDefaults() Defaults {
	return Defaults{
		Backend:      "transition",
		WindowLength: 4,
		NumSteps:     6,
		Temperature:  0.3,
		StepDuration: 0.25,
		TempoBPM:     120,
	}
}

func TestGenerateBudget(t *testing.T) {
	source := &stubSource{predictor: &scriptedPredictor{script: []int{1, 4, 1}}}
	store := newMemoryStore()
	svc := NewMelodyService(testVocabulary(t), source, store, testDefaults())

	var observed []melody.Symbol
	gen, err := svc.Generate(context.Background(), "user-1", &models.GenerationRequest{Seed: "60 _"},
		func(_ int, s melody.Symbol) error {
			observed = append(observed, s)
			return nil
		})
	require.NoError(t, err)

	resp := gen.Response
	assert.Equal(t, []string{"60", "_", "_", "62", "_", "_", "62", "_"}, resp.Melody)
	assert.Equal(t, 2, resp.SeedLength)
	assert.Equal(t, 6, resp.Generated)
	assert.Equal(t, "budget", resp.StopReason)
	assert.Len(t, observed, 6)
	assert.InDelta(t, 2.0, resp.TotalDuration, 1e-12)
	assert.Equal(t, []models.NoteEvent{
		{MidiNoteNumber: 60, Velocity: 90, StartBeats: 0, DurationBeats: 0.75},
		{MidiNoteNumber: 62, Velocity: 90, StartBeats: 0.75, DurationBeats: 0.75},
		{MidiNoteNumber: 62, Velocity: 90, StartBeats: 1.5, DurationBeats: 0.5},
	}, resp.Notes)

	// Named predictors report their own backend and model
	assert.Equal(t, "scripted", resp.Backend)
	assert.Equal(t, "gpt-4o-mini", resp.Model)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, int64(60), resp.Usage.InputTokens)
	assert.Greater(t, resp.Usage.CostUSD, 0.0)

	// Persisted
	require.NotEmpty(t, resp.ID)
	record, err := svc.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "60 _ _ 62 _ _ 62 _", record.Symbols)
	assert.Equal(t, "user-1", record.UserID)
	assert.Equal(t, 3, record.EventCount)
	assert.Equal(t, "budget", record.StopReason)
}

func TestGenerateBoundaryStop(t *testing.T) {
	source := &stubSource{predictor: &scriptedPredictor{script: []int{1, 0}}}
	svc := NewMelodyService(testVocabulary(t), source, nil, testDefaults())

	gen, err := svc.Generate(context.Background(), "", &models.GenerationRequest{Seed: "62"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"62", "_"}, gen.Response.Melody)
	assert.Equal(t, "boundary", gen.Response.StopReason)
	assert.Empty(t, gen.Response.ID, "nothing is persisted without a store")
}

func TestGenerateUsesRequestOverrides(t *testing.T) {
	source := &stubSource{predictor: &scriptedPredictor{script: []int{2}}}
	svc := NewMelodyService(testVocabulary(t), source, nil, testDefaults())

	steps := 2
	step := 0.5
	gen, err := svc.Generate(context.Background(), "", &models.GenerationRequest{
		Seed:         "60",
		NumSteps:     &steps,
		StepDuration: &step,
		Backend:      "openai",
		Model:        "gpt-4.1-mini",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", source.backend)
	assert.Equal(t, "gpt-4.1-mini", source.model)
	assert.Equal(t, 2, gen.Response.Generated)
	assert.InDelta(t, 1.5, gen.Response.TotalDuration, 1e-12)
}

func TestGenerateReproducibleWithRandSeed(t *testing.T) {
	vocab := testVocabulary(t)
	uniform := melody.PredictorFunc(func(_ context.Context, _ []int) ([]float64, error) {
		return []float64{0, 0.25, 0.25, 0.25, 0.25}, nil
	})
	svc := NewMelodyService(vocab, &stubSource{predictor: uniform}, nil, testDefaults())

	seed := uint64(42)
	temperature := 1.0
	req := &models.GenerationRequest{Seed: "60", RandSeed: &seed, Temperature: &temperature}

	first, err := svc.Generate(context.Background(), "", req, nil)
	require.NoError(t, err)
	second, err := svc.Generate(context.Background(), "", req, nil)
	require.NoError(t, err)
	assert.Equal(t, first.Response.Melody, second.Response.Melody)
	assert.Nil(t, first.Response.Usage)
}

func TestGenerateErrors(t *testing.T) {
	vocab := testVocabulary(t)

	t.Run("invalid parameter", func(t *testing.T) {
		svc := NewMelodyService(vocab, &stubSource{}, nil, testDefaults())
		zero := 0.0
		_, err := svc.Generate(context.Background(), "", &models.GenerationRequest{Seed: "60", Temperature: &zero}, nil)
		assert.ErrorIs(t, err, melody.ErrInvalidParameter)
	})

	t.Run("unknown seed symbol", func(t *testing.T) {
		svc := NewMelodyService(vocab, &stubSource{predictor: &scriptedPredictor{script: []int{1}}}, nil, testDefaults())
		_, err := svc.Generate(context.Background(), "", &models.GenerationRequest{Seed: "60 99"}, nil)
		assert.ErrorIs(t, err, melody.ErrUnknownSymbol)
	})

	t.Run("predictor unavailable", func(t *testing.T) {
		svc := NewMelodyService(vocab, &stubSource{err: errors.New("openai API key not configured")}, nil, testDefaults())
		_, err := svc.Generate(context.Background(), "", &models.GenerationRequest{Seed: "60"}, nil)
		assert.ErrorIs(t, err, ErrPredictorUnavailable)
		assert.ErrorContains(t, err, "openai API key not configured")
	})

	t.Run("store failure keeps the melody", func(t *testing.T) {
		store := newMemoryStore()
		store.saveErr = errors.New("connection refused")
		svc := NewMelodyService(vocab, &stubSource{predictor: &scriptedPredictor{script: []int{1}}}, store, testDefaults())
		gen, err := svc.Generate(context.Background(), "", &models.GenerationRequest{Seed: "60"}, nil)
		require.NoError(t, err)
		assert.Empty(t, gen.Response.ID)
	})
}

func TestHistoryWithoutStore(t *testing.T) {
	svc := NewMelodyService(testVocabulary(t), &stubSource{}, nil, testDefaults())
	assert.False(t, svc.HasHistory())

	_, err := svc.Get(context.Background(), "6f1c2f1e-8f5e-4a8e-9b43-0c2f3a5d7e10")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	_, err = svc.List(context.Background(), "", 10)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestGetRejectsMalformedID(t *testing.T) {
	svc := NewMelodyService(testVocabulary(t), &stubSource{}, newMemoryStore(), testDefaults())
	_, err := svc.Get(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordMIDI(t *testing.T) {
	svc := NewMelodyService(testVocabulary(t), &stubSource{}, nil, testDefaults())

	data, err := svc.RecordMIDI(&models.MelodyRecord{Symbols: "60 _ r 62", StepDuration: 0.25})
	require.NoError(t, err)
	assert.Equal(t, "MThd", string(data[:4]))

	_, err = svc.RecordMIDI(&models.MelodyRecord{Symbols: "60 x", StepDuration: 0.25})
	assert.ErrorIs(t, err, melody.ErrMalformedSymbol)
}
