package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Conceptual-Machines/melody-api/internal/logger"
	"github.com/Conceptual-Machines/melody-api/internal/melody"
	"github.com/Conceptual-Machines/melody-api/internal/metrics"
	"github.com/Conceptual-Machines/melody-api/internal/models"
	"github.com/Conceptual-Machines/melody-api/internal/notation"
	"github.com/Conceptual-Machines/melody-api/internal/observability"
	"github.com/Conceptual-Machines/melody-api/internal/predictor"
	"github.com/google/uuid"
)

const defaultVelocity = 90

// ErrPredictorUnavailable is returned when the requested backend cannot be created
var ErrPredictorUnavailable = errors.New("predictor unavailable")

// PredictorSource hands out predictors by backend name (see predictor.Factory)
type PredictorSource interface {
	GetPredictor(ctx context.Context, backend, model string) (melody.Predictor, error)
}

// Generation is the outcome of MelodyService.Generate
type Generation struct {
	Params   GenerationParams
	Result   *melody.Result
	Events   []notation.Event
	Response *models.GenerationResponse
}

// MelodyService runs seed -> decode -> encode -> persist and reports on it
type MelodyService struct {
	vocab      *melody.Vocabulary
	predictors PredictorSource
	store      Store
	defaults   Defaults
	cloudwatch *metrics.Client
	sentry     *metrics.SentryMetrics
	langfuse   *observability.LangfuseClient
}

// NewMelodyService creates the service. store may be nil, which disables history.
func NewMelodyService(vocab *melody.Vocabulary, predictors PredictorSource, store Store, defaults Defaults) *MelodyService {
	return &MelodyService{
		vocab:      vocab,
		predictors: predictors,
		store:      store,
		defaults:   defaults,
		langfuse:   observability.GetClient(),
	}
}

// WithMetrics attaches metric recorders
func (s *MelodyService) WithMetrics(cloudwatch *metrics.Client, sentryMetrics *metrics.SentryMetrics) *MelodyService {
	s.cloudwatch = cloudwatch
	s.sentry = sentryMetrics
	return s
}

// WithLangfuse attaches a Langfuse client
func (s *MelodyService) WithLangfuse(client *observability.LangfuseClient) *MelodyService {
	s.langfuse = client
	return s
}

// Vocabulary returns the symbol table in use
func (s *MelodyService) Vocabulary() *melody.Vocabulary {
	return s.vocab
}

// Defaults returns the configured generation defaults
func (s *MelodyService) Defaults() Defaults {
	return s.defaults
}

// HasHistory reports whether generations are persisted
func (s *MelodyService) HasHistory() bool {
	return s.store != nil
}

// Generate continues the request's seed and encodes the melody into events.
// onStep, if non-nil, observes every generated symbol.
func (s *MelodyService) Generate(
	ctx context.Context, userID string, req *models.GenerationRequest, onStep melody.StepFunc,
) (*Generation, error) {
	startTime := time.Now()

	params, err := ResolveParams(s.defaults, req)
	if err != nil {
		return nil, err
	}

	seed := melody.ParseSeed(req.Seed)
	p, err := s.predictors.GetPredictor(ctx, params.Backend, params.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPredictorUnavailable, err)
	}
	if named, ok := p.(predictor.Named); ok {
		params.Backend = named.Name()
		params.Model = named.Model()
	}

	trace := s.langfuse.StartTrace(ctx, "melody-generation", map[string]interface{}{
		"backend": params.Backend,
		"user_id": userID,
	})
	defer trace.Finish()
	gen := trace.Generation("decode", map[string]interface{}{
		"num_steps":     params.NumSteps,
		"window_length": params.WindowLength,
		"temperature":   params.Temperature,
	})
	defer gen.Finish()

	decoder := melody.NewDecoder(s.vocab, p, nil)
	result, err := decoder.Generate(ctx, seed, params.DecoderParams(onStep))
	if err != nil {
		s.recordFailure(ctx, params, startTime, err)
		gen.SetLevel("ERROR")
		return nil, err
	}

	events, err := melody.Encode(result.Melody, params.StepDuration)
	if err != nil {
		s.recordFailure(ctx, params, startTime, err)
		gen.SetLevel("ERROR")
		return nil, err
	}

	var usage predictor.Usage
	if reporter, ok := p.(predictor.UsageReporter); ok {
		usage = reporter.Usage()
	}
	duration := time.Since(startTime)

	response := &models.GenerationResponse{
		Melody:        result.Melody.Strings(),
		SeedLength:    result.SeedLength,
		Generated:     result.Generated,
		StopReason:    string(result.StopReason),
		Events:        events,
		Notes:         models.NotesFromEvents(events, defaultVelocity),
		TotalDuration: notation.TotalDuration(events),
		Backend:       params.Backend,
		Model:         params.Model,
		DurationMs:    duration.Milliseconds(),
	}
	if usage.InputTokens > 0 || usage.OutputTokens > 0 {
		response.Usage = &models.Usage{
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
			CostUSD:      observability.CalculatePredictorCost(params.Model, usage.InputTokens, usage.OutputTokens),
		}
	}

	if s.store != nil && params.Persist {
		record := newRecord(userID, req.Seed, params, result, events, response)
		if err := s.store.Save(ctx, record); err != nil {
			// The melody is still returned; only history is lost
			logger.Error("Failed to persist melody", err, logger.Fields{"backend": params.Backend})
		} else {
			response.ID = record.ID
		}
	}

	trace.SetMetadata(map[string]interface{}{
		"backend":     params.Backend,
		"model":       params.Model,
		"user_id":     userID,
		"stop_reason": response.StopReason,
		"generated":   result.Generated,
		"melody_id":   response.ID,
	})
	gen.LogPredictorRun(params.Model, req.Seed, result.Melody.String(), usage.InputTokens, usage.OutputTokens,
		map[string]interface{}{
			"stop_reason": response.StopReason,
			"generated":   result.Generated,
		})

	logger.LogMelodyGeneration(ctx, params.Backend, duration, logger.GenerationStats{
		Steps:        result.Steps,
		Generated:    result.Generated,
		StopReason:   response.StopReason,
		Events:       len(events),
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
	}, logger.Fields{"user_id": userID})
	s.cloudwatch.RecordMelodyGeneration(params.Backend, duration, result.Generated, true)
	s.cloudwatch.RecordTokenUsage(params.Backend, params.Model, usage.InputTokens, usage.OutputTokens)
	s.sentry.RecordMelodyGeneration(ctx, params.Backend, duration, result.Generated, response.StopReason, true)
	s.sentry.RecordTokenUsage(ctx, params.Model, usage.InputTokens, usage.OutputTokens)

	return &Generation{
		Params:   params,
		Result:   result,
		Events:   events,
		Response: response,
	}, nil
}

// RenderMIDI serializes events as a Standard MIDI File
func (s *MelodyService) RenderMIDI(events []notation.Event, tempoBPM float64) ([]byte, error) {
	writer := notation.NewMIDIWriter()
	writer.TempoBPM = tempoBPM
	return writer.Bytes(events)
}

// Get returns a persisted melody
func (s *MelodyService) Get(ctx context.Context, id string) (*models.MelodyRecord, error) {
	if s.store == nil {
		return nil, ErrStoreUnavailable
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return s.store.Get(ctx, id)
}

// List returns recent melodies, optionally for one user
func (s *MelodyService) List(ctx context.Context, userID string, limit int) ([]models.MelodyRecord, error) {
	if s.store == nil {
		return nil, ErrStoreUnavailable
	}
	return s.store.List(ctx, userID, limit)
}

// RecordMIDI re-encodes a persisted melody as MIDI with the configured tempo
func (s *MelodyService) RecordMIDI(record *models.MelodyRecord) ([]byte, error) {
	events, err := melody.Encode(melody.ParseSeed(record.Symbols), record.StepDuration)
	if err != nil {
		return nil, err
	}
	return s.RenderMIDI(events, s.defaults.TempoBPM)
}

func (s *MelodyService) recordFailure(ctx context.Context, params GenerationParams, startTime time.Time, err error) {
	duration := time.Since(startTime)
	logger.Warn("Melody generation failed", logger.Fields{
		"backend":     params.Backend,
		"duration_ms": duration.Milliseconds(),
		"error":       err.Error(),
	})
	s.cloudwatch.RecordMelodyGeneration(params.Backend, duration, 0, false)
	s.sentry.RecordMelodyGeneration(ctx, params.Backend, duration, 0, "error", false)
}

func newRecord(
	userID, seed string,
	params GenerationParams,
	result *melody.Result,
	events []notation.Event,
	response *models.GenerationResponse,
) *models.MelodyRecord {
	record := &models.MelodyRecord{
		ID:            uuid.New().String(),
		UserID:        userID,
		Seed:          seed,
		Symbols:       result.Melody.String(),
		NumSteps:      params.NumSteps,
		WindowLength:  params.WindowLength,
		Temperature:   params.Temperature,
		StepDuration:  params.StepDuration,
		RandSeed:      params.RandSeed,
		Backend:       params.Backend,
		Model:         params.Model,
		StopReason:    response.StopReason,
		Generated:     result.Generated,
		EventCount:    len(events),
		TotalDuration: response.TotalDuration,
		DurationMs:    response.DurationMs,
	}
	if response.Usage != nil {
		record.InputTokens = response.Usage.InputTokens
		record.OutputTokens = response.Usage.OutputTokens
		record.CostUSD = response.Usage.CostUSD
	}
	return record
}
