package services

import (
	"math"

	"github.com/Conceptual-Machines/melody-api/internal/config"
	"github.com/Conceptual-Machines/melody-api/internal/melody"
	"github.com/Conceptual-Machines/melody-api/internal/models"
)

const maxNumSteps = 10000

// Defaults are the generation parameters used when a request leaves them unset
type Defaults struct {
	Backend      string
	Model        string
	WindowLength int
	NumSteps     int
	Temperature  float64
	StepDuration float64
	TempoBPM     float64
}

// DefaultsFromConfig reads the generation defaults from configuration
func DefaultsFromConfig(cfg *config.Config) Defaults {
	return Defaults{
		Backend:      cfg.PredictorBackend,
		Model:        cfg.PredictorModel,
		WindowLength: cfg.SequenceLength,
		NumSteps:     cfg.NumSteps,
		Temperature:  cfg.Temperature,
		StepDuration: cfg.StepDuration,
		TempoBPM:     cfg.MIDITempoBPM,
	}
}

// GenerationParams are the fully resolved parameters of one generation
type GenerationParams struct {
	Backend      string
	Model        string
	NumSteps     int
	WindowLength int
	Temperature  float64
	StepDuration float64
	TempoBPM     float64
	RandSeed     *uint64
	Persist      bool
}

// ResolveParams fills unset request fields from defaults and validates the result.
// Requests must ask for at least one step.
func ResolveParams(d Defaults, req *models.GenerationRequest) (GenerationParams, error) {
	p := GenerationParams{
		Backend:      d.Backend,
		Model:        d.Model,
		NumSteps:     d.NumSteps,
		WindowLength: d.WindowLength,
		Temperature:  d.Temperature,
		StepDuration: d.StepDuration,
		TempoBPM:     d.TempoBPM,
		Persist:      true,
	}

	if req.Backend != "" {
		p.Backend = req.Backend
		// A model name only makes sense for the backend it was configured for
		p.Model = ""
	}
	if req.Model != "" {
		p.Model = req.Model
	}
	if req.NumSteps != nil {
		p.NumSteps = *req.NumSteps
	}
	if req.WindowLength != nil {
		p.WindowLength = *req.WindowLength
	}
	if req.Temperature != nil {
		p.Temperature = *req.Temperature
	}
	if req.StepDuration != nil {
		p.StepDuration = *req.StepDuration
	}
	if req.TempoBPM != nil {
		p.TempoBPM = *req.TempoBPM
	}
	if req.Persist != nil {
		p.Persist = *req.Persist
	}
	p.RandSeed = req.RandSeed

	return p, p.Validate()
}

// Validate checks ranges; violations are *melody.InvalidParameterError
func (p GenerationParams) Validate() error {
	if p.NumSteps <= 0 || p.NumSteps > maxNumSteps {
		return &melody.InvalidParameterError{Name: "num_steps", Value: p.NumSteps, Reason: "must be between 1 and 10000"}
	}
	if p.WindowLength <= 0 {
		return &melody.InvalidParameterError{Name: "window_length", Value: p.WindowLength, Reason: "must be positive"}
	}
	if !(p.Temperature > 0) || math.IsInf(p.Temperature, 1) {
		return &melody.InvalidParameterError{Name: "temperature", Value: p.Temperature, Reason: "must be positive and finite"}
	}
	if !(p.StepDuration > 0) || math.IsInf(p.StepDuration, 1) {
		return &melody.InvalidParameterError{Name: "step_duration", Value: p.StepDuration, Reason: "must be positive and finite"}
	}
	if !(p.TempoBPM > 0) || math.IsInf(p.TempoBPM, 1) {
		return &melody.InvalidParameterError{Name: "tempo_bpm", Value: p.TempoBPM, Reason: "must be positive and finite"}
	}
	// Persisted in a signed bigint column
	if p.RandSeed != nil && *p.RandSeed > math.MaxInt64 {
		return &melody.InvalidParameterError{Name: "rand_seed", Value: *p.RandSeed, Reason: "must not exceed 9223372036854775807"}
	}
	return nil
}

// DecoderParams converts to the decoder's parameters
func (p GenerationParams) DecoderParams(onStep melody.StepFunc) melody.Params {
	params := melody.Params{
		NumSteps:     p.NumSteps,
		WindowLength: p.WindowLength,
		Temperature:  p.Temperature,
		OnStep:       onStep,
	}
	if p.RandSeed != nil {
		params.Sampler = melody.NewSeededSampler(*p.RandSeed)
	}
	return params
}
