package models

import "github.com/Conceptual-Machines/melody-api/internal/notation"

// GenerationRequest wraps the user's generation parameters.
// Unset optional fields fall back to the configured defaults.
type GenerationRequest struct {
	Seed         string   `json:"seed"` // space separated symbols, may be empty
	NumSteps     *int     `json:"num_steps,omitempty"`
	WindowLength *int     `json:"window_length,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	StepDuration *float64 `json:"step_duration,omitempty"`
	RandSeed     *uint64  `json:"rand_seed,omitempty"` // Optional seed for reproducibility
	Backend      string   `json:"backend,omitempty"`   // "transition", "openai", "gemini"
	Model        string   `json:"model,omitempty"`
	TempoBPM     *float64 `json:"tempo_bpm,omitempty"` // MIDI output only
	Persist      *bool    `json:"persist,omitempty"`
}

// NoteEvent represents a single musical note with timing and pitch information
type NoteEvent struct {
	MidiNoteNumber int     `json:"midiNoteNumber"`
	Velocity       int     `json:"velocity"`
	StartBeats     float64 `json:"startBeats"`
	DurationBeats  float64 `json:"durationBeats"`
}

// Usage is the predictor token usage for one generation
type Usage struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// GenerationResponse is the result of one generation
type GenerationResponse struct {
	ID            string           `json:"id,omitempty"`
	Melody        []string         `json:"melody"`
	SeedLength    int              `json:"seed_length"`
	Generated     int              `json:"generated"`
	StopReason    string           `json:"stop_reason"`
	Events        []notation.Event `json:"events"`
	Notes         []NoteEvent      `json:"notes"`
	TotalDuration float64          `json:"total_duration"`
	Backend       string           `json:"backend"`
	Model         string           `json:"model,omitempty"`
	Usage         *Usage           `json:"usage,omitempty"`
	DurationMs    int64            `json:"duration_ms"`
}

// NotesFromEvents places note events on an absolute beat grid, dropping rests
func NotesFromEvents(events []notation.Event, velocity int) []NoteEvent {
	notes := make([]NoteEvent, 0, len(events))
	position := 0.0
	for _, e := range events {
		if !e.IsRest() {
			notes = append(notes, NoteEvent{
				MidiNoteNumber: *e.Pitch,
				Velocity:       velocity,
				StartBeats:     position,
				DurationBeats:  e.Duration,
			})
		}
		position += e.Duration
	}
	return notes
}
