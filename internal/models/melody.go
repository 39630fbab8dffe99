package models

import (
	"time"

	"gorm.io/gorm"
)

// MelodyRecord is a persisted generation
type MelodyRecord struct {
	ID            string         `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
	UserID        string         `gorm:"index" json:"user_id,omitempty"`
	Seed          string         `gorm:"not null" json:"seed"`
	Symbols       string         `gorm:"type:text;not null" json:"symbols"` // space separated, seed included
	NumSteps      int            `gorm:"not null" json:"num_steps"`
	WindowLength  int            `gorm:"not null" json:"window_length"`
	Temperature   float64        `gorm:"not null" json:"temperature"`
	StepDuration  float64        `gorm:"not null" json:"step_duration"`
	RandSeed      *uint64        `json:"rand_seed,omitempty"`
	Backend       string         `gorm:"not null;index" json:"backend"`
	Model         string         `json:"model"`
	StopReason    string         `gorm:"not null" json:"stop_reason"`
	Generated     int            `gorm:"not null" json:"generated"`
	EventCount    int            `gorm:"not null" json:"event_count"`
	TotalDuration float64        `gorm:"not null" json:"total_duration"`
	InputTokens   int64          `gorm:"default:0" json:"input_tokens"`
	OutputTokens  int64          `gorm:"default:0" json:"output_tokens"`
	CostUSD       float64        `gorm:"default:0" json:"cost_usd"`
	DurationMs    int64          `json:"duration_ms"`
}
