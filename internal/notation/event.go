package notation

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Kind distinguishes notes from rests
type Kind string

const (
	KindNote Kind = "note"
	KindRest Kind = "rest"
)

// Event is a quantized note or rest. Duration is in quarter lengths.
type Event struct {
	Kind     Kind    `json:"kind"`
	Pitch    *int    `json:"pitch,omitempty"` // MIDI note number, notes only
	Duration float64 `json:"duration"`
}

// NewNote creates a note event
func NewNote(pitch int, duration float64) Event {
	return Event{Kind: KindNote, Pitch: &pitch, Duration: duration}
}

// NewRest creates a rest event
func NewRest(duration float64) Event {
	return Event{Kind: KindRest, Duration: duration}
}

// IsRest reports whether the event is a rest
func (e Event) IsRest() bool {
	return e.Kind == KindRest
}

func (e Event) String() string {
	if e.IsRest() || e.Pitch == nil {
		return fmt.Sprintf("rest(%.4g)", e.Duration)
	}
	return fmt.Sprintf("note(%d, %.4g)", *e.Pitch, e.Duration)
}

// TotalDuration sums the durations of events
func TotalDuration(events []Event) float64 {
	total := 0.0
	for _, e := range events {
		total += e.Duration
	}
	return total
}

// Serializer writes an event sequence in some notation format
type Serializer interface {
	Write(w io.Writer, events []Event) error
	// Extension is the conventional file extension including the dot
	Extension() string
}

// WriteFile serializes events to path. The file is written to a temporary
// sibling first and renamed, so a failed write never leaves a partial file.
func WriteFile(path string, s Serializer, events []Event) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = s.Write(tmp, events); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
