package melody

import (
	"strconv"

	"github.com/Conceptual-Machines/melody-api/internal/notation"
)

// Encode collapses a time-step melody into note and rest events. A pitch or
// rest starts an event and every following Hold adds stepDuration to it, so
// the events always sum to stepDuration * len(m). Holds before the first
// pitch or rest are rendered as a rest. Nothing is returned on error.
func Encode(m Melody, stepDuration float64) ([]notation.Event, error) {
	if !(stepDuration > 0) {
		return nil, &InvalidParameterError{Name: "step_duration", Value: stepDuration, Reason: "must be positive"}
	}

	events := make([]notation.Event, 0, len(m))
	var pending Symbol
	steps := 0

	flush := func(position int) error {
		if steps == 0 {
			return nil
		}
		duration := stepDuration * float64(steps)
		switch pending {
		case Rest, Hold:
			events = append(events, notation.NewRest(duration))
		default:
			pitch, err := strconv.Atoi(string(pending))
			if err != nil {
				return &MalformedSymbolError{Symbol: pending, Position: position}
			}
			events = append(events, notation.NewNote(pitch, duration))
		}
		return nil
	}

	start := 0
	for i, s := range m {
		if s == Hold {
			if steps == 0 {
				pending = Hold
			}
			steps++
			continue
		}
		if err := flush(start); err != nil {
			return nil, err
		}
		pending, steps, start = s, 1, i
	}
	if err := flush(start); err != nil {
		return nil, err
	}

	return events, nil
}
