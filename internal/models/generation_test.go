package models

import (
	"testing"

	"github.com/Conceptual-Machines/melody-api/internal/notation"
	"github.com/stretchr/testify/assert"
)

func TestNotesFromEvents(t *testing.T) {
	notes := NotesFromEvents([]notation.Event{
		notation.NewRest(0.5),
		notation.NewNote(60, 0.25),
		notation.NewRest(0.25),
		notation.NewNote(62, 1),
	}, 90)

	assert.Equal(t, []NoteEvent{
		{MidiNoteNumber: 60, Velocity: 90, StartBeats: 0.5, DurationBeats: 0.25},
		{MidiNoteNumber: 62, Velocity: 90, StartBeats: 1, DurationBeats: 1},
	}, notes)

	assert.Empty(t, NotesFromEvents(nil, 90))
}
