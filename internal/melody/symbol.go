package melody

import "strings"

// Symbol is a single token of the melody encoding: a MIDI pitch number,
// a rest, a hold or the sequence boundary.
type Symbol string

const (
	Rest     Symbol = "r"
	Hold     Symbol = "_"
	Boundary Symbol = "/"
)

// Melody is a time-step encoded melody. Every symbol occupies one step;
// Hold extends the previous note or rest by one more step.
type Melody []Symbol

// ParseSeed splits whitespace separated seed text into a Melody.
func ParseSeed(text string) Melody {
	fields := strings.Fields(text)
	m := make(Melody, len(fields))
	for i, f := range fields {
		m[i] = Symbol(f)
	}
	return m
}

// String renders the melody in the same whitespace separated form ParseSeed accepts.
func (m Melody) String() string {
	parts := make([]string, len(m))
	for i, s := range m {
		parts[i] = string(s)
	}
	return strings.Join(parts, " ")
}

// Strings returns the symbols as plain strings (for JSON responses and storage)
func (m Melody) Strings() []string {
	out := make([]string, len(m))
	for i, s := range m {
		out[i] = string(s)
	}
	return out
}

func (m Melody) clone() Melody {
	out := make(Melody, len(m))
	copy(out, m)
	return out
}
