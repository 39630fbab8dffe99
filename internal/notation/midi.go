package notation

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Standard MIDI File constants
const (
	chunkHeader = "MThd"
	chunkTrack  = "MTrk"

	headerLength = 6
	formatSingle = 0

	statusNoteOff       = 0x80
	statusNoteOn        = 0x90
	statusProgramChange = 0xC0
	metaEvent           = 0xFF
	metaTempo           = 0x51
	metaTrackName       = 0x03
	metaEndOfTrack      = 0x2F

	vlqMax             = 0x0FFFFFFF
	microsPerMinute    = 60_000_000
	maxMIDIValue       = 127
	maxTicksPerQuarter = 0x7FFF

	DefaultTicksPerQuarter = 480
	DefaultTempoBPM        = 120.0
	DefaultVelocity        = 90
)

// ErrPitchOutOfRange is returned for notes outside the MIDI range 0..127
var ErrPitchOutOfRange = errors.New("pitch outside MIDI range 0..127")

// MIDIWriter serializes events as a single-track (format 0) Standard MIDI File.
// Event durations are quarter lengths.
type MIDIWriter struct {
	TicksPerQuarter int
	TempoBPM        float64
	Channel         uint8
	Velocity        uint8
	Program         uint8
	TrackName       string
}

// NewMIDIWriter returns a writer with the default resolution, 120 bpm, channel 1 and piano
func NewMIDIWriter() *MIDIWriter {
	return &MIDIWriter{
		TicksPerQuarter: DefaultTicksPerQuarter,
		TempoBPM:        DefaultTempoBPM,
		Velocity:        DefaultVelocity,
	}
}

// Extension implements Serializer
func (m *MIDIWriter) Extension() string {
	return ".mid"
}

// Write implements Serializer
func (m *MIDIWriter) Write(w io.Writer, events []Event) error {
	if err := m.validate(); err != nil {
		return err
	}

	track, err := m.encodeTrack(events)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	header := make([]byte, 0, 14)
	header = append(header, chunkHeader...)
	header = binary.BigEndian.AppendUint32(header, headerLength)
	header = binary.BigEndian.AppendUint16(header, formatSingle)
	header = binary.BigEndian.AppendUint16(header, 1)
	header = binary.BigEndian.AppendUint16(header, uint16(m.TicksPerQuarter))
	if _, err := bw.Write(header); err != nil {
		return fmt.Errorf("failed to write MIDI header: %w", err)
	}

	chunk := make([]byte, 0, 8)
	chunk = append(chunk, chunkTrack...)
	chunk = binary.BigEndian.AppendUint32(chunk, uint32(len(track)))
	if _, err := bw.Write(chunk); err != nil {
		return fmt.Errorf("failed to write MIDI track header: %w", err)
	}
	if _, err := bw.Write(track); err != nil {
		return fmt.Errorf("failed to write MIDI track: %w", err)
	}
	return bw.Flush()
}

// Bytes is a convenience wrapper around Write
func (m *MIDIWriter) Bytes(events []Event) ([]byte, error) {
	var buf bytes.Buffer
	if err := m.Write(&buf, events); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *MIDIWriter) validate() error {
	if m.TicksPerQuarter <= 0 || m.TicksPerQuarter > maxTicksPerQuarter {
		return fmt.Errorf("ticks per quarter must be in 1..%d, got %d", maxTicksPerQuarter, m.TicksPerQuarter)
	}
	if !(m.TempoBPM > 0) {
		return fmt.Errorf("tempo must be positive, got %v", m.TempoBPM)
	}
	if m.Channel > 15 {
		return fmt.Errorf("channel must be in 0..15, got %d", m.Channel)
	}
	if m.Velocity > maxMIDIValue || m.Program > maxMIDIValue {
		return fmt.Errorf("velocity and program must be in 0..%d", maxMIDIValue)
	}
	return nil
}

func (m *MIDIWriter) encodeTrack(events []Event) ([]byte, error) {
	var track []byte

	if m.TrackName != "" {
		track = appendVLQ(track, 0)
		track = append(track, metaEvent, metaTrackName)
		track = appendVLQ(track, uint32(len(m.TrackName)))
		track = append(track, m.TrackName...)
	}

	tempo := uint32(math.Round(microsPerMinute / m.TempoBPM))
	track = appendVLQ(track, 0)
	track = append(track, metaEvent, metaTempo, 3, byte(tempo>>16), byte(tempo>>8), byte(tempo))

	track = appendVLQ(track, 0)
	track = append(track, statusProgramChange|m.Channel, m.Program)

	// Ticks come from absolute onsets so rounding never accumulates.
	onset := 0.0
	lastTick := 0
	for i, e := range events {
		if !(e.Duration > 0) {
			return nil, fmt.Errorf("event %d has non-positive duration %v", i, e.Duration)
		}
		startTick := m.ticks(onset)
		onset += e.Duration
		endTick := m.ticks(onset)
		if e.IsRest() {
			continue
		}
		if e.Pitch == nil || *e.Pitch < 0 || *e.Pitch > maxMIDIValue {
			return nil, fmt.Errorf("event %d: %w", i, ErrPitchOutOfRange)
		}
		pitch := byte(*e.Pitch)

		delta := startTick - lastTick
		if delta > vlqMax || endTick-startTick > vlqMax {
			return nil, fmt.Errorf("event %d: delta time exceeds MIDI limit", i)
		}
		track = appendVLQ(track, uint32(delta))
		track = append(track, statusNoteOn|m.Channel, pitch, m.Velocity)
		track = appendVLQ(track, uint32(endTick-startTick))
		track = append(track, statusNoteOff|m.Channel, pitch, 0)
		lastTick = endTick
	}

	// Trailing rests still count towards the track length.
	trailing := m.ticks(onset) - lastTick
	if trailing > vlqMax {
		return nil, errors.New("trailing rest exceeds MIDI delta limit")
	}
	track = appendVLQ(track, uint32(trailing))
	track = append(track, metaEvent, metaEndOfTrack, 0)
	return track, nil
}

func (m *MIDIWriter) ticks(quarters float64) int {
	return int(math.Round(quarters * float64(m.TicksPerQuarter)))
}

// appendVLQ appends v as a MIDI variable-length quantity (7 bits per byte, MSB continuation).
func appendVLQ(dst []byte, v uint32) []byte {
	var buf [4]byte
	i := len(buf) - 1
	buf[i] = byte(v & 0x7F)
	for v >>= 7; v > 0; v >>= 7 {
		i--
		buf[i] = byte(v&0x7F) | 0x80
	}
	return append(dst, buf[i:]...)
}
