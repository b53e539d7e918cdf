// Package music renders resonance profiles as MIDI.
package music

import (
	"bytes"
	"encoding/binary"
	"hash/fnv"
)

const (
	ticksPerQuarter  = 96
	notesPerTrack    = 16
	baseNote         = 60
	velocity         = 90
	microsPerQuarter = 500000
)

var scale = []byte{0, 2, 4, 5, 7, 9, 11, 12}

// RenderMIDI builds a format-0 single-track MIDI file whose melody is
// derived from profile. The same profile always yields the same bytes.
func RenderMIDI(profile string) []byte {
	var track bytes.Buffer

	// Tempo meta event.
	track.Write([]byte{0x00, 0xFF, 0x51, 0x03})
	track.Write([]byte{microsPerQuarter >> 16 & 0xFF, microsPerQuarter >> 8 & 0xFF, microsPerQuarter & 0xFF})

	for _, note := range melody(profile) {
		track.Write([]byte{0x00, 0x90, note, velocity})
		writeVarLen(&track, ticksPerQuarter)
		track.Write([]byte{0x80, note, 0x00})
	}
	track.Write([]byte{0x00, 0xFF, 0x2F, 0x00})

	var out bytes.Buffer
	out.WriteString("MThd")
	_ = binary.Write(&out, binary.BigEndian, uint32(6))
	_ = binary.Write(&out, binary.BigEndian, uint16(0))
	_ = binary.Write(&out, binary.BigEndian, uint16(1))
	_ = binary.Write(&out, binary.BigEndian, uint16(ticksPerQuarter))
	out.WriteString("MTrk")
	_ = binary.Write(&out, binary.BigEndian, uint32(track.Len()))
	out.Write(track.Bytes())
	return out.Bytes()
}

func melody(profile string) []byte {
	h := fnv.New64a()
	_, _ = h.Write([]byte(profile))
	seed := h.Sum64()
	notes := make([]byte, notesPerTrack)
	for i := range notes {
		notes[i] = baseNote + scale[seed%uint64(len(scale))]
		seed = seed*6364136223846793005 + 1442695040888963407
		seed ^= seed >> 29
	}
	return notes
}

func writeVarLen(buf *bytes.Buffer, value uint32) {
	stack := []byte{byte(value & 0x7F)}
	for value >>= 7; value > 0; value >>= 7 {
		stack = append(stack, byte(value&0x7F)|0x80)
	}
	for i := len(stack) - 1; i >= 0; i-- {
		buf.WriteByte(stack[i])
	}
}
