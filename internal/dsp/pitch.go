package dsp

import (
	"fmt"
	"math"
)

// ReferenceHz is concert pitch A4.
const ReferenceHz = 440.0

// NoteNames indexes pitch classes starting at C.
var NoteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// semitones returns 12·log2(hz/440) + 9.5, the distance from C4 in semitones
// offset by half a semitone so flooring rounds to the nearest note.
func semitones(hz float64) float64 {
	return 12*math.Log2(hz/ReferenceHz) + 9.5
}

// PitchClass maps hz to its equal temperament pitch class in [0, 12),
// 0 being C and 9 being A. Meaningless for hz <= 0; check Peak.Found first.
func PitchClass(hz float64) int {
	pc := int(math.Floor(semitones(hz))) % 12
	if pc < 0 {
		pc += 12
	}
	return pc
}

// Octave returns the scientific pitch notation octave of hz (A4 = 440 Hz).
func Octave(hz float64) int {
	return int(math.Floor(semitones(hz)/12)) + 4
}

// NoteName returns the name for a pitch class, or "?" when out of range.
func NoteName(pc int) string {
	if pc < 0 || pc >= len(NoteNames) {
		return "?"
	}
	return NoteNames[pc]
}

// Note formats hz as note name plus octave, e.g. "A4".
func Note(hz float64) string {
	return fmt.Sprintf("%s%d", NoteName(PitchClass(hz)), Octave(hz))
}
