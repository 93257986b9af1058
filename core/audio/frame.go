package audio

import (
	"encoding/binary"
	"math"
)

// Frame is a single capture-cadence chunk of input audio together with the
// voice-activity classification the capture layer attached to it.
type Frame struct {
	Audio    []byte
	IsSpeech bool
}

// RMS computes the root-mean-square energy of linear16 little-endian samples,
// normalized to [0, 1].
func RMS(samples []byte) float64 {
	if len(samples) < 2 {
		return 0
	}

	var sum float64
	count := len(samples) / 2
	for i := 0; i < count; i++ {
		sample := int16(binary.LittleEndian.Uint16(samples[2*i:]))
		normalized := float64(sample) / math.MaxInt16
		sum += normalized * normalized
	}

	return math.Sqrt(sum / float64(count))
}

// EnergyDetector is a minimal RMS-threshold voice-activity classifier used by
// capture backends that have no model-based VAD attached.
type EnergyDetector struct {
	// Floor is the RMS level above which a frame counts as speech.
	Floor float64

	// sustain counts consecutive speechy frames so single pops don't trigger.
	sustain       int
	SustainFrames int
}

func NewEnergyDetector(floor float64) *EnergyDetector {
	if floor <= 0 {
		floor = 0.015
	}
	return &EnergyDetector{Floor: floor, SustainFrames: 2}
}

// Classify tags a linear16 frame as speech or silence.
func (d *EnergyDetector) Classify(samples []byte) bool {
	if RMS(samples) >= d.Floor {
		d.sustain++
	} else {
		d.sustain = 0
	}

	return d.sustain >= d.SustainFrames
}
