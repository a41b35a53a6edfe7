// Package audio provides PCM input for speech recognition: the microphone,
// decoded files and silence, all as mono float32 at 16 kHz.
package audio

import (
	"math"
	"time"
)

const (
	SampleRate = 16000
	FrameSize  = 320 // 20ms
)

// Source yields fixed-size frames. Read fills the whole frame or returns an
// error; io.EOF marks the end of a finite source.
type Source interface {
	Read(frame []float32) error
	Close() error
}

// FrameDuration is the playback time of n samples.
func FrameDuration(n int) time.Duration {
	return time.Duration(n) * time.Second / SampleRate
}

func RMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s / float64(len(f)))
}
