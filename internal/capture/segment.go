package capture

import (
	"time"

	"homevox/internal/audio"
)

type segState int

const (
	stateIdle segState = iota
	stateSpeech
	stateQuiet // no speech for NoSpeech; the session should end
)

// segmenter cuts a frame stream into speech segments by RMS energy. Quiet
// frames inside speech are kept so words are not clipped.
type segmenter struct {
	cfg Config

	buf      []float32
	speaking bool
	pause    time.Duration
	idle     time.Duration
}

// push feeds one frame of duration step and returns a finished segment, if
// any.
func (s *segmenter) push(frame []float32, step time.Duration) ([]float32, segState) {
	if audio.RMS(frame) > s.cfg.Threshold {
		s.speaking = true
		s.pause = 0
		s.idle = 0
		s.buf = append(s.buf, frame...)

		if audio.FrameDuration(len(s.buf)) >= s.cfg.MaxSegment {
			return s.flush(), stateSpeech
		}
		return nil, stateSpeech
	}

	if !s.speaking {
		s.idle += step
		if s.idle >= s.cfg.NoSpeech {
			return nil, stateQuiet
		}
		return nil, stateIdle
	}

	s.pause += step
	s.buf = append(s.buf, frame...)
	if s.pause >= s.cfg.Pause {
		return s.flush(), stateIdle
	}
	return nil, stateSpeech
}

func (s *segmenter) flush() []float32 {
	seg := s.buf
	s.buf = nil
	s.speaking = false
	s.pause = 0

	if len(seg) == 0 {
		return nil
	}
	return seg
}
