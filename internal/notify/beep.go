// Package notify plays short audio cues.
package notify

import (
	"fmt"
	log "log/slog"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

var (
	speakerOnce sync.Once
	speakerErr  error
	speakerRate beep.SampleRate
)

// Cue is a short mp3 played when listening starts. The file is decoded into
// memory once.
type Cue struct {
	buf *beep.Buffer
}

func LoadCue(path string) (*Cue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cue: %w", err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decode cue: %w", err)
	}
	defer streamer.Close()

	speakerOnce.Do(func() {
		speakerRate = format.SampleRate
		speakerErr = speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10))
	})
	if speakerErr != nil {
		return nil, fmt.Errorf("init speaker: %w", speakerErr)
	}

	var src beep.Streamer = streamer
	if format.SampleRate != speakerRate {
		src = beep.Resample(4, format.SampleRate, speakerRate, streamer)
	}

	buf := beep.NewBuffer(beep.Format{SampleRate: speakerRate, NumChannels: format.NumChannels, Precision: format.Precision})
	buf.Append(src)

	return &Cue{buf: buf}, nil
}

// Play starts the cue without waiting for it.
func (c *Cue) Play() {
	speaker.Play(c.buf.Streamer(0, c.buf.Len()))
}

// OnListening plays the cue each time listening turns on.
func (c *Cue) OnListening(on bool) {
	if !on {
		return
	}
	log.Debug("Playing listen cue")
	c.Play()
}
