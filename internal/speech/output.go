// Package speech turns response text into audio and tracks whether the
// assistant is currently talking, so the recognizer can ignore its own voice.
package speech

import (
	"context"
	"errors"
	log "log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	DefaultPitch  = 1.0
	DefaultRate   = 1.0
	DefaultSettle = 500 * time.Millisecond
)

// Utterance is one synthesis request.
type Utterance struct {
	Text  string
	Voice *Voice // nil means the synthesizer default
	Pitch float64
	Rate  float64
}

// Synthesizer is the speech engine. Synthesize blocks until playback ends,
// fails, or ctx is cancelled.
type Synthesizer interface {
	Voices() []Voice
	Synthesize(ctx context.Context, u Utterance) error
}

type Config struct {
	Preferences []string
	Pitch       float64
	Rate        float64
	// Settle keeps Speaking true for a while after playback so the tail of
	// the audio is not captured as user speech.
	Settle time.Duration
}

func DefaultConfig() Config {
	return Config{
		Preferences: DefaultPreferences,
		Pitch:       DefaultPitch,
		Rate:        DefaultRate,
		Settle:      DefaultSettle,
	}
}

// Output owns the single in-flight utterance. Each Speak bumps a generation
// counter; completions from older generations never touch the flag.
type Output struct {
	synth Synthesizer
	cfg   Config

	mu       sync.Mutex
	enabled  bool
	speaking bool
	gen      uint64
	cancel   context.CancelFunc
	settle   *time.Timer
	onChange []func(bool)
}

func NewOutput(synth Synthesizer, cfg Config) *Output {
	if cfg.Pitch == 0 {
		cfg.Pitch = DefaultPitch
	}
	if cfg.Rate == 0 {
		cfg.Rate = DefaultRate
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	}

	return &Output{
		synth:   synth,
		cfg:     cfg,
		enabled: true,
	}
}

// OnSpeakingChange registers fn for transitions of the speaking flag.
func (o *Output) OnSpeakingChange(fn func(bool)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onChange = append(o.onChange, fn)
}

func (o *Output) Speaking() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.speaking
}

func (o *Output) Enabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.enabled
}

// SetEnabled turns speech on or off. Turning it off cancels whatever is
// being spoken and clears the flag at once.
func (o *Output) SetEnabled(on bool) {
	o.mu.Lock()
	o.enabled = on
	o.mu.Unlock()

	if !on {
		o.Cancel()
	}
}

// Speak cancels the current utterance and starts text. It returns
// immediately; playback runs in the background.
func (o *Output) Speak(text string) {
	text = strings.TrimSpace(text)
	if text == "" || !o.Enabled() {
		return
	}

	voice := SelectVoice(o.synth.Voices(), o.cfg.Preferences)
	u := Utterance{
		Text:  text,
		Voice: voice,
		Pitch: o.cfg.Pitch,
		Rate:  o.cfg.Rate,
	}

	ctx, cancel := context.WithCancel(context.Background())

	o.mu.Lock()
	o.stopLocked()
	o.gen++
	gen := o.gen
	o.cancel = cancel
	changed := o.setLocked(true)
	o.mu.Unlock()

	o.notify(changed, true)

	go o.run(ctx, gen, u)
}

// Cancel stops the current utterance and clears the flag without waiting
// for the settle delay.
func (o *Output) Cancel() {
	o.mu.Lock()
	o.gen++
	o.stopLocked()
	changed := o.setLocked(false)
	o.mu.Unlock()

	o.notify(changed, false)
}

func (o *Output) run(ctx context.Context, gen uint64, u Utterance) {
	err := o.synth.Synthesize(ctx, u)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("Speech synthesis failed", "err", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.gen {
		return
	}
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.settle = time.AfterFunc(o.cfg.Settle, func() { o.finish(gen) })
}

func (o *Output) finish(gen uint64) {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return
	}
	o.settle = nil
	changed := o.setLocked(false)
	o.mu.Unlock()

	o.notify(changed, false)
}

func (o *Output) stopLocked() {
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	if o.settle != nil {
		o.settle.Stop()
		o.settle = nil
	}
}

func (o *Output) setLocked(on bool) bool {
	if o.speaking == on {
		return false
	}
	o.speaking = on
	return true
}

func (o *Output) notify(changed, on bool) {
	if !changed {
		return
	}

	o.mu.Lock()
	fns := slices.Clone(o.onChange)
	o.mu.Unlock()

	for _, fn := range fns {
		fn(on)
	}
}
