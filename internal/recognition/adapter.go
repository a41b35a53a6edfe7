package recognition

import (
	"context"
	"fmt"
	log "log/slog"
	"sync"
	"time"
)

const (
	DefaultSilenceWindow = 3 * time.Second
	DefaultRestartDelay  = 250 * time.Millisecond
)

type Config struct {
	SilenceWindow time.Duration
	RestartDelay  time.Duration

	// Ignore is polled on every batch and at finalization. While it returns
	// true, input is dropped; used to keep the assistant's own voice out.
	Ignore func() bool

	OnFinal      func(text string)
	OnError      func(msg string)
	OnListening  func(bool)
	OnTranscript func(string)
}

type sessionEvent struct {
	session uint64
	Event
}

// Adapter is driven by Run, which owns all of its mutable state. Start and
// Stop post requests to the loop.
type Adapter struct {
	rec Recognizer
	cfg Config

	control chan bool
	events  chan sessionEvent
	done    chan struct{}

	snapMu     sync.Mutex
	transcript string
	listening  bool

	// loop state
	intends bool
	running bool
	session uint64
	cancel  context.CancelFunc
	results []Result
	cursor  int
	pending string
	silence *time.Timer
	restart *time.Timer
}

func NewAdapter(rec Recognizer, cfg Config) *Adapter {
	if cfg.SilenceWindow <= 0 {
		cfg.SilenceWindow = DefaultSilenceWindow
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = DefaultRestartDelay
	}

	return &Adapter{
		rec:     rec,
		cfg:     cfg,
		control: make(chan bool, 16),
		events:  make(chan sessionEvent, 64),
		done:    make(chan struct{}),
	}
}

// Start asks for continuous listening. Calling it while already listening is
// a no-op.
func (a *Adapter) Start() { a.post(true) }

// Stop ends listening. No restart happens until Start is called again.
func (a *Adapter) Stop() { a.post(false) }

// Listening reports the intent to listen, not whether a session is live.
func (a *Adapter) Listening() bool {
	a.snapMu.Lock()
	defer a.snapMu.Unlock()
	return a.listening
}

// Transcript is the interim text not yet finalized.
func (a *Adapter) Transcript() string {
	a.snapMu.Lock()
	defer a.snapMu.Unlock()
	return a.transcript
}

func (a *Adapter) post(on bool) {
	select {
	case a.control <- on:
	case <-a.done:
	}
}

// Run dispatches recognizer events, timers and control requests until ctx is
// done.
func (a *Adapter) Run(ctx context.Context) error {
	defer a.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil

		case on := <-a.control:
			if on {
				a.start(ctx)
			} else {
				a.stop()
			}

		case ev := <-a.events:
			a.handle(ev)

		case <-timerC(a.silence):
			a.silence = nil
			a.finalize()

		case <-timerC(a.restart):
			a.restart = nil
			if a.intends && !a.running {
				log.Debug("Restarting recognizer")
				a.startSession(ctx)
			}
		}
	}
}

func (a *Adapter) start(ctx context.Context) {
	if a.intends && a.running {
		return
	}
	a.setListening(true)

	if !a.running && a.restart == nil {
		a.startSession(ctx)
	}
}

func (a *Adapter) stop() {
	a.setListening(false)
	disarm(&a.silence)
	disarm(&a.restart)

	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	// Anything the cancelled session still emits now carries a stale id.
	a.session++
	a.running = false

	a.pending = ""
	a.setTranscript("")
}

func (a *Adapter) startSession(ctx context.Context) {
	a.session++
	id := a.session

	sctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.running = true
	a.results = nil
	a.cursor = 0

	emit := func(ev Event) {
		select {
		case a.events <- sessionEvent{session: id, Event: ev}:
		case <-a.done:
		}
	}

	if err := a.rec.Start(sctx, emit); err != nil {
		cancel()
		a.cancel = nil
		a.running = false
		log.Error("Failed to start recognizer", "err", err)
		a.report(fmt.Sprintf("Speech recognition failed to start: %v", err))
		a.scheduleRestart()
	}
}

func (a *Adapter) handle(ev sessionEvent) {
	if ev.session != a.session {
		log.Debug("Dropping stale recognizer event", "kind", ev.Kind, "session", ev.session)
		return
	}

	switch ev.Kind {
	case SessionStarted:
		log.Debug("Recognizer session started", "session", ev.session)
	case ResultBatch:
		a.onResults(ev.Results)
	case SessionError:
		a.onError(ev.Code, ev.Message)
	case SessionEnded:
		a.onEnded()
	}
}

func (a *Adapter) onResults(results []Result) {
	a.results = results
	if a.cursor > len(results) {
		a.cursor = len(results)
	}

	if a.ignored() {
		a.cursor = len(results)
		a.pending = ""
		disarm(&a.silence)
		a.setTranscript("")
		return
	}

	a.pending = joinResults(results[a.cursor:])
	a.setTranscript(a.pending)

	disarm(&a.silence)
	a.silence = time.NewTimer(a.cfg.SilenceWindow)
}

// finalize hands the pending text over once the silence window has passed.
func (a *Adapter) finalize() {
	if a.ignored() || a.pending == "" {
		return
	}

	text := a.pending
	a.pending = ""
	a.cursor = len(a.results)
	a.setTranscript("")

	log.Debug("Utterance finalized", "text", text)
	if a.cfg.OnFinal != nil {
		a.cfg.OnFinal(text)
	}
}

func (a *Adapter) onError(code ErrorCode, msg string) {
	switch code {
	case ErrNotAllowed:
		log.Error("Microphone access denied", "msg", msg)
		a.setListening(false)
		a.report("Microphone access denied. Check the audio device permissions.")
	case ErrNoSpeech, ErrAborted:
		log.Debug("Recognizer session error suppressed", "code", code)
	default:
		log.Warn("Recognizer error", "code", code, "msg", msg)
		a.report(fmt.Sprintf("Speech recognition error: %s", code))
	}
}

func (a *Adapter) onEnded() {
	a.running = false
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}

	// The next session's results start from zero, so nothing pending can
	// survive the restart.
	if a.pending != "" {
		disarm(&a.silence)
		a.finalize()
	}

	if a.intends {
		a.scheduleRestart()
	}
}

func (a *Adapter) scheduleRestart() {
	if !a.intends {
		return
	}
	disarm(&a.restart)
	a.restart = time.NewTimer(a.cfg.RestartDelay)
}

func (a *Adapter) ignored() bool {
	return a.cfg.Ignore != nil && a.cfg.Ignore()
}

func (a *Adapter) report(msg string) {
	if a.cfg.OnError != nil {
		a.cfg.OnError(msg)
	}
}

func (a *Adapter) setListening(on bool) {
	a.intends = on

	a.snapMu.Lock()
	changed := a.listening != on
	a.listening = on
	a.snapMu.Unlock()

	if changed && a.cfg.OnListening != nil {
		a.cfg.OnListening(on)
	}
}

func (a *Adapter) setTranscript(s string) {
	a.snapMu.Lock()
	changed := a.transcript != s
	a.transcript = s
	a.snapMu.Unlock()

	if changed && a.cfg.OnTranscript != nil {
		a.cfg.OnTranscript(s)
	}
}

func (a *Adapter) shutdown() {
	disarm(&a.silence)
	disarm(&a.restart)
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	close(a.done)
}

func disarm(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}
