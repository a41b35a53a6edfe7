// Package app wires the assistant core together and serializes every input
// source into one turn loop.
package app

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"homevox/internal/conversation"
	"homevox/internal/device"
	"homevox/internal/events"
	"homevox/internal/recognition"
	"homevox/internal/speech"
)

const DefaultTurnTimeout = 30 * time.Second

// Control commands accepted from the control socket and the UI bus.
const (
	CmdListen = "listen"
	CmdStop   = "stop"
	CmdReset  = "reset"
	CmdSay    = "say"
	CmdMute   = "mute"
	CmdUnmute = "unmute"
	CmdStatus = "status"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrEmptyText      = errors.New("empty text")
)

type Deps struct {
	Recognizer recognition.Recognizer
	Extractor  conversation.Extractor
	Executor   *device.Executor
	Output     *speech.Output
	Events     *events.Bus
}

type Config struct {
	SilenceWindow time.Duration
	RestartDelay  time.Duration
	TurnTimeout   time.Duration
}

type Status struct {
	Listening  bool         `json:"listening"`
	Speaking   bool         `json:"speaking"`
	Muted      bool         `json:"muted"`
	Transcript string       `json:"transcript,omitempty"`
	Pending    int          `json:"pending"`
	Messages   int          `json:"messages"`
	Device     device.State `json:"device"`
}

type requestKind int

const (
	reqText requestKind = iota
	reqReset
)

type request struct {
	kind requestKind
	text string
}

type App struct {
	ctrl *conversation.Controller
	exec *device.Executor
	out  *speech.Output
	rec  *recognition.Adapter
	bus  *events.Bus

	timeout time.Duration
	turns   chan request
	done    chan struct{}
}

func New(deps Deps, cfg Config) *App {
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = DefaultTurnTimeout
	}

	bus := deps.Events
	if bus == nil {
		bus = events.New()
	}

	a := &App{
		exec:    deps.Executor,
		out:     deps.Output,
		bus:     bus,
		timeout: cfg.TurnTimeout,
		turns:   make(chan request, 32),
		done:    make(chan struct{}),
	}

	a.ctrl = conversation.New(deps.Extractor, deps.Executor, deps.Output, conversation.Options{
		OnMessage: func(m conversation.Message) { bus.Publish(events.Message, m) },
		OnReset:   func() { bus.Publish(events.Reset) },
	})

	a.rec = recognition.NewAdapter(deps.Recognizer, recognition.Config{
		SilenceWindow: cfg.SilenceWindow,
		RestartDelay:  cfg.RestartDelay,
		Ignore:        deps.Output.Speaking,
		OnFinal:       a.Submit,
		OnError:       func(msg string) { bus.Publish(events.Error, msg) },
		OnListening:   func(on bool) { bus.Publish(events.Listening, on) },
		OnTranscript:  func(s string) { bus.Publish(events.Transcript, s) },
	})

	deps.Executor.OnChange(func(st device.State, changes []device.Change) {
		bus.Publish(events.Device, st, changes)
	})
	deps.Output.OnSpeakingChange(func(on bool) {
		bus.Publish(events.Speaking, on)
	})

	return a
}

func (a *App) Events() *events.Bus { return a.bus }

func (a *App) Controller() *conversation.Controller { return a.ctrl }

func (a *App) Recognition() *recognition.Adapter { return a.rec }

// Run drives the recognizer and the turn loop until ctx is done.
func (a *App) Run(ctx context.Context) error {
	defer close(a.done)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.rec.Run(ctx) })
	g.Go(func() error { return a.loop(ctx) })
	return g.Wait()
}

func (a *App) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-a.turns:
			switch r.kind {
			case reqText:
				log.Info("User turn", "text", r.text)
				tctx, cancel := context.WithTimeout(ctx, a.timeout)
				a.ctrl.Handle(tctx, r.text)
				cancel()
			case reqReset:
				a.ctrl.Reset()
			}
		}
	}
}

// Submit queues a finalized utterance or typed text as a user turn.
func (a *App) Submit(text string) {
	a.enqueue(request{kind: reqText, text: text})
}

// Reset is the manual reset control: conversation state is dropped and
// listening stops.
func (a *App) Reset() {
	a.rec.Stop()
	a.enqueue(request{kind: reqReset})
}

func (a *App) enqueue(r request) {
	select {
	case a.turns <- r:
	case <-a.done:
		log.Warn("Turn dropped, assistant stopped")
	}
}

func (a *App) Status() Status {
	return Status{
		Listening:  a.rec.Listening(),
		Speaking:   a.out.Speaking(),
		Muted:      !a.out.Enabled(),
		Transcript: a.rec.Transcript(),
		Pending:    len(a.ctrl.Pending()),
		Messages:   len(a.ctrl.Messages()),
		Device:     a.exec.State(),
	}
}

// Control executes a named command from an outer surface.
func (a *App) Control(cmd, text string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(cmd)) {
	case CmdListen:
		a.rec.Start()
	case CmdStop:
		a.rec.Stop()
	case CmdReset:
		a.Reset()
	case CmdSay:
		if strings.TrimSpace(text) == "" {
			return a.Status(), ErrEmptyText
		}
		a.Submit(text)
	case CmdMute:
		a.out.SetEnabled(false)
	case CmdUnmute:
		a.out.SetEnabled(true)
	case CmdStatus:
	default:
		return a.Status(), fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}
	return a.Status(), nil
}
