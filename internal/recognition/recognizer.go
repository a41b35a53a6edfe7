// Package recognition turns a continuous streaming recognizer into finalized
// utterances using a silence window, and keeps the recognizer running until
// listening is explicitly stopped.
package recognition

import (
	"context"
	"strings"
)

// ErrorCode classifies a recognizer session error.
type ErrorCode string

const (
	ErrNotAllowed   ErrorCode = "not-allowed"
	ErrNoSpeech     ErrorCode = "no-speech"
	ErrAborted      ErrorCode = "aborted"
	ErrAudioCapture ErrorCode = "audio-capture"
	ErrNetwork      ErrorCode = "network"
)

type EventKind int

const (
	SessionStarted EventKind = iota
	ResultBatch
	SessionError
	SessionEnded
)

func (k EventKind) String() string {
	switch k {
	case SessionStarted:
		return "session-started"
	case ResultBatch:
		return "result-batch"
	case SessionError:
		return "error"
	case SessionEnded:
		return "session-ended"
	default:
		return "unknown"
	}
}

// Result is one recognized fragment.
type Result struct {
	Transcript string
	Final      bool
}

// Event is emitted by a recognizer session. Results of a ResultBatch are
// cumulative: every batch carries all results of the session so far.
type Event struct {
	Kind    EventKind
	Results []Result
	Code    ErrorCode
	Message string
}

type Emitter func(Event)

// Recognizer runs recognition sessions. Start must not block; the session
// runs until ctx is cancelled or the recognizer gives up on its own. After a
// nil return, the session emits SessionEnded exactly once, last.
type Recognizer interface {
	Start(ctx context.Context, emit Emitter) error
}

func joinResults(results []Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if s := strings.TrimSpace(r.Transcript); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
