// Package capture implements a streaming recognizer on top of an audio source
// and an offline transcriber: speech is cut into segments by energy, each
// segment is transcribed and appended to the session's results.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"regexp"
	"strings"
	"time"

	"homevox/internal/audio"
	"homevox/internal/recognition"
)

const (
	DefaultThreshold  = 0.015
	DefaultPause      = 600 * time.Millisecond
	DefaultMaxSession = 60 * time.Second
	DefaultNoSpeech   = 8 * time.Second
	DefaultMaxSegment = 15 * time.Second
)

// Opener opens a fresh source for each session.
type Opener func() (audio.Source, error)

type Transcriber interface {
	Transcribe(ctx context.Context, pcm []float32, lang string) (string, error)
}

type Config struct {
	Language   string
	Threshold  float64       // frame RMS above this counts as speech
	Pause      time.Duration // quiet inside speech that closes a segment
	MaxSession time.Duration
	NoSpeech   time.Duration // quiet that ends the session
	MaxSegment time.Duration
}

func (c *Config) withDefaults() {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Pause <= 0 {
		c.Pause = DefaultPause
	}
	if c.MaxSession <= 0 {
		c.MaxSession = DefaultMaxSession
	}
	if c.NoSpeech <= 0 {
		c.NoSpeech = DefaultNoSpeech
	}
	if c.MaxSegment <= 0 {
		c.MaxSegment = DefaultMaxSegment
	}
}

// WhisperRecognizer satisfies recognition.Recognizer.
type WhisperRecognizer struct {
	open Opener
	stt  Transcriber
	cfg  Config
}

func NewWhisperRecognizer(open Opener, stt Transcriber, cfg Config) *WhisperRecognizer {
	cfg.withDefaults()
	return &WhisperRecognizer{open: open, stt: stt, cfg: cfg}
}

func (r *WhisperRecognizer) Start(ctx context.Context, emit recognition.Emitter) error {
	if r.open == nil || r.stt == nil {
		return errors.New("recognizer has no audio source or transcriber")
	}
	go r.session(ctx, emit)
	return nil
}

// session owns one source for its whole life and always ends with
// SessionEnded.
func (r *WhisperRecognizer) session(ctx context.Context, emit recognition.Emitter) {
	defer emit(recognition.Event{Kind: recognition.SessionEnded})

	src, err := r.open()
	if err != nil {
		emit(sessionError(recognition.ErrNotAllowed, fmt.Errorf("open audio input: %w", err)))
		return
	}
	defer src.Close()

	emit(recognition.Event{Kind: recognition.SessionStarted})

	var results []recognition.Result
	s := segmenter{cfg: r.cfg}
	frame := make([]float32, audio.FrameSize)
	step := audio.FrameDuration(len(frame))

	for elapsed := time.Duration(0); elapsed < r.cfg.MaxSession; elapsed += step {
		if ctx.Err() != nil {
			emit(sessionError(recognition.ErrAborted, ctx.Err()))
			return
		}

		err := src.Read(frame)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			emit(sessionError(recognition.ErrAudioCapture, err))
			return
		}

		seg, state := s.push(frame, step)
		if seg != nil {
			r.transcribe(ctx, seg, &results, emit)
		}
		if state == stateQuiet {
			if len(results) == 0 {
				emit(sessionError(recognition.ErrNoSpeech, errors.New("no speech detected")))
			}
			return
		}
	}

	if seg := s.flush(); seg != nil {
		r.transcribe(ctx, seg, &results, emit)
	}
}

func (r *WhisperRecognizer) transcribe(ctx context.Context, pcm []float32, results *[]recognition.Result, emit recognition.Emitter) {
	text, err := r.stt.Transcribe(ctx, pcm, r.cfg.Language)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("Segment transcription failed", "samples", len(pcm), "err", err)
		}
		return
	}

	text = cleanTranscript(text)
	if text == "" {
		return
	}
	log.Debug("Segment transcribed", "text", text)

	*results = append(*results, recognition.Result{Transcript: text, Final: true})
	emit(recognition.Event{
		Kind:    recognition.ResultBatch,
		Results: append([]recognition.Result(nil), *results...),
	})
}

func sessionError(code recognition.ErrorCode, err error) recognition.Event {
	return recognition.Event{Kind: recognition.SessionError, Code: code, Message: err.Error()}
}

// whisper marks non-speech with bracketed tags such as [BLANK_AUDIO] or
// (music).
var annotationRe = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|\*[^*]*\*`)

func cleanTranscript(s string) string {
	s = annotationRe.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}
