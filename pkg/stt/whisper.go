// Package stt runs offline speech-to-text with whisper.cpp.
package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

var ErrNoAudio = errors.New("no audio samples provided")

type Options struct {
	Language      string // "auto", "en", ...
	Threads       int    // <=0 => NumCPU()
	InitialPrompt string
	BeamSize      int // 0 = greedy
}

type Segment struct {
	Text     string
	StartSec float64
	EndSec   float64
}

type Result struct {
	Text     string
	Segments []Segment
	Language string // detected or forced
}

// Transcriber owns a loaded model. Calls are serialized.
type Transcriber struct {
	mu    sync.Mutex
	model whisper.Model
	opts  Options
}

func NewTranscriber(modelPath string, opts Options) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("empty model path")
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return &Transcriber{model: m, opts: opts}, nil
}

func (t *Transcriber) Close() error {
	if t.model == nil {
		return nil
	}
	return t.model.Close()
}

// Transcribe returns the text of pcm using the transcriber's options. An empty
// lang keeps the configured language.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []float32, lang string) (string, error) {
	opts := t.opts
	if lang != "" {
		opts.Language = lang
	}
	res, err := t.TranscribePCM(ctx, pcm, opts)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// TranscribePCM runs the model over pcm, which must be mono 16 kHz float32
// in [-1, 1].
func (t *Transcriber) TranscribePCM(ctx context.Context, pcm []float32, opt Options) (Result, error) {
	if t.model == nil {
		return Result{}, errors.New("nil model")
	}
	if len(pcm) == 0 {
		return Result{}, ErrNoAudio
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("new context: %w", err)
	}

	if opt.Language == "" {
		opt.Language = "auto"
	}
	if err := wctx.SetLanguage(opt.Language); err != nil {
		return Result{}, fmt.Errorf("set language: %w", err)
	}

	threads := opt.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))

	if opt.BeamSize > 0 {
		wctx.SetBeamSize(opt.BeamSize)
	}
	if opt.InitialPrompt != "" {
		wctx.SetInitialPrompt(opt.InitialPrompt)
	}

	if err := wctx.Process(pcm, nil, nil, nil); err != nil {
		return Result{}, fmt.Errorf("process: %w", err)
	}

	var (
		segs  []Segment
		texts []string
	)
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		s, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("next segment: %w", err)
		}
		segs = append(segs, Segment{
			Text:     s.Text,
			StartSec: s.Start.Seconds(),
			EndSec:   s.End.Seconds(),
		})
		texts = append(texts, strings.TrimSpace(s.Text))
	}

	lang := wctx.DetectedLanguage()
	if lang == "" {
		lang = wctx.Language()
	}

	return Result{
		Text:     strings.Join(texts, " "),
		Segments: segs,
		Language: lang,
	}, nil
}
