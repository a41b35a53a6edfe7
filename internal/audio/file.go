package audio

import (
	"fmt"
	"io"
	"time"
)

// FileSource plays back decoded PCM. With realtime set, Read paces itself to
// the sample rate like a live device would.
type FileSource struct {
	pcm      []float32
	pos      int
	realtime bool
	next     time.Time
}

func NewFileSource(pcm []float32, realtime bool) *FileSource {
	return &FileSource{pcm: pcm, realtime: realtime}
}

func OpenFile(path string, realtime bool) (*FileSource, error) {
	pcm, err := DecodeFile(path)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return NewFileSource(pcm, realtime), nil
}

func (f *FileSource) Read(frame []float32) error {
	if f.pos >= len(f.pcm) {
		return io.EOF
	}

	n := copy(frame, f.pcm[f.pos:])
	clear(frame[n:])
	f.pos += n

	f.pace(len(frame))
	return nil
}

func (f *FileSource) Close() error { return nil }

func (f *FileSource) pace(n int) {
	if !f.realtime {
		return
	}
	now := time.Now()
	if f.next.IsZero() {
		f.next = now
	}
	f.next = f.next.Add(FrameDuration(n))
	if d := f.next.Sub(now); d > 0 {
		time.Sleep(d)
	}
}

// Silence is an endless quiet input.
type Silence struct {
	FileSource
}

func NewSilence(realtime bool) *Silence {
	return &Silence{FileSource: FileSource{realtime: realtime}}
}

func (s *Silence) Read(frame []float32) error {
	clear(frame)
	s.pace(len(frame))
	return nil
}
