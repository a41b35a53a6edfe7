package audio

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Init loads PortAudio. It must be called before OpenMic.
func Init() error {
	return portaudio.Initialize()
}

func Terminate() {
	_ = portaudio.Terminate()
}

// Mic reads the default input device.
type Mic struct {
	buf    []float32
	stream *portaudio.Stream
}

func OpenMic(frameSize int) (*Mic, error) {
	if frameSize <= 0 {
		frameSize = FrameSize
	}

	buf := make([]float32, frameSize)

	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("open input stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start input stream: %w", err)
	}

	return &Mic{buf: buf, stream: stream}, nil
}

func (m *Mic) Read(frame []float32) error {
	// an overflow loses some input but the buffer is still valid
	if err := m.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return err
	}
	n := copy(frame, m.buf)
	clear(frame[n:])
	return nil
}

func (m *Mic) Close() error {
	_ = m.stream.Stop()
	return m.stream.Close()
}
