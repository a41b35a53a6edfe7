package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRMS(t *testing.T) {
	assert.Zero(t, RMS(nil))
	assert.Zero(t, RMS(make([]float32, FrameSize)))
	assert.InDelta(t, 0.5, RMS([]float32{0.5, -0.5, 0.5, -0.5}), 1e-9)
}

func TestFrameDuration(t *testing.T) {
	assert.Equal(t, 20*time.Millisecond, FrameDuration(FrameSize))
	assert.Equal(t, time.Second, FrameDuration(SampleRate))
}

func TestDownmixAndResample(t *testing.T) {
	assert.Equal(t, []float32{0.5, 0}, downmix([]float32{1, 0, 0.5, -0.5}, 2))

	in := []float32{0, 1, 0, 1}
	assert.Equal(t, in, resample(in, SampleRate, SampleRate))

	up := resample([]float32{0, 1}, 8000, 16000)
	require.Len(t, up, 4)
	assert.InDelta(t, 0.5, up[1], 1e-6)
	assert.Equal(t, float32(1), up[3])

	down := resample(make([]float32, 32000), 32000, SampleRate)
	assert.Len(t, down, SampleRate)
}

func TestDecodeRejectsUnknownFormat(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("hello")), "flac")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = sniff(bytes.NewReader([]byte("fLaC....")))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	format, err := sniff(bytes.NewReader([]byte("RIFF....WAVE")))
	require.NoError(t, err)
	assert.Equal(t, "wav", format)
}

func TestFileSourceEndsWithEOF(t *testing.T) {
	src := NewFileSource([]float32{1, 2, 3, 4, 5}, false)
	frame := make([]float32, 3)

	require.NoError(t, src.Read(frame))
	assert.Equal(t, []float32{1, 2, 3}, frame)

	require.NoError(t, src.Read(frame))
	assert.Equal(t, []float32{4, 5, 0}, frame)

	assert.ErrorIs(t, src.Read(frame), io.EOF)
	assert.NoError(t, src.Close())
}

func TestSilenceNeverEnds(t *testing.T) {
	src := NewSilence(false)
	frame := []float32{1, 1}
	for range 3 {
		require.NoError(t, src.Read(frame))
	}
	assert.Equal(t, []float32{0, 0}, frame)
}

const sinkInputs = `Sink Input #42
	Driver: PipeWire
	Sink: 55
	Volume: front-left: 52428 /  80% / -5.81 dB,   front-right: 52428 /  80% / -5.81 dB
	Properties:
		application.name = "Firefox"
		media.name = "Playback"
Sink Input #43
	Volume: mono: 65536 / 100% / 0.00 dB
	Properties:
		application.name = "homevox"
Sink Input #bad
	Volume: mono: 65536 / 100% / 0.00 dB
`

func TestParseSinkInputs(t *testing.T) {
	got := parseSinkInputs(sinkInputs)
	assert.Equal(t, []sinkInput{
		{ID: 42, Volume: 80, AppName: "Firefox"},
		{ID: 43, Volume: 100, AppName: "homevox"},
	}, got)

	assert.Empty(t, parseSinkInputs(""))
}

type fakePactl struct {
	mu   sync.Mutex
	list string
	sets []string
	fail error
}

func (f *fakePactl) run(_ context.Context, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	if args[0] == "list" {
		return []byte(f.list), nil
	}
	f.sets = append(f.sets, strings.Join(args[1:], " "))
	return nil, nil
}

func TestDuckerLowersOnlyForeignStreams(t *testing.T) {
	fake := &fakePactl{list: sinkInputs}
	d := NewDucker([]string{"homevox"}, 0.25, 10, 0)
	d.run = fake.run

	require.NoError(t, d.Duck(context.Background()))
	assert.Equal(t, []string{"42 20%"}, fake.sets)

	// already ducked
	require.NoError(t, d.Duck(context.Background()))
	assert.Len(t, fake.sets, 1)

	fake.list = strings.Replace(sinkInputs, "80%", "20%", 2)
	require.NoError(t, d.Restore(context.Background()))
	assert.Equal(t, []string{"42 20%", "42 80%"}, fake.sets)

	require.NoError(t, d.Restore(context.Background()))
	assert.Len(t, fake.sets, 2)
}

func TestDuckerRespectsFloorAndFades(t *testing.T) {
	fake := &fakePactl{list: sinkInputs}
	d := NewDucker(nil, 0, 30, 30*time.Millisecond)
	d.run = fake.run

	require.NoError(t, d.Duck(context.Background()))
	assert.Equal(t, []string{
		"42 63%", "43 77%",
		"42 47%", "43 53%",
		"42 30%", "43 30%",
	}, fake.sets)
}

func TestDuckerReportsPactlFailure(t *testing.T) {
	fake := &fakePactl{fail: errors.New("exit status 1")}
	d := NewDucker(nil, 0.5, 0, 0)
	d.run = fake.run

	err := d.Duck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pactl list sink-inputs")
	assert.False(t, d.ducked)
}

func isDucked(d *Ducker) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ducked
}

func (f *fakePactl) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sets) == 0 {
		return ""
	}
	return f.sets[len(f.sets)-1]
}

func TestHookAppliesTransitionsInOrder(t *testing.T) {
	fake := &fakePactl{list: sinkInputs}
	d := NewDucker([]string{"homevox"}, 0.25, 10, 20*time.Millisecond)
	d.run = fake.run

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hook := d.Hook(ctx)

	hook(true)
	require.Eventually(t, func() bool { return isDucked(d) }, time.Second, 5*time.Millisecond)

	// A quick cancel right after speaking starts must not leave streams low.
	hook(false)
	hook(true)
	hook(false)

	require.Eventually(t, func() bool { return !isDucked(d) }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.False(t, isDucked(d))
	assert.Equal(t, "42 80%", fake.last())
}

func TestHookRestoresOnShutdown(t *testing.T) {
	fake := &fakePactl{list: sinkInputs}
	d := NewDucker([]string{"homevox"}, 0.25, 10, 0)
	d.run = fake.run

	ctx, cancel := context.WithCancel(context.Background())
	hook := d.Hook(ctx)

	hook(true)
	require.Eventually(t, func() bool { return isDucked(d) }, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return !isDucked(d) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"42 20%", "42 80%"}, fake.sets)
}
