package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

var ErrUnsupportedFormat = errors.New("unsupported audio format")

// pcm is interleaved float32 audio before conversion to mono 16 kHz.
type pcm struct {
	samples  []float32
	rate     int
	channels int
}

func (p pcm) mono16k() []float32 {
	x := downmix(p.samples, p.channels)
	return resample(x, p.rate, SampleRate)
}

// DecodeFile reads a wav, mp3 or ogg (vorbis or opus) file into mono PCM at
// SampleRate. The extension picks the decoder; unknown extensions are sniffed.
func DecodeFile(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format != "wav" && format != "mp3" && format != "ogg" && format != "oga" {
		format, err = sniff(f)
		if err != nil {
			return nil, err
		}
	}

	return Decode(f, format)
}

// Decode reads audio of the given format ("wav", "mp3", "ogg").
func Decode(r io.ReadSeeker, format string) ([]float32, error) {
	var (
		p   pcm
		err error
	)

	switch format {
	case "wav":
		p, err = decodeWAV(r)
	case "mp3":
		p, err = decodeMP3(r)
	case "ogg", "oga":
		p, err = decodeOgg(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}

	return p.mono16k(), nil
}

func sniff(r io.ReadSeeker) (string, error) {
	magic, _ := bufio.NewReader(r).Peek(4)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	switch {
	case string(magic) == "RIFF":
		return "wav", nil
	case string(magic) == "OggS":
		return "ogg", nil
	case len(magic) >= 3 && string(magic[:3]) == "ID3":
		return "mp3", nil
	}
	return "", ErrUnsupportedFormat
}

func decodeWAV(r io.ReadSeeker) (pcm, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return pcm{}, errors.New("invalid wav")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return pcm{}, fmt.Errorf("read wav: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return pcm{}, errors.New("empty wav")
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}
	scale := 1.0 / float64(int64(1)<<(depth-1))

	x := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		x[i] = float32(max(-1, min(1, float64(v)*scale)))
	}

	p := pcm{samples: x, rate: 44100, channels: 1}
	if buf.Format != nil {
		if buf.Format.NumChannels > 0 {
			p.channels = buf.Format.NumChannels
		}
		if buf.Format.SampleRate > 0 {
			p.rate = buf.Format.SampleRate
		}
	}
	return p, nil
}

func decodeMP3(r io.Reader) (pcm, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return pcm{}, fmt.Errorf("open mp3: %w", err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return pcm{}, fmt.Errorf("read mp3: %w", err)
	}

	ints := make([]int16, len(raw)/2)
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, ints); err != nil {
		return pcm{}, err
	}

	rate := dec.SampleRate()
	if rate <= 0 {
		rate = 44100
	}
	// go-mp3 always decodes to 16-bit stereo
	return pcm{samples: int16ToFloat(ints), rate: rate, channels: 2}, nil
}

// decodeOgg tries vorbis first and falls back to opus.
func decodeOgg(r io.ReadSeeker) (pcm, error) {
	samples, format, verr := oggvorbis.ReadAll(r)
	if verr == nil && format != nil && format.Channels > 0 && format.SampleRate > 0 {
		return pcm{samples: samples, rate: format.SampleRate, channels: format.Channels}, nil
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return pcm{}, err
	}

	p, oerr := decodeOpus(r)
	if oerr != nil {
		return pcm{}, fmt.Errorf("ogg is neither vorbis (%v) nor opus: %w", verr, oerr)
	}
	return p, nil
}

func decodeOpus(r io.ReadSeeker) (pcm, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return pcm{}, err
	}
	defer dec.Destroy()

	ch := max(dec.ChannelCount(), 1)

	// opus always decodes at 48 kHz; read about half a second at a time
	buf := make([]int16, 24000*ch)
	var out []float32
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			out = append(out, int16ToFloat(buf[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return pcm{}, err
		}
	}

	return pcm{samples: out, rate: 48000, channels: ch}, nil
}

func int16ToFloat(data []int16) []float32 {
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v) / 32768
	}
	return out
}

func downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	out := make([]float32, len(in)/channels)
	for i := range out {
		var sum float64
		for _, v := range in[i*channels : (i+1)*channels] {
			sum += float64(v)
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// resample converts sample rate with linear interpolation.
func resample(in []float32, from, to int) []float32 {
	if from == to || from <= 0 || len(in) == 0 {
		return in
	}

	ratio := float64(to) / float64(from)
	out := make([]float32, int(math.Ceil(float64(len(in))*ratio)))
	last := len(in) - 1

	for i := range out {
		pos := float64(i) / ratio
		j := int(pos)
		if j >= last {
			out[i] = in[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j]*(1-frac) + in[j+1]*frac
	}
	return out
}
