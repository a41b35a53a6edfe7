package audio

import (
	"context"
	"fmt"
	log "log/slog"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const maxVolume = 150

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

type sinkInput struct {
	ID      int
	Volume  int
	AppName string
}

type fade struct {
	id   int
	from int
	to   int
}

// runFunc executes pactl with args and returns its stdout.
type runFunc func(ctx context.Context, args ...string) ([]byte, error)

func pactl(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "pactl", args...).Output()
}

// Ducker lowers the volume of other PulseAudio streams while the assistant
// talks. Streams whose application.name is in skip are left alone.
type Ducker struct {
	skip      []string
	factor    float64
	minVolume int
	fadeTime  time.Duration
	run       runFunc

	mu       sync.Mutex
	ducked   bool
	original map[int]int
}

func NewDucker(skip []string, factor float64, minVolume int, fadeTime time.Duration) *Ducker {
	return &Ducker{
		skip:      append([]string(nil), skip...),
		factor:    max(0, min(1, factor)),
		minVolume: max(0, min(maxVolume, minVolume)),
		fadeTime:  fadeTime,
		run:       pactl,
		original:  make(map[int]int),
	}
}

// Hook adapts the ducker to a speaking-change callback. Transitions are
// applied in order by one goroutine; a burst collapses into its last state.
// When ctx ends the streams are restored. Failures are logged; ducking is
// cosmetic.
func (d *Ducker) Hook(ctx context.Context) func(bool) {
	var want atomic.Bool
	wake := make(chan struct{}, 1)

	go func() {
		for {
			select {
			case <-ctx.Done():
				rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
				if err := d.Restore(rctx); err != nil {
					log.Warn("Failed to restore volumes", "err", err)
				}
				cancel()
				return
			case <-wake:
			}

			speaking := want.Load()
			var err error
			if speaking {
				err = d.Duck(ctx)
			} else {
				err = d.Restore(ctx)
			}
			if err != nil {
				log.Warn("Volume ducking failed", "speaking", speaking, "err", err)
			}
		}
	}()

	return func(speaking bool) {
		want.Store(speaking)
		select {
		case wake <- struct{}{}:
		default:
		}
	}
}

// Duck fades every foreign stream to factor times its volume, not below
// minVolume.
func (d *Ducker) Duck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ducked {
		return nil
	}

	inputs, err := d.list(ctx)
	if err != nil {
		return err
	}

	d.original = make(map[int]int)
	var fades []fade
	for _, in := range inputs {
		if d.skipped(in) {
			continue
		}
		to := int(math.Round(float64(in.Volume) * d.factor))
		to = max(d.minVolume, min(maxVolume, to))

		d.original[in.ID] = in.Volume
		fades = append(fades, fade{id: in.ID, from: in.Volume, to: to})
	}

	if err := d.fade(ctx, fades); err != nil {
		return err
	}
	d.ducked = true
	return nil
}

// Restore fades ducked streams back. Streams that appeared after Duck are
// not touched.
func (d *Ducker) Restore(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.ducked {
		return nil
	}

	inputs, err := d.list(ctx)
	if err != nil {
		return err
	}

	var fades []fade
	for _, in := range inputs {
		orig, ok := d.original[in.ID]
		if !ok || d.skipped(in) {
			continue
		}
		fades = append(fades, fade{id: in.ID, from: in.Volume, to: orig})
	}

	if err := d.fade(ctx, fades); err != nil {
		return err
	}
	d.original = make(map[int]int)
	d.ducked = false
	return nil
}

func (d *Ducker) skipped(in sinkInput) bool {
	for _, name := range d.skip {
		if in.AppName == name {
			return true
		}
	}
	return false
}

func (d *Ducker) list(ctx context.Context) ([]sinkInput, error) {
	out, err := d.run(ctx, "list", "sink-inputs")
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return parseSinkInputs(string(out)), nil
}

func (d *Ducker) setVolume(ctx context.Context, id, percent int) error {
	percent = max(0, min(maxVolume, percent))
	_, err := d.run(ctx, "set-sink-input-volume", strconv.Itoa(id), fmt.Sprintf("%d%%", percent))
	if err != nil {
		return fmt.Errorf("set volume of sink input %d: %w", id, err)
	}
	return nil
}

// fade steps all targets together in 10ms increments.
func (d *Ducker) fade(ctx context.Context, fades []fade) error {
	if len(fades) == 0 {
		return nil
	}

	steps := max(1, int(d.fadeTime/(10*time.Millisecond)))
	if d.fadeTime <= 0 {
		steps = 1
	}
	pause := d.fadeTime / time.Duration(steps)

	for i := 1; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		frac := float64(i) / float64(steps)
		for _, f := range fades {
			v := int(math.Round(float64(f.from) + float64(f.to-f.from)*frac))
			if err := d.setVolume(ctx, f.id, v); err != nil {
				return err
			}
		}

		if i < steps && pause > 0 {
			time.Sleep(pause)
		}
	}
	return nil
}

// parseSinkInputs reads the output of `pactl list sink-inputs`.
func parseSinkInputs(text string) []sinkInput {
	blocks := strings.Split(text, "Sink Input #")
	var res []sinkInput

	for _, block := range blocks[1:] {
		header, body, ok := strings.Cut(block, "\n")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(header))
		if err != nil {
			continue
		}

		in := sinkInput{ID: id}
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)

			if strings.HasPrefix(line, "Volume:") && in.Volume == 0 {
				if m := percentRe.FindStringSubmatch(line); m != nil {
					in.Volume, _ = strconv.Atoi(m[1])
				}
			}

			if v, ok := strings.CutPrefix(line, "application.name = "); ok && in.AppName == "" {
				in.AppName = strings.Trim(v, `"`)
			}
		}

		if in.Volume == 0 && in.AppName == "" {
			continue
		}
		res = append(res, in)
	}
	return res
}
