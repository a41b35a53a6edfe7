// Package hub mirrors simulated device changes to a hardware hub so real
// devices can follow along.
package hub

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strconv"
	"time"

	"homevox/internal/command"
	"homevox/internal/device"
	"homevox/pkg/protocol"
)

const DefaultTarget = "VERTEX"

var ErrRejected = errors.New("hub rejected frame")

type Requester interface {
	Request(ctx context.Context, f protocol.Frame) (*protocol.Frame, error)
}

// Mirror queues device changes from the executor and replays them to the hub
// in order from Run.
type Mirror struct {
	link    Requester
	target  string
	timeout time.Duration
	queue   chan []device.Change
}

func NewMirror(link Requester, target string, timeout time.Duration) *Mirror {
	if target == "" {
		target = DefaultTarget
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Mirror{
		link:    link,
		target:  target,
		timeout: timeout,
		queue:   make(chan []device.Change, 16),
	}
}

// OnDevice has the events.Device handler signature. It never blocks; when the
// queue is full the batch is dropped.
func (m *Mirror) OnDevice(_ device.State, changes []device.Change) {
	select {
	case m.queue <- append([]device.Change(nil), changes...):
	default:
		log.Warn("Hub mirror queue full, dropping changes", "changes", len(changes))
	}
}

func (m *Mirror) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case changes := <-m.queue:
			for _, f := range Frames(m.target, changes) {
				if err := m.send(ctx, f); err != nil {
					log.Warn("Failed to mirror device change", "frame", f.String(), "err", err)
				}
			}
		}
	}
}

func (m *Mirror) send(ctx context.Context, f protocol.Frame) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	reply, err := m.link.Request(ctx, f)
	if err != nil {
		return err
	}
	if reply.IsError() {
		return fmt.Errorf("%w: %s", ErrRejected, reply.String())
	}
	return nil
}

// Frames maps device changes to hub frames addressed to target.
func Frames(target string, changes []device.Change) []protocol.Frame {
	var out []protocol.Frame
	for _, c := range changes {
		f := protocol.Frame{To: target}
		switch c.Device {
		case device.LivingRoomLight:
			f.Noun = "LAMP"
			f.Verb = "OFF"
			if c.Action == command.TurnOn {
				f.Verb = "ON"
			}
		case device.FrontDoor:
			f.Noun = "DOOR"
			f.Verb = "UNLOCK"
			if c.Action == command.Lock {
				f.Verb = "LOCK"
			}
		case device.Thermostat:
			f.Verb = "SET"
			f.Noun = "THERMO"
			f.Args = []string{strconv.Itoa(c.Value)}
		default:
			continue
		}
		out = append(out, f)
	}
	return out
}
