package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homevox/internal/command"
	"homevox/internal/device"
	"homevox/pkg/protocol"
)

type fakeLink struct {
	mu   sync.Mutex
	sent []string
	fail map[string]bool
}

func (f *fakeLink) Request(_ context.Context, fr protocol.Frame) (*protocol.Frame, error) {
	fr.From = "homevox"
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, fr.String())
	if f.fail[fr.Noun] {
		reply := fr.Reply(false, "BUSY")
		return &reply, nil
	}
	if fr.Noun == "THERMO" && fr.Args[0] == "0" {
		return nil, errors.New("timeout")
	}
	reply := fr.Reply(true, fr.Noun)
	return &reply, nil
}

func (f *fakeLink) frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func TestFrames(t *testing.T) {
	got := Frames("VERTEX", []device.Change{
		{Device: device.LivingRoomLight, Action: command.TurnOn},
		{Device: device.LivingRoomLight, Action: command.TurnOff},
		{Device: device.FrontDoor, Action: command.Lock},
		{Device: device.FrontDoor, Action: command.Unlock},
		{Device: device.Thermostat, Action: command.SetTemperature, Value: 68},
		{Device: "garage", Action: "OPEN"},
	})

	var lines []string
	for _, f := range got {
		f.From = "homevox"
		lines = append(lines, f.String())
	}
	assert.Equal(t, []string{
		"VERTEX:ON:LAMP:homevox",
		"VERTEX:OFF:LAMP:homevox",
		"VERTEX:LOCK:DOOR:homevox",
		"VERTEX:UNLOCK:DOOR:homevox",
		"VERTEX:SET:THERMO:68:homevox",
	}, lines)
}

func TestMirrorReplaysInOrder(t *testing.T) {
	link := &fakeLink{fail: map[string]bool{"DOOR": true}}
	m := NewMirror(link, "", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.OnDevice(device.State{}, []device.Change{{Device: device.FrontDoor, Action: command.Unlock}})
	m.OnDevice(device.State{}, []device.Change{
		{Device: device.Thermostat, Action: command.SetTemperature, Value: 0},
		{Device: device.LivingRoomLight, Action: command.TurnOn},
	})

	require.Eventually(t, func() bool { return len(link.frames()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{
		"VERTEX:UNLOCK:DOOR:homevox",
		"VERTEX:SET:THERMO:0:homevox",
		"VERTEX:ON:LAMP:homevox",
	}, link.frames())
}

func TestMirrorSendReportsRejection(t *testing.T) {
	link := &fakeLink{fail: map[string]bool{"LAMP": true}}
	m := NewMirror(link, "HUB", time.Second)

	err := m.send(context.Background(), protocol.Frame{To: "HUB", Verb: "ON", Noun: "LAMP"})
	assert.ErrorIs(t, err, ErrRejected)
}
