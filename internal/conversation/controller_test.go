package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"homevox/internal/command"
	"homevox/internal/device"
)

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, text string) ([]command.Command, error) {
	args := m.Called(ctx, text)
	cmds, _ := args.Get(0).([]command.Command)
	return cmds, args.Error(1)
}

func (m *mockExtractor) Reset() {
	m.Called()
}

type fakeSpeaker struct {
	speaking bool
	said     []string
}

func (f *fakeSpeaker) Speak(text string) { f.said = append(f.said, text) }
func (f *fakeSpeaker) Speaking() bool    { return f.speaking }

type fixture struct {
	ext   *mockExtractor
	exec  *device.Executor
	out   *fakeSpeaker
	ctrl  *Controller
	seen  []Message
	reset int
}

func newFixture() *fixture {
	f := &fixture{
		ext:  &mockExtractor{},
		exec: device.NewExecutor(device.DefaultState()),
		out:  &fakeSpeaker{},
	}
	f.ctrl = New(f.ext, f.exec, f.out, Options{
		OnMessage: func(m Message) { f.seen = append(f.seen, m) },
		OnReset:   func() { f.reset++ },
	})
	return f
}

var lightOn = []command.Command{{
	Summary:    "Turn on the living room light",
	Action:     command.TurnOn,
	Parameters: map[string]any{"device": "living_room_light"},
}}

func (f *fixture) propose(t *testing.T, cmds []command.Command) {
	t.Helper()
	f.ext.On("Extract", mock.Anything, "turn on the light").Return(cmds, nil).Once()
	f.ctrl.Handle(context.Background(), "turn on the light")
	require.NotNil(t, f.ctrl.Pending())
}

func TestProposalIsRenderedAndSpoken(t *testing.T) {
	f := newFixture()
	cmds := []command.Command{
		lightOn[0],
		{Summary: "Lock the front door.", Action: command.Lock, Parameters: map[string]any{"device": "front_door"}},
	}
	f.propose(t, cmds)

	msgs := f.ctrl.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, KindUserText, msgs[0].Kind)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, KindProposal, msgs[1].Kind)
	assert.Equal(t, "1. Turn on the living room light\n2. Lock the front door", msgs[1].Text)
	assert.Len(t, msgs[1].Commands, 2)
	assert.NotEmpty(t, msgs[1].ID)

	require.Len(t, f.out.said, 1)
	assert.Equal(t, "I heard: 1... Turn on the living room light. 2... Lock the front door. Should I execute?", f.out.said[0])
	assert.True(t, command.Equal(cmds, f.ctrl.Pending()))
	assert.Equal(t, msgs, f.seen)
}

func TestShortAffirmativeExecutesWithoutRemoteCall(t *testing.T) {
	f := newFixture()
	f.propose(t, lightOn)

	f.ctrl.Handle(context.Background(), "Yes please!")

	f.ext.AssertNumberOfCalls(t, "Extract", 1)
	assert.Nil(t, f.ctrl.Pending())
	assert.True(t, f.exec.State().LivingRoomLight)

	msgs := f.ctrl.Messages()
	last := msgs[len(msgs)-1]
	assert.Equal(t, KindExecution, last.Kind)
	assert.Equal(t, "Turn on the living room light", last.Text)
	assert.Equal(t, "Done. Turn on the living room light.", f.out.said[len(f.out.said)-1])
}

func TestRejectionClearsProposal(t *testing.T) {
	f := newFixture()
	f.propose(t, lightOn)

	f.ctrl.Handle(context.Background(), "No.")

	f.ext.AssertNumberOfCalls(t, "Extract", 1)
	assert.Nil(t, f.ctrl.Pending())
	assert.False(t, f.exec.State().LivingRoomLight)
	assert.Equal(t, RePromptText, f.out.said[len(f.out.said)-1])
}

func TestRejectionNeedsExactMatch(t *testing.T) {
	f := newFixture()
	f.propose(t, lightOn)

	corrected := []command.Command{{Summary: "Turn on the porch light", Action: command.TurnOn, Parameters: map[string]any{"device": "porch"}}}
	f.ext.On("Extract", mock.Anything, "no the porch light").Return(corrected, nil).Once()

	f.ctrl.Handle(context.Background(), "no the porch light")

	f.ext.AssertNumberOfCalls(t, "Extract", 2)
	assert.True(t, command.Equal(corrected, f.ctrl.Pending()))
}

func TestLongAffirmativeGoesRemoteAndConfirmsOnSameList(t *testing.T) {
	f := newFixture()
	f.propose(t, lightOn)

	text := "yes go ahead and do that now"
	same := []command.Command{{Summary: "Switch on living room light", Action: "turn_on", Parameters: map[string]any{"device": "living_room_light"}}}
	f.ext.On("Extract", mock.Anything, text).Return(same, nil).Once()

	f.ctrl.Handle(context.Background(), text)

	f.ext.AssertNumberOfCalls(t, "Extract", 2)
	assert.Nil(t, f.ctrl.Pending())
	assert.True(t, f.exec.State().LivingRoomLight)
}

func TestSameListWithoutAffirmationReplacesProposal(t *testing.T) {
	f := newFixture()
	f.propose(t, lightOn)

	f.ext.On("Extract", mock.Anything, "the living room one").Return(lightOn, nil).Once()
	f.ctrl.Handle(context.Background(), "the living room one")

	assert.NotNil(t, f.ctrl.Pending())
	assert.False(t, f.exec.State().LivingRoomLight)
	assert.Equal(t, KindProposal, f.ctrl.Messages()[3].Kind)
}

func TestEmptyExtraction(t *testing.T) {
	f := newFixture()
	f.ext.On("Extract", mock.Anything, "Hey there").Return([]command.Command{}, nil).Once()
	f.ext.On("Extract", mock.Anything, "purple monkey dishwasher").Return(nil, nil).Once()

	f.ctrl.Handle(context.Background(), "Hey there")
	f.ctrl.Handle(context.Background(), "purple monkey dishwasher")

	assert.Equal(t, []string{GreetingText, NotUnderstoodText}, f.out.said)
	assert.Nil(t, f.ctrl.Pending())
}

func TestRemoteFailureLeavesProposal(t *testing.T) {
	f := newFixture()
	f.propose(t, lightOn)
	before := f.ctrl.Pending()
	saidBefore := len(f.out.said)

	f.ext.On("Extract", mock.Anything, "and lock the door").Return(nil, errors.New("dial tcp: timeout")).Once()
	f.ctrl.Handle(context.Background(), "and lock the door")

	var system []Message
	for _, m := range f.ctrl.Messages() {
		if m.Role == RoleSystem {
			system = append(system, m)
		}
	}
	require.Len(t, system, 1)
	assert.Equal(t, KindSystemInfo, system[0].Kind)
	assert.Equal(t, FailureText, system[0].Text)

	require.Len(t, f.out.said, saidBefore+1)
	assert.Equal(t, FailureText, f.out.said[saidBefore])
	assert.Equal(t, before, f.ctrl.Pending())
}

func TestTurnDiscardedWhileSpeaking(t *testing.T) {
	f := newFixture()
	f.out.speaking = true

	f.ctrl.Handle(context.Background(), "turn on the light")

	f.ext.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
	assert.Empty(t, f.ctrl.Messages())
}

func TestRestartKeywordResetsEverything(t *testing.T) {
	f := newFixture()
	f.propose(t, lightOn)
	f.ext.On("Reset").Return().Once()

	f.ctrl.Handle(context.Background(), "Restart.")

	f.ext.AssertCalled(t, "Reset")
	assert.Empty(t, f.ctrl.Messages())
	assert.Nil(t, f.ctrl.Pending())
	assert.Equal(t, 1, f.reset)
	f.ext.AssertNumberOfCalls(t, "Extract", 1)
}

func TestAffirmativeWithoutProposalGoesRemote(t *testing.T) {
	f := newFixture()
	f.ext.On("Extract", mock.Anything, "yes").Return([]command.Command{}, nil).Once()

	f.ctrl.Handle(context.Background(), "yes")

	f.ext.AssertNumberOfCalls(t, "Extract", 1)
	assert.Equal(t, []string{NotUnderstoodText}, f.out.said)
}

func TestProposalShowsMissingInfo(t *testing.T) {
	f := newFixture()
	f.propose(t, []command.Command{{Summary: "Set the thermostat", Action: command.SetTemperature, MissingInfo: "target temperature"}})

	msgs := f.ctrl.Messages()
	assert.Equal(t, "1. Set the thermostat (needs: target temperature)", msgs[1].Text)
}

func TestKeywordHelpers(t *testing.T) {
	assert.Equal(t, "yes please", normalize("  Yes,   please! "))
	assert.True(t, isQuickConfirm("yes please"))
	assert.True(t, isQuickConfirm("okay do it now"))
	assert.False(t, isQuickConfirm("yes and also set the heat"))
	assert.False(t, isAffirmative("yesterday"))
	assert.True(t, isRejection("never mind"))
	assert.False(t, isRejection("no way"))
	assert.True(t, isGreeting("good morning assistant"))
	assert.False(t, isGreeting("this is high"))
}
