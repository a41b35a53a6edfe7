package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerce(t *testing.T) {
	assert.Equal(t, true, Coerce("true"))
	assert.Equal(t, false, Coerce(" FALSE "))
	assert.Equal(t, 75.0, Coerce("75"))
	assert.Equal(t, 68.5, Coerce("68.5"))
	assert.Equal(t, "living room lamp", Coerce("living room lamp"))
	assert.Equal(t, "NaN", Coerce("NaN"))
	assert.Equal(t, "", Coerce("  "))
}

func TestNumber(t *testing.T) {
	n, ok := Number("75")
	require.True(t, ok)
	assert.Equal(t, 75.0, n)

	n, ok = Number(70)
	require.True(t, ok)
	assert.Equal(t, 70.0, n)

	_, ok = Number("warm")
	assert.False(t, ok)

	_, ok = Number(true)
	assert.False(t, ok)
}

func TestNormalizeAction(t *testing.T) {
	assert.Equal(t, SetTemperature, NormalizeAction("set temperature"))
	assert.Equal(t, TurnOn, NormalizeAction(" turn-on "))
	assert.Equal(t, Lock, NormalizeAction("lock"))
}

func TestEqual(t *testing.T) {
	a := []Command{
		{Summary: "Turn on the light", Action: "TURN_ON", Parameters: map[string]any{"device": "living_room_light", "level": 1.0}},
		{Summary: "Lock the door", Action: "LOCK", Parameters: map[string]any{"device": "front_door"}},
	}
	// Same actions, different summaries, reversed list and parameter order.
	b := []Command{
		{Summary: "lock it", Action: "lock", Parameters: map[string]any{"device": "front_door"}},
		{Summary: "light on", Action: "TURN_ON", Parameters: map[string]any{"level": 1.0, "device": "living_room_light"}},
	}
	c := []Command{
		{Action: "TURN_OFF", Parameters: map[string]any{"device": "living_room_light"}},
	}

	t.Run("reflexive", func(t *testing.T) {
		assert.True(t, Equal(a, a))
		assert.True(t, Equal(c, c))
		assert.True(t, Equal(nil, nil))
	})

	t.Run("symmetric", func(t *testing.T) {
		assert.True(t, Equal(a, b))
		assert.True(t, Equal(b, a))
		assert.False(t, Equal(a, c))
		assert.False(t, Equal(c, a))
	})

	t.Run("parameter values matter", func(t *testing.T) {
		x := []Command{{Action: SetTemperature, Parameters: map[string]any{"temperature": 70.0}}}
		y := []Command{{Action: SetTemperature, Parameters: map[string]any{"temperature": 72.0}}}
		assert.False(t, Equal(x, y))
	})

	t.Run("separators inside values", func(t *testing.T) {
		x := []Command{{Action: "TURN_ON", Parameters: map[string]any{"a": "x|b=y"}}}
		y := []Command{{Action: "TURN_ON", Parameters: map[string]any{"a": "x", "b": "y"}}}
		assert.NotEqual(t, Key(x[0]), Key(y[0]))
		assert.False(t, Equal(x, y))
	})
}

func TestCloneDoesNotShareParameters(t *testing.T) {
	orig := Command{Action: TurnOn, Parameters: map[string]any{"device": "lamp"}}
	cp := orig.Clone()
	cp.Parameters["device"] = "door"

	assert.Equal(t, "lamp", orig.Text("device"))
	assert.Nil(t, CloneAll(nil))
}
