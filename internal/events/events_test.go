package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	assert.False(t, b.HasHandlers(Listening))

	var got []bool
	handler := func(on bool) { got = append(got, on) }
	require.NoError(t, b.Subscribe(Listening, handler))
	assert.True(t, b.HasHandlers(Listening))

	b.Publish(Listening, true)
	b.Publish(Listening, false)
	assert.Equal(t, []bool{true, false}, got)

	require.NoError(t, b.Unsubscribe(Listening, handler))
	b.Publish(Listening, true)
	assert.Len(t, got, 2)
}

func TestBusesAreIndependent(t *testing.T) {
	a, b := New(), New()

	var calls int
	require.NoError(t, a.Subscribe(Reset, func() { calls++ }))

	b.Publish(Reset)
	assert.Zero(t, calls)

	a.Publish(Reset)
	assert.Equal(t, 1, calls)
}
