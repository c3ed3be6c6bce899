package uvcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdle_OncePerIteration(t *testing.T) {
	l := newTestLoop(t)
	var idle Idle
	idle.Init(l)
	var seen []uint64
	require.Equal(t, OK, idle.Start(func(h *Idle) {
		seen = append(seen, l.Iterations())
		if len(seen) == 10 {
			h.Stop()
		}
	}))
	runFor(t, l, 5*time.Second)
	require.Len(t, seen, 10)
	for i := 1; i < len(seen); i++ {
		assert.Equal(t, seen[i-1]+1, seen[i])
	}
	closeAll(l, &idle.Handle)
}

func TestIdle_StartTwiceReplacesCallback(t *testing.T) {
	l := newTestLoop(t)
	var idle Idle
	idle.Init(l)
	var got string
	idle.Start(func(h *Idle) { got = "first"; h.Stop() })
	idle.Start(func(h *Idle) { got = "second"; h.Stop() })
	runFor(t, l, 5*time.Second)
	assert.Equal(t, "second", got)
	closeAll(l, &idle.Handle)
}
