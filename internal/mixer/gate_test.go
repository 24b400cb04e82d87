package mixer

import (
	"testing"
	"time"

	"github.com/PixPMusic/padmixer/internal/midi"
	"github.com/stretchr/testify/assert"
)

func TestGateGuardWindow(t *testing.T) {
	g := NewGate(900*time.Millisecond, 120*time.Millisecond)
	epoch := NewEpoch(midi.Port{ID: "20:0"}, true, at(0))

	assert.Equal(t, Guarded, g.Admit(epoch, at(0)))
	assert.Equal(t, Guarded, g.Admit(epoch, at(899)))
	assert.Equal(t, Accepted, g.Admit(epoch, at(900)))
}

func TestGateDebounceIsGlobal(t *testing.T) {
	g := NewGate(900*time.Millisecond, 120*time.Millisecond)
	var epoch Epoch

	assert.Equal(t, Accepted, g.Admit(epoch, at(1000)))
	assert.Equal(t, Debounced, g.Admit(epoch, at(1119)))
	// rejected edges do not extend the interval
	assert.Equal(t, Accepted, g.Admit(epoch, at(1120)))
}

func TestGateGuardedEdgesDoNotStartDebounce(t *testing.T) {
	g := NewGate(900*time.Millisecond, 120*time.Millisecond)
	epoch := NewEpoch(midi.Port{}, false, at(0))

	assert.Equal(t, Guarded, g.Admit(epoch, at(850)))
	assert.Equal(t, Accepted, g.Admit(epoch, at(901)))
}

func TestThrottleLedger(t *testing.T) {
	l := NewThrottleLedger(80 * time.Millisecond)
	assert.True(t, l.Allow("sink:VM-GAME", at(0)))
	l.Stamp("sink:VM-GAME", at(0))
	assert.False(t, l.Allow("sink:VM-GAME", at(79)))
	assert.True(t, l.Allow("sink:VM-CHAT", at(79)))
	assert.True(t, l.Allow("sink:VM-GAME", at(80)))
}
