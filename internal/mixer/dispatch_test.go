package mixer

import (
	"context"
	"testing"
	"time"

	"github.com/PixPMusic/padmixer/internal/config"
	"github.com/PixPMusic/padmixer/internal/pulse"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stalledSurface holds every SetMute until release is closed
type stalledSurface struct {
	fakeSurface
	started chan struct{}
	release chan struct{}
}

func (s *stalledSurface) SetMute(ctx context.Context, t pulse.Target, muted bool) error {
	select {
	case s.started <- struct{}{}:
	default:
	}
	<-s.release
	return s.fakeSurface.SetMute(ctx, t, muted)
}

func TestStalledTargetAppliesNewestMute(t *testing.T) {
	surface := &stalledSurface{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	log, _ := test.NewNullLogger()
	table := NewTable(surface, nil, &countingFirer{}, time.Second, log)

	pad := Pad{
		Index:    3,
		Behavior: LevelFollowing,
		Target:   pulse.Target{Kind: pulse.Sink, Name: "speakers"},
		OnMeans:  config.OnUnmuted,
	}

	table.Dispatch(pad, PadEdge{Pad: 3, State: On})
	select {
	case <-surface.started:
	case <-time.After(time.Second):
		require.FailNow(t, "first mute never reached the surface")
	}

	// far more toggles than the lane could hold, ending on Off
	state := On
	for i := 0; i < 3*laneDepth; i++ {
		state = !state
		table.Dispatch(pad, PadEdge{Pad: 3, State: state})
	}
	require.Equal(t, Off, state)

	close(surface.release)
	table.Close()

	calls := surface.muteCalls()
	require.NotEmpty(t, calls)
	assert.Len(t, calls, 2, "queued toggles collapse into one apply")
	assert.Equal(t, muteCall{"sink:speakers", true}, calls[len(calls)-1])
}

func TestEdgeActionsAreNotCoalesced(t *testing.T) {
	log, _ := test.NewNullLogger()
	firer := &countingFirer{}
	table := NewTable(&fakeSurface{}, nil, firer, time.Second, log)

	pad := Pad{Index: 8, Behavior: EdgeTriggered, Action: "debug-dump"}
	for i := 0; i < 5; i++ {
		table.Dispatch(pad, PadEdge{Pad: 8, State: On})
		table.Dispatch(pad, PadEdge{Pad: 8, State: Off})
	}
	table.Close()

	assert.Equal(t, 5, firer.count("debug-dump"))
}
