package mixer

import (
	"sort"
	"time"

	"github.com/PixPMusic/padmixer/internal/config"
	"github.com/PixPMusic/padmixer/internal/midi"
	"github.com/PixPMusic/padmixer/internal/pulse"
	"github.com/google/uuid"
)

// Unset marks a knob value that is not known or not pending
const Unset = -1

// Pad is one hardware pad. Its behavior is fixed by configuration; its
// state is only changed by accepted edges.
type Pad struct {
	Index          int
	Behavior       Behavior
	Target         pulse.Target
	OnMeans        config.OnMeans
	Action         string
	State          PadState
	LastTransition time.Time
	Encoding       Encoding // encoding that last drove the pad
}

// Muted returns the mute state a level-following pad asks for
func (p Pad) Muted(s PadState) bool {
	if p.OnMeans == config.OnMuted {
		return s == On
	}
	return s == Off
}

// Knob is a continuous control bound to a volume target
type Knob struct {
	Controller uint8
	Target     pulse.Target
	Pending    int // most recent value since the last apply, or Unset
	Applied    int // last value sent, or Unset
}

// Epoch is one attachment lifetime of the MIDI port
type Epoch struct {
	ID        uuid.UUID
	StartedAt time.Time
	Port      midi.Port
	Connected bool
}

// NewEpoch starts an epoch at the given time
func NewEpoch(port midi.Port, connected bool, at time.Time) Epoch {
	return Epoch{ID: uuid.New(), StartedAt: at, Port: port, Connected: connected}
}

// Guarding reports whether now falls inside the guard window of the epoch
func (e Epoch) Guarding(now time.Time, window time.Duration) bool {
	if e.StartedAt.IsZero() {
		return false
	}
	return now.Sub(e.StartedAt) < window
}

// ThrottleLedger records when each target was last written
type ThrottleLedger struct {
	min  time.Duration
	last map[string]time.Time
}

func NewThrottleLedger(min time.Duration) *ThrottleLedger {
	return &ThrottleLedger{min: min, last: make(map[string]time.Time)}
}

// Allow reports whether target may be written at now
func (l *ThrottleLedger) Allow(target string, now time.Time) bool {
	last, ok := l.last[target]
	return !ok || now.Sub(last) >= l.min
}

// Stamp records a write to target at now
func (l *ThrottleLedger) Stamp(target string, now time.Time) {
	l.last[target] = now
}

// State is everything the engine owns. It is not safe for concurrent use.
type State struct {
	Pads   map[int]*Pad
	Knobs  map[uint8]*Knob
	Epoch  Epoch
	Ledger *ThrottleLedger
}

// NewState builds the pad and knob tables from cfg. Pads start Off and
// knobs with nothing pending.
func NewState(cfg *config.Config) *State {
	st := &State{
		Pads:   make(map[int]*Pad, len(cfg.Pads)),
		Knobs:  make(map[uint8]*Knob, len(cfg.Knobs)),
		Ledger: NewThrottleLedger(cfg.Timing.MinApplyInterval),
	}
	for _, pc := range cfg.Pads {
		p := &Pad{
			Index:   pc.Index,
			Target:  pc.Target,
			OnMeans: pc.OnMeans,
			Action:  pc.Action,
			State:   Off,
		}
		if pc.Behavior == config.BehaviorEdge {
			p.Behavior = EdgeTriggered
		}
		st.Pads[pc.Index] = p
	}
	for _, kc := range cfg.Knobs {
		st.Knobs[kc.Controller] = &Knob{
			Controller: kc.Controller,
			Target:     kc.Target,
			Pending:    Unset,
			Applied:    Unset,
		}
	}
	return st
}

func (st *State) sortedKnobs() []*Knob {
	knobs := make([]*Knob, 0, len(st.Knobs))
	for _, k := range st.Knobs {
		knobs = append(knobs, k)
	}
	sort.Slice(knobs, func(i, j int) bool { return knobs[i].Controller < knobs[j].Controller })
	return knobs
}

func (st *State) sortedPads() []*Pad {
	pads := make([]*Pad, 0, len(st.Pads))
	for _, p := range st.Pads {
		pads = append(pads, p)
	}
	sort.Slice(pads, func(i, j int) bool { return pads[i].Index < pads[j].Index })
	return pads
}
