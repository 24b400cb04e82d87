package mixer

import (
	"time"

	"github.com/PixPMusic/padmixer/internal/midi"
)

// Event is a normalized controller event. The set of variants is closed:
// KnobChange, PadEdge and Reconnect.
type Event interface {
	isEvent()
}

// PadState is the abstract state of a pad
type PadState bool

const (
	Off PadState = false
	On  PadState = true
)

func (s PadState) String() string {
	if s {
		return "on"
	}
	return "off"
}

// Encoding is the hardware encoding that produced a pad event
type Encoding uint8

const (
	NoEncoding     Encoding = iota
	Latched                 // note on / note off
	PressOnly               // program change, state from an internal toggle
	ContinuousEdge          // controller value, >0 is On
)

func (e Encoding) String() string {
	switch e {
	case Latched:
		return "latched"
	case PressOnly:
		return "press-only"
	case ContinuousEdge:
		return "continuous-edge"
	default:
		return "none"
	}
}

// Behavior is what a pad does with its state
type Behavior uint8

const (
	LevelFollowing Behavior = iota // target mute mirrors the pad
	EdgeTriggered                  // action fires on every On edge
)

func (b Behavior) String() string {
	if b == EdgeTriggered {
		return "edge"
	}
	return "level"
}

// KnobChange carries a knob position scaled to 0-100
type KnobChange struct {
	Knob  uint8
	Value int
	At    time.Time
}

// PadEdge is a candidate pad transition, not yet debounced
type PadEdge struct {
	Pad      int
	State    PadState
	Encoding Encoding
	At       time.Time
}

// Reconnect reports that the MIDI port was attached or lost. Either way a
// new connection epoch begins.
type Reconnect struct {
	Connected bool
	Port      midi.Port
	At        time.Time
}

func (KnobChange) isEvent() {}
func (PadEdge) isEvent()    {}
func (Reconnect) isEvent()  {}
