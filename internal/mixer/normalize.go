package mixer

import (
	"math"
	"time"

	"github.com/PixPMusic/padmixer/internal/config"
	"github.com/PixPMusic/padmixer/internal/midi"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/constraints"
)

// ToPct scales a 7-bit controller value to percent. The extremes saturate
// so that a jittery knob can still reach 0 and 100.
func ToPct(v uint8) int {
	switch {
	case v >= 124:
		return 100
	case v <= 3:
		return 0
	}
	return clamp(int(math.Round(float64(v)*100/127)), 0, 100)
}

func clamp[T constraints.Integer](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Normalizer turns raw MIDI inputs into events. It remembers the note-on
// time and the last controller level of each pad.
type Normalizer struct {
	notes     map[uint8]int
	programs  map[uint8]int
	padCCs    map[uint8]int
	momentary time.Duration
	diag      bool
	log       logrus.FieldLogger

	noteOnAt map[int]time.Time
	ccLevel  map[int]PadState
}

// NewNormalizer builds the number tables for the pads in cfg. In diagnostic
// mode every raw line and every unmapped number is logged.
func NewNormalizer(cfg *config.Config, diag bool, log logrus.FieldLogger) *Normalizer {
	n := &Normalizer{
		notes:     map[uint8]int{},
		programs:  map[uint8]int{},
		padCCs:    map[uint8]int{},
		momentary: cfg.Timing.MomentaryFilter,
		diag:      diag,
		log:       log,
		noteOnAt:  map[int]time.Time{},
		ccLevel:   map[int]PadState{},
	}
	for _, p := range cfg.Pads {
		if p.Note != nil {
			n.notes[*p.Note] = p.Index
		}
		if p.Program != nil {
			n.programs[*p.Program] = p.Index
		}
		if p.Controller != nil {
			n.padCCs[*p.Controller] = p.Index
		}
	}
	return n
}

// Normalize maps one input onto at most one event. It returns nil for
// anything that is not a mapped control.
func (n *Normalizer) Normalize(st *State, in midi.Input) Event {
	at := in.At
	if at.IsZero() {
		at = time.Now()
	}

	switch in.Kind {
	case midi.InputConnected:
		return Reconnect{Connected: true, Port: in.Port, At: at}
	case midi.InputDisconnected:
		return Reconnect{Connected: false, Port: in.Port, At: at}
	}

	if n.diag {
		n.log.WithField("line", in.Line.Text).Debug("MIDI in")
	}
	msg := in.Line.Msg
	if len(msg) == 0 {
		return nil
	}

	var ch, num, val uint8
	switch {
	case msg.GetControlChange(&ch, &num, &val):
		if idx, ok := n.padCCs[num]; ok {
			return n.controllerEdge(idx, val, at)
		}
		if _, ok := st.Knobs[num]; ok {
			return KnobChange{Knob: num, Value: ToPct(val), At: at}
		}
		n.unmapped("controller", num)

	case msg.GetNoteStart(&ch, &num, &val):
		if idx, ok := n.notes[num]; ok {
			n.noteOnAt[idx] = at
			return PadEdge{Pad: idx, State: On, Encoding: Latched, At: at}
		}
		n.unmapped("note", num)

	case msg.GetNoteEnd(&ch, &num):
		if idx, ok := n.notes[num]; ok {
			return n.noteOff(idx, at)
		}
		n.unmapped("note", num)

	case msg.GetProgramChange(&ch, &num):
		if idx, ok := n.programs[num]; ok {
			return n.press(st, idx, at)
		}
		n.unmapped("program", num)
	}
	return nil
}

func (n *Normalizer) controllerEdge(idx int, val uint8, at time.Time) Event {
	level := PadState(val > 0)
	if n.ccLevel[idx] == level {
		return nil
	}
	n.ccLevel[idx] = level
	return PadEdge{Pad: idx, State: level, Encoding: ContinuousEdge, At: at}
}

// noteOff drops releases that follow their note-on too closely; those come
// from a pad in momentary mode rather than a real release
func (n *Normalizer) noteOff(idx int, at time.Time) Event {
	onAt, ok := n.noteOnAt[idx]
	delete(n.noteOnAt, idx)
	if ok && at.Sub(onAt) < n.momentary {
		if n.diag {
			n.log.WithFields(logrus.Fields{"pad": idx, "held": at.Sub(onAt)}).Debug("Momentary release dropped")
		}
		return nil
	}
	return PadEdge{Pad: idx, State: Off, Encoding: Latched, At: at}
}

func (n *Normalizer) press(st *State, idx int, at time.Time) Event {
	pad, ok := st.Pads[idx]
	if !ok {
		return nil
	}
	state := !pad.State
	if pad.Behavior == EdgeTriggered {
		state = On
	}
	return PadEdge{Pad: idx, State: state, Encoding: PressOnly, At: at}
}

func (n *Normalizer) unmapped(kind string, num uint8) {
	if n.diag {
		n.log.WithField(kind, num).Debug("Unmapped MIDI number")
	}
}
