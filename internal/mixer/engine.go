package mixer

import (
	"context"
	"time"

	"github.com/PixPMusic/padmixer/internal/config"
	"github.com/PixPMusic/padmixer/internal/midi"
	"github.com/PixPMusic/padmixer/internal/pulse"
	"github.com/sirupsen/logrus"
)

// Engine owns the mixer state. All mutation happens on the goroutine that
// calls Run (or Handle and Tick directly).
type Engine struct {
	state   *State
	norm    *Normalizer
	gate    *Gate
	table   *Table
	sched   *Scheduler
	surface pulse.Surface
	timing  config.Timing
	log     logrus.FieldLogger

	observer func(Snapshot)
	dirty    bool
	guarding bool
	now      time.Time
	lastLine string
}

// Options are the collaborators of an engine
type Options struct {
	Surface    pulse.Surface
	Routes     Resolver    // optional
	Actions    ActionFirer // optional; edge pads do nothing without it
	Diagnostic bool
}

type nopFirer struct{}

func (nopFirer) Fire(string) {}

// New creates an engine for cfg
func New(cfg *config.Config, opts Options, log logrus.FieldLogger) *Engine {
	if opts.Surface == nil {
		opts.Surface = pulse.Nop{}
	}
	if opts.Actions == nil {
		opts.Actions = nopFirer{}
	}
	t := cfg.Timing
	return &Engine{
		state:   NewState(cfg),
		norm:    NewNormalizer(cfg, opts.Diagnostic, log),
		gate:    NewGate(t.GuardWindow, t.Debounce),
		table:   NewTable(opts.Surface, opts.Routes, opts.Actions, t.CallTimeout, log),
		sched:   NewScheduler(opts.Surface, t.CallTimeout, log),
		surface: opts.Surface,
		timing:  t,
		log:     log,
		dirty:   true,
	}
}

// SetObserver registers fn to receive a snapshot whenever state changes.
// fn runs on the engine goroutine and must not block.
func (e *Engine) SetObserver(fn func(Snapshot)) {
	e.observer = fn
}

// Seed reads the current volume of every knob target so that a knob is only
// written once it moves. It returns the targets that do not exist.
func (e *Engine) Seed(ctx context.Context) []pulse.Target {
	var missing []pulse.Target
	for _, k := range e.state.sortedKnobs() {
		log := e.log.WithFields(logrus.Fields{"knob": k.Controller, "target": k.Target.String()})
		cctx, cancel := context.WithTimeout(ctx, e.timing.CallTimeout)
		ok, err := e.surface.Exists(cctx, k.Target)
		if err == nil && !ok {
			cancel()
			missing = append(missing, k.Target)
			continue
		}
		v, err := e.surface.Volume(cctx, k.Target)
		cancel()
		if err != nil {
			log.WithError(err).Debug("Initial volume unknown")
			continue
		}
		k.Applied = v
	}
	e.dirty = true
	return missing
}

// Run drives the engine until ctx is done. Inputs are handled as they
// arrive; pending knob values are flushed on every tick.
func (e *Engine) Run(ctx context.Context, inputs <-chan midi.Input) error {
	ticker := time.NewTicker(e.timing.Tick)
	defer ticker.Stop()

	e.notify()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in, ok := <-inputs:
			if !ok {
				inputs = nil
				continue
			}
			e.Handle(in)
		case now := <-ticker.C:
			e.Tick(ctx, now)
		}
	}
}

// Handle normalizes one input and applies the resulting event
func (e *Engine) Handle(in midi.Input) {
	if in.Kind == midi.InputLine {
		e.lastLine = in.Line.Text
		e.dirty = true
	}
	if ev := e.norm.Normalize(e.state, in); ev != nil {
		e.Apply(ev)
	}
	e.notify()
}

// Apply feeds one event into the state machine
func (e *Engine) Apply(ev Event) {
	switch ev := ev.(type) {
	case KnobChange:
		e.now = ev.At
		if k, ok := e.state.Knobs[ev.Knob]; ok {
			k.Pending = ev.Value
			e.dirty = true
		}

	case PadEdge:
		e.now = ev.At
		pad, ok := e.state.Pads[ev.Pad]
		if !ok {
			return
		}
		log := e.log.WithFields(logrus.Fields{"pad": ev.Pad, "state": ev.State, "encoding": ev.Encoding})
		if pad.Encoding != ev.Encoding {
			if pad.Encoding != NoEncoding {
				log.WithField("previous", pad.Encoding).Debug("Pad encoding switched")
			}
			pad.Encoding = ev.Encoding
			e.dirty = true
		}

		if v := e.gate.Admit(e.state.Epoch, ev.At); v != Accepted {
			log.WithField("verdict", v).Debug("Pad edge filtered")
			return
		}
		pad.State = ev.State
		pad.LastTransition = ev.At
		e.dirty = true
		e.table.Dispatch(*pad, ev)

	case Reconnect:
		e.now = ev.At
		e.state.Epoch = NewEpoch(ev.Port, ev.Connected, ev.At)
		e.dirty = true
		e.log.WithFields(logrus.Fields{
			"epoch":     e.state.Epoch.ID,
			"port":      ev.Port.Name,
			"connected": ev.Connected,
		}).Info("Connection epoch started")
	}
}

// Tick flushes pending knob values
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	e.now = now
	if e.sched.Flush(ctx, e.state, now) > 0 {
		e.dirty = true
	}
	if g := e.state.Epoch.Guarding(now, e.timing.GuardWindow); g != e.guarding {
		e.guarding = g
		e.dirty = true
	}
	e.notify()
}

// Close waits for dispatched pad work to finish
func (e *Engine) Close() {
	e.table.Close()
}

func (e *Engine) notify() {
	if e.observer == nil || !e.dirty {
		return
	}
	e.dirty = false
	e.observer(e.Snapshot())
}

// PadView is a read-only copy of a pad
type PadView struct {
	Index    int
	Behavior Behavior
	State    PadState
	Encoding Encoding
	Target   string
	Action   string
}

// KnobView is a read-only copy of a knob
type KnobView struct {
	Controller uint8
	Target     string
	Pending    int
	Applied    int
}

// Snapshot is an immutable view of the engine state
type Snapshot struct {
	Pads     []PadView
	Knobs    []KnobView
	Epoch    Epoch
	Guarding bool
	LastLine string
}

// Snapshot copies the current state
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Epoch:    e.state.Epoch,
		Guarding: e.state.Epoch.Guarding(e.now, e.timing.GuardWindow),
		LastLine: e.lastLine,
	}
	for _, p := range e.state.sortedPads() {
		v := PadView{Index: p.Index, Behavior: p.Behavior, State: p.State, Encoding: p.Encoding, Action: p.Action}
		if p.Behavior == LevelFollowing {
			v.Target = p.Target.String()
		}
		s.Pads = append(s.Pads, v)
	}
	for _, k := range e.state.sortedKnobs() {
		s.Knobs = append(s.Knobs, KnobView{
			Controller: k.Controller,
			Target:     k.Target.String(),
			Pending:    k.Pending,
			Applied:    k.Applied,
		})
	}
	return s
}
