package mixer

import (
	"context"
	"sync"
	"time"

	"github.com/PixPMusic/padmixer/internal/pulse"
	"github.com/sirupsen/logrus"
)

// laneDepth bounds the backlog of one pad
const laneDepth = 16

// lane runs one pad's work in order. A level pad keeps at most one mute job
// queued; later edges overwrite want so the job applies the newest state.
type lane struct {
	jobs   chan func()
	want   bool
	queued bool
}

// Resolver expands routed target names such as "$ASTRO_TARGET"
type Resolver interface {
	Resolve(name string) (string, error)
}

// ActionFirer starts a named action without waiting for it
type ActionFirer interface {
	Fire(name string)
}

// Table dispatches accepted pad edges. Each pad has its own serial lane so
// a slow target never holds up another pad.
type Table struct {
	surface pulse.Surface
	routes  Resolver
	actions ActionFirer
	timeout time.Duration
	log     logrus.FieldLogger

	mu     sync.Mutex
	lanes  map[int]*lane
	wg     sync.WaitGroup
	closed bool
}

// NewTable creates a dispatch table. routes may be nil when no target
// names are routed.
func NewTable(surface pulse.Surface, routes Resolver, actions ActionFirer, timeout time.Duration, log logrus.FieldLogger) *Table {
	return &Table{
		surface: surface,
		routes:  routes,
		actions: actions,
		timeout: timeout,
		log:     log,
		lanes:   make(map[int]*lane),
	}
}

// Dispatch queues the work for an accepted edge and returns immediately
func (t *Table) Dispatch(p Pad, edge PadEdge) {
	log := t.log.WithFields(logrus.Fields{"pad": p.Index, "state": edge.State})

	switch p.Behavior {
	case LevelFollowing:
		t.mirror(p, p.Muted(edge.State), log)
	case EdgeTriggered:
		if edge.State != On {
			return
		}
		t.submit(p.Index, log, func() {
			log.WithField("action", p.Action).Info("Pad action")
			t.actions.Fire(p.Action)
		})
	}
}

func (t *Table) setMute(p Pad, muted bool, log logrus.FieldLogger) {
	target := p.Target
	if t.routes != nil {
		name, err := t.routes.Resolve(target.Name)
		if err != nil {
			log.WithError(err).Warn("Pad target not routed, skipped")
			return
		}
		target = target.WithName(name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	log = log.WithField("target", target.String())
	if err := t.surface.SetMute(ctx, target, muted); err != nil {
		log.WithError(err).Warn("Set mute failed")
		return
	}
	log.WithField("muted", muted).Info("Pad mute")
}

// mirror records the mute a level pad wants and queues an apply unless one
// is already waiting.
func (t *Table) mirror(p Pad, muted bool, log logrus.FieldLogger) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	l := t.laneFor(p.Index)
	l.want = muted
	if l.queued {
		log.Debug("Pad mute coalesced")
		return
	}
	if t.enqueue(l, log, func() {
		t.mu.Lock()
		want := l.want
		l.queued = false
		t.mu.Unlock()
		t.setMute(p, want, t.log.WithField("pad", p.Index))
	}) {
		l.queued = true
	}
}

func (t *Table) submit(idx int, log logrus.FieldLogger, job func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.enqueue(t.laneFor(idx), log, job)
}

// laneFor returns the lane for idx, starting its worker on first use. t.mu
// must be held.
func (t *Table) laneFor(idx int) *lane {
	l, ok := t.lanes[idx]
	if ok {
		return l
	}
	l = &lane{jobs: make(chan func(), laneDepth)}
	t.lanes[idx] = l
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for job := range l.jobs {
			job()
		}
	}()
	return l
}

func (t *Table) enqueue(l *lane, log logrus.FieldLogger, job func()) bool {
	select {
	case l.jobs <- job:
		return true
	default:
		log.Warn("Pad lane full, edge dropped")
		return false
	}
}

// Close stops accepting work and waits for queued work to finish
func (t *Table) Close() {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		for _, l := range t.lanes {
			close(l.jobs)
		}
	}
	t.mu.Unlock()
	t.wg.Wait()
}
