package mixer

import "time"

// Verdict is the outcome of offering a pad edge to the gate
type Verdict uint8

const (
	Accepted  Verdict = iota
	Guarded           // inside the reconnect guard window
	Debounced         // too soon after the previous accepted edge
)

func (v Verdict) String() string {
	switch v {
	case Guarded:
		return "guarded"
	case Debounced:
		return "debounced"
	default:
		return "accepted"
	}
}

// Gate filters pad edges. The debounce interval is global across pads
// because the controller delivers everything on one stream.
type Gate struct {
	guard    time.Duration
	debounce time.Duration
	last     time.Time
}

func NewGate(guard, debounce time.Duration) *Gate {
	return &Gate{guard: guard, debounce: debounce}
}

// Admit decides whether an edge at now passes. Only accepted edges restart
// the debounce interval.
func (g *Gate) Admit(epoch Epoch, now time.Time) Verdict {
	if epoch.Guarding(now, g.guard) {
		return Guarded
	}
	if !g.last.IsZero() && now.Sub(g.last) < g.debounce {
		return Debounced
	}
	g.last = now
	return Accepted
}
