package midi

import (
	"context"
	"strings"
	"time"

	"gitlab.com/gomidi/midi/v2"
)

// Port identifies a MIDI input port as advertised by a backend
type Port struct {
	ID   string // Backend address, e.g. "20:0" for aseqdump
	Name string // Human-readable name
}

// Line is one raw event read from a port
type Line struct {
	Text string
	Msg  midi.Message // nil when Text is not a recognizable channel message
	At   time.Time
}

// InputKind tells apart event lines from connection changes
type InputKind int

const (
	InputLine InputKind = iota
	InputConnected
	InputDisconnected
)

func (k InputKind) String() string {
	switch k {
	case InputLine:
		return "line"
	case InputConnected:
		return "connected"
	case InputDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Input is one item of the watcher's output sequence
type Input struct {
	Kind InputKind
	Line Line // Set for InputLine
	Port Port // Port the input relates to
	At   time.Time
}

// Stream is an open port producing lines until the device goes away
type Stream interface {
	// Lines delivers raw events in arrival order
	Lines() <-chan Line

	// Done is closed once the underlying stream has ended
	Done() <-chan struct{}

	// Close stops reading and releases the port
	Close() error
}

// Backend discovers and opens MIDI input ports
type Backend interface {
	Name() string
	Ports(ctx context.Context) ([]Port, error)
	Open(ctx context.Context, port Port) (Stream, error)
}

// MatchPort returns the first port whose name contains identity, ignoring case
func MatchPort(ports []Port, identity string) (Port, bool) {
	for _, p := range ports {
		if containsCI(p.Name, identity) {
			return p, true
		}
	}
	return Port{}, false
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
