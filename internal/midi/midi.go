package midi

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register rtmidi driver
)

// Manager handles MIDI port discovery and listening through the rtmidi driver
type Manager struct {
	mu sync.RWMutex

	// Rescan is how often an open stream checks that its port still exists
	Rescan time.Duration
}

// NewManager creates a new MIDI manager
func NewManager() *Manager {
	return &Manager{Rescan: time.Second}
}

// Close cleans up the MIDI driver
func (m *Manager) Close() {
	midi.CloseDriver()
}

func (m *Manager) Name() string {
	return "rtmidi"
}

// Ports returns the available input ports
func (m *Manager) Ports(ctx context.Context) ([]Port, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ins := midi.GetInPorts()
	ports := make([]Port, 0, len(ins))
	for _, in := range ins {
		ports = append(ports, Port{ID: strconv.Itoa(in.Number()), Name: in.String()})
	}
	return ports, nil
}

// GetInPort returns an input port by name
func (m *Manager) GetInPort(name string) (drivers.In, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, in := range midi.GetInPorts() {
		if in.String() == name {
			return in, nil
		}
	}
	return nil, errors.Errorf("input port not found: %s", name)
}

// GetOutPort returns an output port by name
func (m *Manager) GetOutPort(name string) (drivers.Out, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, out := range midi.GetOutPorts() {
		if out.String() == name {
			return out, nil
		}
	}
	return nil, errors.Errorf("output port not found: %s", name)
}

// Open begins listening on the port. The stream ends when the listener
// reports an error or the port disappears from the driver's port list.
func (m *Manager) Open(ctx context.Context, port Port) (Stream, error) {
	in, err := m.GetInPort(port.Name)
	if err != nil {
		return nil, err
	}

	s := &driverStream{
		lines: make(chan Line, 64),
		done:  make(chan struct{}),
		quit:  make(chan struct{}),
	}

	stop, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
		line := Line{Text: msg.String(), Msg: msg, At: time.Now()}
		select {
		case s.lines <- line:
		case <-s.quit:
		}
	}, midi.HandleError(func(error) {
		// Stopping the listener from its own goroutine would deadlock
		go s.end()
	}))
	if err != nil {
		return nil, errors.Wrapf(err, "listen %q", port.Name)
	}
	s.setStop(stop)

	go m.watchPort(ctx, port.Name, s)
	return s, nil
}

// watchPort ends the stream once the port is no longer listed
func (m *Manager) watchPort(ctx context.Context, name string, s *driverStream) {
	ticker := time.NewTicker(m.Rescan)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.end()
			return
		case <-s.quit:
			return
		case <-ticker.C:
			if _, err := m.GetInPort(name); err != nil {
				s.end()
				return
			}
		}
	}
}

type driverStream struct {
	lines chan Line
	done  chan struct{}
	quit  chan struct{}
	once  sync.Once

	mu   sync.Mutex
	stop func()
}

func (s *driverStream) Lines() <-chan Line    { return s.lines }
func (s *driverStream) Done() <-chan struct{} { return s.done }

func (s *driverStream) setStop(stop func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		stop()
	default:
		s.stop = stop
	}
}

func (s *driverStream) end() {
	s.once.Do(func() {
		close(s.quit)
		s.mu.Lock()
		stop := s.stop
		close(s.done)
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
	})
}

func (s *driverStream) Close() error {
	s.end()
	return nil
}
