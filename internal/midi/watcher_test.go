package midi

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	lines chan Line
	done  chan struct{}
	once  sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{lines: make(chan Line), done: make(chan struct{})}
}

func (s *fakeStream) Lines() <-chan Line    { return s.lines }
func (s *fakeStream) Done() <-chan struct{} { return s.done }
func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// fakeBackend hides the port for the first `hidden` polls and hands out
// the queued streams in order
type fakeBackend struct {
	mu      sync.Mutex
	hidden  int
	polls   int
	streams []*fakeStream
	openErr error
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Ports(context.Context) ([]Port, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.polls++
	if b.polls <= b.hidden {
		return []Port{{ID: "14:0", Name: "Midi Through"}}, nil
	}
	return []Port{{ID: "14:0", Name: "Midi Through"}, {ID: "20:0", Name: "LPD8:LPD8 MIDI 1"}}, nil
}

func (b *fakeBackend) Open(context.Context, Port) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		err := b.openErr
		b.openErr = nil
		return nil, err
	}
	if len(b.streams) == 0 {
		return newFakeStream(), nil
	}
	s := b.streams[0]
	b.streams = b.streams[1:]
	return s, nil
}

func next(t *testing.T, out <-chan Input) Input {
	t.Helper()
	select {
	case in := <-out:
		return in
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for input")
		return Input{}
	}
}

func startWatcher(t *testing.T, b Backend) (chan Input, context.CancelFunc, chan error) {
	return startWatcherWith(t, b, WatcherConfig{
		Identity:       "lpd8",
		PollInterval:   5 * time.Millisecond,
		ReconnectDelay: 5 * time.Millisecond,
	})
}

func startWatcherWith(t *testing.T, b Backend, cfg WatcherConfig) (chan Input, context.CancelFunc, chan error) {
	t.Helper()
	log, _ := test.NewNullLogger()
	w := NewWatcher(b, cfg, log)

	out := make(chan Input)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx, out) }()
	return out, cancel, errc
}

func TestWatcherWaitsForPortThenStreams(t *testing.T) {
	first := newFakeStream()
	b := &fakeBackend{hidden: 3, streams: []*fakeStream{first}}
	out, cancel, errc := startWatcher(t, b)
	defer cancel()

	in := next(t, out)
	assert.Equal(t, InputConnected, in.Kind)
	assert.Equal(t, "20:0", in.Port.ID)

	first.lines <- Line{Text: "hello", At: time.Unix(10, 0)}
	in = next(t, out)
	assert.Equal(t, InputLine, in.Kind)
	assert.Equal(t, "hello", in.Line.Text)
	assert.Equal(t, time.Unix(10, 0), in.At)

	b.mu.Lock()
	assert.GreaterOrEqual(t, b.polls, 4)
	b.mu.Unlock()

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestWatcherReconnectsAfterStreamEnds(t *testing.T) {
	first, second := newFakeStream(), newFakeStream()
	b := &fakeBackend{streams: []*fakeStream{first, second}}
	out, cancel, errc := startWatcher(t, b)
	defer cancel()

	assert.Equal(t, InputConnected, next(t, out).Kind)
	first.Close()
	assert.Equal(t, InputDisconnected, next(t, out).Kind)
	assert.Equal(t, InputConnected, next(t, out).Kind)

	second.lines <- Line{Text: "after reconnect"}
	assert.Equal(t, "after reconnect", next(t, out).Line.Text)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestWatcherRetriesFailedOpen(t *testing.T) {
	b := &fakeBackend{openErr: errors.New("device busy")}
	out, cancel, _ := startWatcher(t, b)
	defer cancel()

	assert.Equal(t, InputConnected, next(t, out).Kind)
}

func TestWatcherWakesOnDeviceNode(t *testing.T) {
	dir := t.TempDir()
	b := &fakeBackend{hidden: 1}
	out, cancel, errc := startWatcherWith(t, b, WatcherConfig{
		Identity:       "lpd8",
		PollInterval:   5 * time.Second,
		ReconnectDelay: 5 * time.Millisecond,
		HotplugDir:     dir,
	})
	defer cancel()

	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.polls >= 1
	}, time.Second, 5*time.Millisecond)

	start := time.Now()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "midiC1D0"), nil, 0o644))

	in := next(t, out)
	assert.Equal(t, InputConnected, in.Kind)
	assert.Less(t, time.Since(start), 5*time.Second/2, "device node should cut the poll wait short")

	b.mu.Lock()
	assert.Equal(t, 2, b.polls)
	b.mu.Unlock()

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}
