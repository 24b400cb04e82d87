package pulse

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Kind distinguishes playback sinks from capture sources
type Kind string

const (
	Sink   Kind = "sink"
	Source Kind = "source"
)

// ErrNotFound is returned when the sound server has no entity with the given name
var ErrNotFound = errors.New("no such sink or source")

// Target names a volume-controllable entity on the sound server
type Target struct {
	Kind Kind   `yaml:"kind"`
	Name string `yaml:"name"`
}

func (t Target) String() string {
	return fmt.Sprintf("%s:%s", t.kind(), t.Name)
}

// WithName returns a copy of t addressing a different entity of the same kind
func (t Target) WithName(name string) Target {
	t.Name = name
	return t
}

func (t Target) kind() Kind {
	if t.Kind == "" {
		return Sink
	}
	return t.Kind
}

// Surface is the name-addressed control surface of the sound server.
// Every call is synchronous and idempotent.
type Surface interface {
	// Ping succeeds once the sound server answers
	Ping(ctx context.Context) error

	// Exists reports whether the named sink/source is currently present
	Exists(ctx context.Context, t Target) (bool, error)

	// Volume returns the current volume in percent
	Volume(ctx context.Context, t Target) (int, error)

	// SetVolume sets the volume in percent (0-100)
	SetVolume(ctx context.Context, t Target, pct int) error

	// Muted returns the current mute state
	Muted(ctx context.Context, t Target) (bool, error)

	// SetMute sets the mute state
	SetMute(ctx context.Context, t Target, muted bool) error
}

// WaitReady blocks until the surface answers a ping, retrying every backoff.
// It only fails when ctx is done.
func WaitReady(ctx context.Context, s Surface, backoff time.Duration, log logrus.FieldLogger) error {
	for attempt := 1; ; attempt++ {
		err := s.Ping(ctx)
		if err == nil {
			if attempt > 1 {
				log.Infof("Sound server ready after %d attempts", attempt)
			}
			return nil
		}
		if attempt == 1 {
			log.WithError(err).Warn("Sound server not ready, waiting")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// Nop is a Surface that accepts every call and changes nothing
type Nop struct{}

func (Nop) Ping(context.Context) error { return nil }
func (Nop) Exists(context.Context, Target) (bool, error) { return true, nil }
func (Nop) Volume(context.Context, Target) (int, error) { return 0, nil }
func (Nop) SetVolume(context.Context, Target, int) error { return nil }
func (Nop) Muted(context.Context, Target) (bool, error) { return false, nil }
func (Nop) SetMute(context.Context, Target, bool) error { return nil }
