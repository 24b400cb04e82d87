package midi

import (
	"context"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultHotplugDir is where ALSA sequencer device nodes appear
const DefaultHotplugDir = "/dev/snd"

// WatcherConfig controls port discovery and reconnection
type WatcherConfig struct {
	Identity       string        // Substring of the port name to attach to
	PollInterval   time.Duration // Re-poll period while no port matches
	ReconnectDelay time.Duration // Pause after a stream ends
	HotplugDir     string        // Watched for device nodes; empty disables the watch
}

// Watcher keeps a stream open on the first matching port, reconnecting
// whenever the device goes away
type Watcher struct {
	backend Backend
	cfg     WatcherConfig
	log     logrus.FieldLogger
}

// NewWatcher creates a watcher over the given backend
func NewWatcher(backend Backend, cfg WatcherConfig, log logrus.FieldLogger) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	return &Watcher{backend: backend, cfg: cfg, log: log.WithField("backend", backend.Name())}
}

// Run delivers inputs to out until ctx is done. Every successful connection
// is announced with InputConnected and every ended stream with
// InputDisconnected. It only returns ctx's error.
func (w *Watcher) Run(ctx context.Context, out chan<- Input) error {
	wake := w.hotplug(ctx)

	for {
		port, err := w.waitForPort(ctx, wake)
		if err != nil {
			return err
		}

		stream, err := w.backend.Open(ctx, port)
		if err != nil {
			w.log.WithError(err).WithField("port", port.Name).Warn("Failed to open MIDI port")
			if err := sleep(ctx, w.cfg.PollInterval); err != nil {
				return err
			}
			continue
		}

		w.log.WithField("port", port.Name).Info("Listening on MIDI port")
		if !w.emit(ctx, out, Input{Kind: InputConnected, Port: port, At: time.Now()}) {
			stream.Close()
			return ctx.Err()
		}

		w.pump(ctx, stream, port, out)
		stream.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		w.log.WithField("port", port.Name).Warn("MIDI stream ended, reconnecting")
		if !w.emit(ctx, out, Input{Kind: InputDisconnected, Port: port, At: time.Now()}) {
			return ctx.Err()
		}
		if err := sleep(ctx, w.cfg.ReconnectDelay); err != nil {
			return err
		}
	}
}

func (w *Watcher) pump(ctx context.Context, stream Stream, port Port, out chan<- Input) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stream.Done():
			return
		case line := <-stream.Lines():
			if !w.emit(ctx, out, Input{Kind: InputLine, Line: line, Port: port, At: line.At}) {
				return
			}
		}
	}
}

func (w *Watcher) emit(ctx context.Context, out chan<- Input, in Input) bool {
	select {
	case out <- in:
		return true
	case <-ctx.Done():
		return false
	}
}

// waitForPort polls the backend until a port matches the identity
func (w *Watcher) waitForPort(ctx context.Context, wake <-chan struct{}) (Port, error) {
	announced := false
	for {
		ports, err := w.backend.Ports(ctx)
		if err != nil {
			w.log.WithError(err).Debug("Listing MIDI ports failed")
		}
		if port, ok := MatchPort(ports, w.cfg.Identity); ok {
			return port, nil
		}
		if !announced {
			w.log.Infof("Waiting for a MIDI port matching %q", w.cfg.Identity)
			announced = true
		}

		select {
		case <-ctx.Done():
			return Port{}, ctx.Err()
		case <-wake:
			// Device nodes show up before the sequencer port is registered
			if err := sleep(ctx, w.cfg.PollInterval/5); err != nil {
				return Port{}, err
			}
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// hotplug returns a channel signalled on device node changes, or nil when
// the directory cannot be watched and polling alone has to do
func (w *Watcher) hotplug(ctx context.Context) <-chan struct{} {
	if w.cfg.HotplugDir == "" {
		return nil
	}
	if _, err := os.Stat(w.cfg.HotplugDir); err != nil {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.WithError(err).Debug("Hotplug watch unavailable")
		return nil
	}
	if err := fw.Add(w.cfg.HotplugDir); err != nil {
		w.log.WithError(err).Debug("Hotplug watch unavailable")
		fw.Close()
		return nil
	}

	wake := make(chan struct{}, 1)
	go func() {
		defer fw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) {
					select {
					case wake <- struct{}{}:
					default:
					}
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				w.log.WithError(err).Debug("Hotplug watch error")
			}
		}
	}()
	return wake
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
