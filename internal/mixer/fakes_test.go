package mixer

import (
	"context"
	"sync"
	"time"

	"github.com/PixPMusic/padmixer/internal/config"
	"github.com/PixPMusic/padmixer/internal/midi"
	"github.com/PixPMusic/padmixer/internal/pulse"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	gomidi "gitlab.com/gomidi/midi/v2"
)

type volumeCall struct {
	Target string
	Pct    int
}

type muteCall struct {
	Target string
	Muted  bool
}

type fakeSurface struct {
	pulse.Nop

	mu         sync.Mutex
	volumes    []volumeCall
	mutes      []muteCall
	current    map[string]int
	missing    map[string]bool
	failVolume error
}

func (s *fakeSurface) Exists(_ context.Context, t pulse.Target) (bool, error) {
	return !s.missing[t.String()], nil
}

func (s *fakeSurface) Volume(_ context.Context, t pulse.Target) (int, error) {
	v, ok := s.current[t.String()]
	if !ok {
		return 0, errors.Wrap(pulse.ErrNotFound, t.String())
	}
	return v, nil
}

func (s *fakeSurface) SetVolume(_ context.Context, t pulse.Target, pct int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volumes = append(s.volumes, volumeCall{t.String(), pct})
	return s.failVolume
}

func (s *fakeSurface) SetMute(_ context.Context, t pulse.Target, muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mutes = append(s.mutes, muteCall{t.String(), muted})
	return nil
}

func (s *fakeSurface) volumeCalls() []volumeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]volumeCall(nil), s.volumes...)
}

func (s *fakeSurface) muteCalls() []muteCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]muteCall(nil), s.mutes...)
}

type countingFirer struct {
	mu    sync.Mutex
	fired map[string]int
}

func (f *countingFirer) Fire(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fired == nil {
		f.fired = map[string]int{}
	}
	f.fired[name]++
}

func (f *countingFirer) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fired[name]
}

type mapRoutes map[string]string

func (r mapRoutes) Resolve(name string) (string, error) {
	if len(name) == 0 || name[0] != '$' {
		return name, nil
	}
	v, ok := r[name[1:]]
	if !ok {
		return "", errors.Errorf("route %s is not set", name[1:])
	}
	return v, nil
}

var t0 = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func lineAt(msg gomidi.Message, ms int) midi.Input {
	return midi.Input{
		Kind: midi.InputLine,
		Line: midi.Line{Text: msg.String(), Msg: msg, At: at(ms)},
		At:   at(ms),
	}
}

func connectedAt(ms int) midi.Input {
	return midi.Input{
		Kind: midi.InputConnected,
		Port: midi.Port{ID: "20:0", Name: "LPD8:LPD8 MIDI 1"},
		At:   at(ms),
	}
}

func debugLogger() (*logrus.Logger, *test.Hook) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return log, hook
}

func hasMessage(hook *test.Hook, msg string) bool {
	for _, e := range hook.AllEntries() {
		if e.Message == msg {
			return true
		}
	}
	return false
}

type rig struct {
	cfg     *config.Config
	surface *fakeSurface
	firer   *countingFirer
	engine  *Engine
	hook    *test.Hook
}

func newRig(mutate func(*config.Config)) *rig {
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	log, hook := debugLogger()
	r := &rig{
		cfg:     cfg,
		surface: &fakeSurface{current: map[string]int{}, missing: map[string]bool{}},
		firer:   &countingFirer{},
		hook:    hook,
	}
	r.engine = New(cfg, Options{
		Surface: r.surface,
		Routes:  mapRoutes{"ASTRO_TARGET": "headset", "MIC_SOURCE": "mic"},
		Actions: r.firer,
	}, log)
	return r
}
