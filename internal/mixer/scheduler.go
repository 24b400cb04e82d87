package mixer

import (
	"context"
	"time"

	"github.com/PixPMusic/padmixer/internal/pulse"
	"github.com/sirupsen/logrus"
)

// Scheduler writes pending knob values to the surface, at most once per
// target per minimum apply interval
type Scheduler struct {
	surface pulse.Surface
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewScheduler(surface pulse.Surface, timeout time.Duration, log logrus.FieldLogger) *Scheduler {
	return &Scheduler{surface: surface, timeout: timeout, log: log}
}

// Flush applies every pending knob whose target is not throttled and
// returns the number of volume calls made. Throttled knobs keep their
// pending value for a later flush. A failed call still counts as applied.
func (s *Scheduler) Flush(ctx context.Context, st *State, now time.Time) int {
	sent := 0
	for _, k := range st.sortedKnobs() {
		if k.Pending == Unset {
			continue
		}
		if k.Pending == k.Applied {
			k.Pending = Unset
			continue
		}

		key := k.Target.String()
		if !st.Ledger.Allow(key, now) {
			continue
		}

		log := s.log.WithFields(logrus.Fields{"knob": k.Controller, "target": key})
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		err := s.surface.SetVolume(cctx, k.Target, k.Pending)
		cancel()
		if err != nil {
			log.WithError(err).Warn("Set volume failed")
		} else {
			log.WithField("pct", k.Pending).Debug("Volume applied")
		}

		st.Ledger.Stamp(key, now)
		k.Applied = k.Pending
		k.Pending = Unset
		sent++
	}
	return sent
}
