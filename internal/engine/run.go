package engine

import (
	"context"
	"errors"

	"github.com/banshee-data/canal.report/internal/monitoring"
	"github.com/banshee-data/canal.report/internal/vessel"
)

// ErrInboxFull is returned by Submit when the engine is not keeping up.
var ErrInboxFull = errors.New("engine inbox full")

type submission struct {
	id     string
	report vessel.Report
	reply  chan error
}

// Submit queues a report for Run. It waits for the result only when wait
// is true; otherwise the report is processed asynchronously and a rejection
// is logged by the engine.
func (e *Engine) Submit(ctx context.Context, id string, r vessel.Report, wait bool) error {
	s := submission{id: id, report: r}
	if wait {
		s.reply = make(chan error, 1)
	}
	select {
	case e.inbox <- s:
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrInboxFull
	}
	if !wait {
		return nil
	}
	select {
	case err := <-s.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run owns the engine until ctx is done. Reports, sweep ticks and the
// text debounce are handled one at a time in a single select loop, so no
// sweep ever runs during an update.
func (e *Engine) Run(ctx context.Context) error {
	latchTicker := e.clock.NewTicker(e.cfg.LatchSweepInterval)
	defer latchTicker.Stop()
	routeTicker := e.clock.NewTicker(e.cfg.RoutePruneInterval)
	defer routeTicker.Stop()
	staleTicker := e.clock.NewTicker(e.cfg.StaleSweepInterval)
	defer staleTicker.Stop()

	debounce := e.clock.NewTimer(e.cfg.TextDebounce)
	debounce.Stop()
	defer debounce.Stop()
	pending := false
	arm := func() {
		if !pending {
			debounce.Reset(e.cfg.TextDebounce)
			pending = true
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case s := <-e.inbox:
			err := e.UpdateVessel(s.id, s.report)
			if e.textDirty {
				arm()
			}
			if s.reply != nil {
				s.reply <- err
			} else if err != nil {
				monitoring.Logf("[engine] %v", err)
			}

		case now := <-latchTicker.C():
			e.SweepLatches(now)

		case now := <-routeTicker.C():
			e.SweepRoutes(now)

		case now := <-staleTicker.C():
			if len(e.SweepStale(now)) > 0 {
				arm()
			}

		case now := <-debounce.C():
			pending = false
			e.Flush(now)
		}
	}
}
