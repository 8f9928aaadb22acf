package db

import (
	"context"
	"log"
	"time"

	"github.com/banshee-data/canal.report/internal/engine"
	"github.com/banshee-data/canal.report/internal/timeutil"
)

// EventSource is the subscription side of engine.Engine.
type EventSource interface {
	Subscribe() (string, <-chan engine.Event)
	Unsubscribe(string)
}

// JournalWorker writes engine events to the journal on its own goroutine
// so a slow disk never stalls the engine, and prunes rows older than
// Retention every PruneInterval.
type JournalWorker struct {
	DB            *DB
	Clock         timeutil.Clock
	Retention     time.Duration
	PruneInterval time.Duration

	Recorded int
	Failed   int
}

func NewJournalWorker(db *DB) *JournalWorker {
	return &JournalWorker{
		DB:            db,
		Clock:         timeutil.RealClock{},
		Retention:     90 * 24 * time.Hour,
		PruneInterval: time.Hour,
	}
}

// Run subscribes to src and records events until ctx is done or the
// subscription is closed.
func (w *JournalWorker) Run(ctx context.Context, src EventSource) error {
	id, events := src.Subscribe()
	defer src.Unsubscribe(id)

	ticker := w.Clock.NewTicker(w.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := w.DB.RecordEvent(ctx, ev); err != nil {
				w.Failed++
				log.Printf("[journal] %v", err)
				continue
			}
			w.Recorded++

		case now := <-ticker.C():
			if w.Retention <= 0 {
				continue
			}
			n, err := w.DB.Prune(ctx, now.Add(-w.Retention))
			if err != nil {
				log.Printf("[journal] prune failed: %v", err)
			} else if n > 0 {
				log.Printf("[journal] pruned %d rows older than %s", n, w.Retention)
			}
		}
	}
}
