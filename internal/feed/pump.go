package feed

import (
	"context"
	"errors"
	"time"

	"github.com/banshee-data/canal.report/internal/monitoring"
	"github.com/banshee-data/canal.report/internal/vessel"
)

// Submitter accepts decoded reports. engine.Engine implements it.
type Submitter interface {
	Submit(ctx context.Context, id string, r vessel.Report, wait bool) error
}

// PumpStats counts what Pump did with the lines it read.
type PumpStats struct {
	Submitted int
	Skipped   int
	Invalid   int
	Dropped   int
}

// Pump subscribes to src and submits every position line to dst until ctx
// is done or src closes the subscription. Reports are submitted without
// waiting; engine rejections are logged by the engine.
func Pump(ctx context.Context, src Interface, dst Submitter, now func() time.Time) (PumpStats, error) {
	return Attach(src).Run(ctx, dst, now)
}

// Attachment is a pump subscription taken ahead of Run, so lines read by a
// monitor started in between are not lost.
type Attachment struct {
	src   Interface
	id    string
	lines chan string
}

// Attach subscribes to src.
func Attach(src Interface) *Attachment {
	id, lines := src.Subscribe()
	return &Attachment{src: src, id: id, lines: lines}
}

// Run does the work of Pump on the attached subscription and unsubscribes
// when it returns.
func (a *Attachment) Run(ctx context.Context, dst Submitter, now func() time.Time) (PumpStats, error) {
	var stats PumpStats
	defer a.src.Unsubscribe(a.id)

	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case line, ok := <-a.lines:
			if !ok {
				return stats, nil
			}
			vid, r, err := ParseReport(line, now())
			switch {
			case errors.Is(err, ErrNotPosition):
				stats.Skipped++
				continue
			case err != nil:
				stats.Invalid++
				monitoring.Logf("[feed] %v", err)
				continue
			}
			if err := dst.Submit(ctx, vid, r, false); err != nil {
				if ctx.Err() != nil {
					return stats, ctx.Err()
				}
				stats.Dropped++
				monitoring.Vesself("feed", vid, "report dropped: %v", err)
				continue
			}
			stats.Submitted++
		}
	}
}
