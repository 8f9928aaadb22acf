package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/banshee-data/canal.report/internal/engine"
	"github.com/banshee-data/canal.report/internal/feed"
	"github.com/banshee-data/canal.report/internal/geo"
	"github.com/banshee-data/canal.report/internal/timeutil"
	"github.com/banshee-data/canal.report/internal/vessel"
)

// Sample is one accepted report with the distance to every bridge.
type Sample struct {
	At        time.Time
	Status    vessel.Status
	Target    string
	Distances map[string]float64
}

// Trace is everything the replay saw for one vessel.
type Trace struct {
	VesselID string
	Samples  []Sample
	Passages []engine.Event
}

// ReplayStats counts what happened to the input lines.
type ReplayStats struct {
	Lines    int
	Reports  int
	Skipped  int
	Rejected int
}

// Replay feeds every position line of r through eng in order. The engine
// clock follows the report timestamps; lines without one are spaced step
// apart from start. Sweeps run after every report so removals and latch
// expiry happen as they would live.
func Replay(r io.Reader, eng *engine.Engine, clock *timeutil.MockClock, start time.Time, step time.Duration) (map[string]*Trace, ReplayStats, error) {
	var stats ReplayStats
	traces := make(map[string]*Trace)
	id, events := eng.Subscribe()
	defer eng.Unsubscribe(id)

	drain := func() {
		for {
			select {
			case ev := <-events:
				if ev.Kind != engine.EventPassageConfirmed {
					continue
				}
				if t, ok := traces[ev.VesselID]; ok {
					t.Passages = append(t.Passages, ev)
				}
			default:
				return
			}
		}
	}

	scan := bufio.NewScanner(r)
	for scan.Scan() {
		received := start.Add(time.Duration(stats.Lines) * step)
		stats.Lines++
		vesselID, report, err := feed.ParseReport(scan.Text(), received)
		if errors.Is(err, feed.ErrNotPosition) {
			stats.Skipped++
			continue
		}
		if err != nil {
			stats.Rejected++
			continue
		}

		if report.Timestamp.After(clock.Now()) {
			clock.Set(report.Timestamp)
		}
		if err := eng.UpdateVessel(vesselID, report); err != nil {
			stats.Rejected++
			continue
		}
		stats.Reports++

		now := clock.Now()
		eng.SweepLatches(now)
		eng.SweepStale(now)

		t, ok := traces[vesselID]
		if !ok {
			t = &Trace{VesselID: vesselID}
			traces[vesselID] = t
		}
		t.Samples = append(t.Samples, sample(eng, vesselID, report))
		drain()
	}
	drain()
	if err := scan.Err(); err != nil {
		return traces, stats, fmt.Errorf("read input: %w", err)
	}
	return traces, stats, nil
}

func sample(eng *engine.Engine, id string, r vessel.Report) Sample {
	s := Sample{At: r.Timestamp, Distances: make(map[string]float64)}
	p := geo.Point{Lat: r.Lat, Lon: r.Lon}
	for _, b := range eng.Registry().Ordered() {
		s.Distances[b.ID] = geo.Distance(p, b.Point())
	}
	for _, v := range eng.AllVessels() {
		if v.ID == id {
			s.Status, s.Target = v.Status, v.TargetBridge
			break
		}
	}
	return s
}

// SortedIDs returns the vessel ids of traces in order.
func SortedIDs(traces map[string]*Trace) []string {
	ids := make([]string, 0, len(traces))
	for id := range traces {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
