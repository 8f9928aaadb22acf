// Package engine wires the vessel pipeline together: every position report
// runs through proximity, status, passage and lifecycle before the next one
// is accepted, and the results are published as an immutable snapshot and a
// stream of events.
package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/canal.report/internal/bridges"
	"github.com/banshee-data/canal.report/internal/bridgetext"
	"github.com/banshee-data/canal.report/internal/geo"
	"github.com/banshee-data/canal.report/internal/lifecycle"
	"github.com/banshee-data/canal.report/internal/monitoring"
	"github.com/banshee-data/canal.report/internal/passage"
	"github.com/banshee-data/canal.report/internal/proximity"
	"github.com/banshee-data/canal.report/internal/route"
	"github.com/banshee-data/canal.report/internal/status"
	"github.com/banshee-data/canal.report/internal/timeutil"
	"github.com/banshee-data/canal.report/internal/units"
	"github.com/banshee-data/canal.report/internal/vessel"
	"github.com/google/uuid"
)

// Snapshot is the read-only state published after every processed event.
type Snapshot struct {
	Vessels    []vessel.View   `json:"vessels"`
	Text       string          `json:"text"`
	Latches    []passage.Latch `json:"latches"`
	LastReport time.Time       `json:"last_report"`
	Published  time.Time       `json:"published"`
}

// Engine owns every component of the pipeline. The core methods
// (UpdateVessel, Sweep*, Flush) are synchronous and must be called from a
// single goroutine, normally Run. AllVessels, BridgeText, Snapshot,
// Subscribe and Submit are safe from any goroutine.
type Engine struct {
	cfg      Config
	registry *bridges.Registry
	clock    timeutil.Clock

	store      *vessel.Store
	analyzer   *proximity.Analyzer
	resolver   *status.Resolver
	stabilizer *status.Stabilizer
	detector   *passage.Detector
	latches    *passage.Latches
	validator  *route.Validator
	lifecycle  *lifecycle.Manager
	composer   *bridgetext.Composer

	completed  map[string]bool // journey-completed announced
	text       string
	textDirty  bool
	lastReport time.Time

	snapshot atomic.Pointer[Snapshot]
	inbox    chan submission

	subMu       sync.Mutex
	subscribers map[string]chan Event
}

// New creates an Engine. A nil clock means the real clock.
func New(cfg Config, registry *bridges.Registry, clock timeutil.Clock) *Engine {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	validator := route.NewValidator(cfg.Route, registry)
	e := &Engine{
		cfg:         cfg,
		registry:    registry,
		clock:       clock,
		store:       vessel.NewStore(cfg.Store),
		analyzer:    proximity.NewAnalyzer(cfg.Proximity, registry),
		resolver:    status.NewResolver(cfg.Resolver, registry),
		stabilizer:  status.NewStabilizer(cfg.Stabilizer),
		detector:    passage.NewDetector(cfg.Passage, registry),
		latches:     passage.NewLatches(cfg.Passage.LatchLifetime),
		validator:   validator,
		lifecycle:   lifecycle.NewManager(registry, validator.InferDirection),
		composer:    bridgetext.NewComposer(registry),
		completed:   make(map[string]bool),
		inbox:       make(chan submission, cfg.InboxSize),
		subscribers: make(map[string]chan Event),
	}
	e.text = e.composer.Default()
	e.publish()
	return e
}

// Registry returns the bridge table the engine runs against.
func (e *Engine) Registry() *bridges.Registry { return e.registry }

// UpdateVessel processes one position report to completion. Invalid
// reports, including those stamped too far ahead of the engine clock, are
// rejected with an error wrapping vessel.ErrInvalidReport and change
// nothing. Reports not newer than the vessel's last one are ignored.
func (e *Engine) UpdateVessel(id string, r vessel.Report) error {
	v, change, err := e.store.UpdateAt(id, r, e.clock.Now())
	if err != nil {
		return fmt.Errorf("update vessel %q: %w", id, err)
	}
	if change == vessel.ChangeStale {
		return nil
	}
	if r.Timestamp.After(e.lastReport) {
		e.lastReport = r.Timestamp
	}
	now := v.LastUpdate

	e.analyzer.Apply(v, e.analyzer.Analyze(v.Position()))

	if e.detector.ClearsLatches(v) {
		if n := e.latches.ClearVessel(v.ID); n > 0 {
			monitoring.Vesself("engine", v.ID, "%.0f m jump cleared %d latches", v.JumpM, n)
		}
	}

	e.assignTarget(v)

	for _, det := range e.detector.Evaluate(v) {
		if e.latches.Active(v.ID, det.BridgeID, now) {
			continue
		}
		if det.Has(passage.TriggerClosestApproach) && !det.Has(passage.TriggerLineCrossing) && det.BridgeID != v.TargetBridge {
			continue
		}
		e.confirm(v, det)
	}

	e.resolver.Observe(v)
	proposal := e.resolver.Resolve(v, e.latches)
	d := e.stabilizer.Stabilize(v, proposal)
	if d.Status.PrePassage() && e.latches.Vetoes(v.ID, d.BridgeID, d.Status, now) {
		d.Proposal = proposal
	}
	if d.Status != v.Status || d.BridgeID != v.StatusBridge {
		monitoring.Vesself("status", v.ID, "%s -> %s at %s (confidence %.2f %s)", v.Status, d.Status, d.BridgeID, d.Confidence, d.Reason)
	}
	v.Status, v.StatusBridge, v.Confidence = d.Status, d.BridgeID, d.Confidence

	e.nearZone(v)

	deadline := e.analyzer.RemovalDeadline(v)
	if verdict := e.lifecycle.Evaluate(v); verdict.Eliminate {
		if !e.completed[v.ID] {
			e.completed[v.ID] = true
			ev := newEvent(EventJourneyCompleted, now)
			ev.VesselID, ev.BridgeID, ev.BridgeName = v.ID, verdict.BridgeID, e.registry.Name(verdict.BridgeID)
			ev.Direction = verdict.Direction
			e.emit(ev)
			monitoring.Vesself("lifecycle", v.ID, "journey completed %s at %s", verdict.Direction, verdict.BridgeID)
		}
		if done := v.LastPassedTime.Add(e.cfg.Resolver.PassedHold); done.Before(deadline) {
			deadline = done
		}
	} else {
		delete(e.completed, v.ID)
	}
	// Timeouts run from the report's own time but are scheduled on the
	// engine clock, which is what SweepStale is driven by.
	deadline = v.LastSeen.Add(deadline.Sub(now))
	if !deadline.After(v.LastSeen) {
		e.remove(v.ID, now)
	} else {
		e.store.Schedule(v.ID, deadline)
	}

	e.textDirty = true
	e.publish()
	return nil
}

// assignTarget keeps TargetBridge pointing at the openable bridge the
// vessel is headed for. A target left behind by more than
// TargetReassignDistanceM is dropped; a vessel without one gets the nearest
// openable bridge ahead of it, or, with no usable course, the nearest
// openable bridge within the approach zone. Latched bridges are skipped.
func (e *Engine) assignTarget(v *vessel.Vessel) {
	now := v.LastUpdate
	dir := e.travelDirection(v)

	if v.TargetBridge != "" {
		b, ok := e.registry.Get(v.TargetBridge)
		if ok && !(dir != bridges.DirectionUnknown &&
			v.Distances[b.ID] > e.cfg.TargetReassignDistanceM &&
			!ahead(v, b, dir)) {
			return
		}
		monitoring.Vesself("engine", v.ID, "dropping target %s left behind", v.TargetBridge)
		v.TargetBridge = ""
	}

	best, bestD := "", 0.0
	for _, b := range e.registry.Openable() {
		if e.latches.Active(v.ID, b.ID, now) {
			continue
		}
		d := v.Distances[b.ID]
		if dir == bridges.DirectionUnknown {
			if d > e.cfg.Resolver.Zones.Approach.SetM {
				continue
			}
		} else if !ahead(v, b, dir) {
			continue
		}
		if best == "" || d < bestD {
			best, bestD = b.ID, d
		}
	}
	if best != "" {
		monitoring.Vesself("engine", v.ID, "target %s (%.0f m, %s)", best, bestD, dir)
		v.TargetBridge = best
	}
}

// ahead reports whether b lies ahead of v for travel in dir, measured
// against the bridge's canal axis.
func ahead(v *vessel.Vessel, b bridges.Bridge, dir bridges.Direction) bool {
	axis := b.AxisBearingDeg
	if dir == bridges.Southbound {
		axis += 180
	}
	return geo.AngleDiff(geo.Bearing(v.Position(), b.Point()), axis) < 90
}

func (e *Engine) travelDirection(v *vessel.Vessel) bridges.Direction {
	if v.SpeedKn < e.cfg.DirectionMinSpeedKn {
		return bridges.DirectionUnknown
	}
	return e.validator.InferDirection(v.CourseDeg)
}

// confirm runs a detection past the route validator and, if accepted,
// latches the bridge, records the passage and advances the target.
func (e *Engine) confirm(v *vessel.Vessel, det passage.Detection) {
	now := v.LastUpdate
	dir := det.Direction
	entry := route.Entry{BridgeID: det.BridgeID, At: now, Direction: dir, Lat: v.Lat, Lon: v.Lon, SpeedKn: v.SpeedKn}

	ev := newEvent(EventPassageConfirmed, now)
	ev.VesselID, ev.BridgeID, ev.BridgeName = v.ID, det.BridgeID, e.registry.Name(det.BridgeID)
	ev.Direction, ev.Triggers, ev.ClosestM, ev.CrossingM = dir, det.Triggers, det.ClosestM, det.CrossingM

	verdict := e.validator.Validate(v.ID, entry)
	ev.Verdict = verdict.Reason
	if !verdict.Accepted {
		if det.Has(passage.TriggerClosestApproach) && v.Scratch.BridgeID == det.BridgeID {
			v.Scratch.Rejected = true
		}
		ev.Kind = EventPassageRejected
		ev.TargetBridge = v.TargetBridge
		e.emit(ev)
		return
	}

	e.validator.Register(v.ID, entry)
	e.latches.Register(v.ID, det.BridgeID, dir, now)
	v.RecordPassage(det.BridgeID, now, string(dir), e.cfg.RecentPassagesMax)
	e.stabilizer.Reset(v.ID)

	if v.TargetBridge == "" || v.TargetBridge == det.BridgeID || !e.registry.Beyond(det.BridgeID, v.TargetBridge, dir) {
		next := ""
		if b, ok := e.registry.NextOpenable(det.BridgeID, dir); ok && !e.latches.Active(v.ID, b.ID, now) {
			next = b.ID
		}
		if next != v.TargetBridge {
			monitoring.Vesself("passage", v.ID, "target %q -> %q", v.TargetBridge, next)
		}
		v.TargetBridge = next
	}
	v.ClearScratch()

	monitoring.Vesself("passage", v.ID, "passed %s %s via %v", det.BridgeID, dir, det.Triggers)
	ev.TargetBridge = v.TargetBridge
	e.emit(ev)
}

// nearZone announces the first entry into the near zone of each bridge.
// The announcement re-arms once the vessel is beyond the approach clear
// distance.
func (e *Engine) nearZone(v *vessel.Vessel) {
	if v.NearNotified == nil {
		v.NearNotified = make(map[string]bool)
	}
	for _, b := range e.registry.Ordered() {
		d, ok := v.Distances[b.ID]
		if !ok {
			continue
		}
		if d > e.cfg.Resolver.Zones.Approach.ClearM {
			delete(v.NearNotified, b.ID)
			continue
		}
		if d > e.cfg.NearZoneEventDistanceM || v.NearNotified[b.ID] || e.latches.Active(v.ID, b.ID, v.LastUpdate) {
			continue
		}
		v.NearNotified[b.ID] = true
		ev := newEvent(EventNearZoneEntry, v.LastUpdate)
		ev.VesselID, ev.BridgeID, ev.BridgeName, ev.DistanceM = v.ID, b.ID, b.Name, d
		if eta, ok := units.ETAMinutes(d, v.MeanSpeedKn(), e.cfg.Store.ETAMinSpeedKn); ok {
			ev.ETAMinutes = &eta
		}
		e.emit(ev)
	}
}

func (e *Engine) remove(id string, now time.Time) {
	if !e.store.Remove(id) {
		return
	}
	reason := RemovedStale
	if e.completed[id] {
		reason = RemovedCompleted
	}
	delete(e.completed, id)
	e.latches.ClearVessel(id)
	e.validator.Forget(id)
	e.stabilizer.Reset(id)

	ev := newEvent(EventVesselRemoved, now)
	ev.VesselID, ev.Reason = id, reason
	e.emit(ev)
	monitoring.Vesself("engine", id, "removed (%s)", reason)
	e.textDirty = true
}

// SweepLatches drops expired latches.
func (e *Engine) SweepLatches(now time.Time) int {
	n := e.latches.Expire(now)
	if n > 0 {
		e.publish()
	}
	return n
}

// SweepRoutes prunes old route history and idle stabilizer state.
func (e *Engine) SweepRoutes(now time.Time) int {
	return e.validator.Prune(now) + e.stabilizer.Purge(now)
}

// SweepStale removes every vessel whose removal deadline has passed and
// returns their ids.
func (e *Engine) SweepStale(now time.Time) []string {
	ids := e.store.Expired(now)
	for _, id := range ids {
		e.remove(id, now)
	}
	if len(ids) > 0 {
		e.publish()
	}
	return ids
}

// Flush recomposes the bridge text if anything changed since the last
// flush and announces a changed sentence. It reports whether the text
// changed.
func (e *Engine) Flush(now time.Time) bool {
	if !e.textDirty {
		return false
	}
	e.textDirty = false
	text := e.GenerateBridgeText(e.store.Snapshot())
	if text == e.text {
		return false
	}
	e.text = text
	ev := newEvent(EventBridgeTextChanged, now)
	ev.Text = text
	e.emit(ev)
	e.publish()
	return true
}

// GenerateBridgeText composes the display sentence for views.
func (e *Engine) GenerateBridgeText(views []vessel.View) string {
	return e.composer.Compose(views)
}

// AllVessels returns the views of the last published snapshot.
func (e *Engine) AllVessels() []vessel.View {
	return e.snapshot.Load().Vessels
}

// BridgeText returns the last flushed display sentence.
func (e *Engine) BridgeText() string {
	return e.snapshot.Load().Text
}

// Snapshot returns the last published snapshot.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Load()
}

func (e *Engine) publish() {
	e.snapshot.Store(&Snapshot{
		Vessels:    e.store.Snapshot(),
		Text:       e.text,
		Latches:    e.latches.List(),
		LastReport: e.lastReport,
		Published:  e.clock.Now(),
	})
}

// Subscribe registers a buffered event channel. Events are sent without
// blocking; a subscriber that falls behind loses events.
func (e *Engine) Subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, e.cfg.SubscriberBuffer)
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (e *Engine) Unsubscribe(id string) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	if ch, ok := e.subscribers[id]; ok {
		close(ch)
		delete(e.subscribers, id)
	}
}

// Subscribers returns how many event subscribers are registered.
func (e *Engine) Subscribers() int {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	return len(e.subscribers)
}

func (e *Engine) emit(ev Event) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for id, ch := range e.subscribers {
		select {
		case ch <- ev:
		default:
			monitoring.Logf("[engine] subscriber %s full, dropped %s event", id, ev.Kind)
		}
	}
}
