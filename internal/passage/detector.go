// Package passage decides when a vessel has gone through a bridge and keeps
// the latches that protect that decision from out-of-order fixes.
package passage

import (
	"sort"
	"time"

	"github.com/banshee-data/canal.report/internal/bridges"
	"github.com/banshee-data/canal.report/internal/config"
	"github.com/banshee-data/canal.report/internal/geo"
	"github.com/banshee-data/canal.report/internal/vessel"
)

// Trigger names the predicate that confirmed a passage.
type Trigger string

const (
	TriggerClosestApproach Trigger = "closest-approach"
	TriggerLineCrossing    Trigger = "line-crossing"
)

// Config holds the passage thresholds. Each condition of the
// closest-approach predicate has its own field.
type Config struct {
	MaxClosestM            float64 // closest observed distance must be within this
	DepartureMarginM       float64 // current distance beyond closest by more than this
	DepartureAbsoluteM     float64 // or simply beyond this distance
	DepartureTurnDeg       float64 // course or bearing rotated away from the approach by more than this
	MinSpeedKn             float64 // moving faster than this
	MinDisplacementM       float64 // moved at least this far since the previous fix
	LineCrossingProximityM float64 // crossing point within this of the bridge
	LatchLifetime          time.Duration
	LatchClearJumpM        float64 // a jump beyond this drops every latch of the vessel
}

// DefaultConfig returns passage configuration loaded from the canonical
// tuning defaults file.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		MaxClosestM:            cfg.GetPassageMaxClosestM(),
		DepartureMarginM:       cfg.GetDepartureMarginM(),
		DepartureAbsoluteM:     cfg.GetDepartureAbsoluteM(),
		DepartureTurnDeg:       cfg.GetDepartureTurnDeg(),
		MinSpeedKn:             cfg.GetPassageMinSpeedKn(),
		MinDisplacementM:       cfg.GetPassageMinDisplacementM(),
		LineCrossingProximityM: cfg.GetLineCrossingProximityM(),
		LatchLifetime:          cfg.GetLatchLifetime(),
		LatchClearJumpM:        cfg.GetLatchClearJumpM(),
	}
}

// Detection is one bridge the vessel is judged to have passed on this
// update.
type Detection struct {
	BridgeID  string            `json:"bridge_id"`
	IsTarget  bool              `json:"is_target"`
	Triggers  []Trigger         `json:"triggers"`
	ClosestM  float64           `json:"closest_m"`            // closest observed distance, target only
	DistanceM float64           `json:"distance_m"`           // distance at this fix
	CrossingM *float64          `json:"crossing_m,omitempty"` // crossing point distance, line crossing only
	Direction bridges.Direction `json:"direction,omitempty"`  // crossing sense, else the side the target was approached from
	At        time.Time         `json:"at"`
	order     float64
}

// Has reports whether t contributed to the detection.
func (d Detection) Has(t Trigger) bool {
	for _, x := range d.Triggers {
		if x == t {
			return true
		}
	}
	return false
}

// Detector evaluates both passage predicates. It keeps no state; the
// closest-approach memory lives in the vessel's scratch.
type Detector struct {
	cfg      Config
	registry *bridges.Registry
}

// NewDetector creates a Detector.
func NewDetector(cfg Config, registry *bridges.Registry) *Detector {
	return &Detector{cfg: cfg, registry: registry}
}

// Evaluate checks the latest segment of v's track. The target bridge is
// tested with closest-approach and line crossing (either suffices); every
// other bridge with line crossing only. Jumps and sub-threshold jitter
// never count as a passage. Detections come back in the order the track
// met them. Evaluate also advances the closest-approach scratch.
func (d *Detector) Evaluate(v *vessel.Vessel) []Detection {
	prev, cur := v.PrevPosition(), v.Position()
	if v.GPSJump || !v.HasPrev || geo.Distance(prev, cur) < d.cfg.MinDisplacementM {
		d.track(v)
		return nil
	}

	var out []Detection

	for _, b := range d.registry.Ordered() {
		isTarget := b.ID == v.TargetBridge
		det := Detection{BridgeID: b.ID, IsTarget: isTarget, DistanceM: v.Distances[b.ID], At: v.LastUpdate, order: 1}

		if c := geo.SegmentCrossesAxis(prev, cur, b.Point(), b.AxisBearingDeg); c.Crossed && c.DistanceM <= d.cfg.LineCrossingProximityM {
			crossing := c.DistanceM
			det.Triggers = append(det.Triggers, TriggerLineCrossing)
			det.CrossingM = &crossing
			det.order = c.T
			if c.Forward {
				det.Direction = bridges.Northbound
			} else {
				det.Direction = bridges.Southbound
			}
		}
		if isTarget && d.departed(v, b) {
			det.Triggers = append([]Trigger{TriggerClosestApproach}, det.Triggers...)
			det.ClosestM = v.Scratch.ClosestM
			if det.Direction == bridges.DirectionUnknown {
				det.Direction = approachDirection(b, v.Scratch.ApproachBearing)
			}
		}
		if len(det.Triggers) > 0 {
			out = append(out, det)
		}
	}

	d.track(v)
	sort.SliceStable(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}

// departed is the closest-approach predicate: the vessel came close, is now
// materially further away, has turned away from how it approached, and is
// moving. Evaluate has already checked the displacement.
func (d *Detector) departed(v *vessel.Vessel, b bridges.Bridge) bool {
	s := v.Scratch
	if !s.Valid || s.BridgeID != b.ID || s.Rejected {
		return false
	}
	dist := v.Distances[b.ID]

	closeEnough := s.ClosestM <= d.cfg.MaxClosestM
	movedAway := dist > s.ClosestM &&
		(dist > s.ClosestM+d.cfg.DepartureMarginM || dist > d.cfg.DepartureAbsoluteM)
	turned := geo.AngleDiff(v.CourseDeg, s.ApproachBearing) > d.cfg.DepartureTurnDeg ||
		geo.AngleDiff(geo.Bearing(v.Position(), b.Point()), s.ApproachBearing) > d.cfg.DepartureTurnDeg
	moving := v.SpeedKn > d.cfg.MinSpeedKn

	return closeEnough && movedAway && turned && moving
}

// approachDirection is the travel direction of a vessel that closed on b
// along bearing. The course after a turn says nothing about which side the
// vessel came from.
func approachDirection(b bridges.Bridge, bearing float64) bridges.Direction {
	if geo.AngleDiff(bearing, b.AxisBearingDeg) < 90 {
		return bridges.Northbound
	}
	return bridges.Southbound
}

// track advances the closest-approach scratch against the current target.
// The approach bearing is refreshed on every new minimum until the vessel
// is inside MaxClosestM; closer in, the bearing swings too fast to mean
// anything.
func (d *Detector) track(v *vessel.Vessel) {
	if v.TargetBridge == "" {
		v.ClearScratch()
		return
	}
	b, ok := d.registry.Get(v.TargetBridge)
	if !ok {
		v.ClearScratch()
		return
	}
	dist, ok := v.Distances[b.ID]
	if !ok {
		return
	}

	if !v.Scratch.Valid || v.Scratch.BridgeID != b.ID {
		v.Scratch = vessel.Scratch{
			BridgeID:        b.ID,
			ClosestM:        dist,
			PrevDistanceM:   dist,
			ApproachBearing: geo.Bearing(v.Position(), b.Point()),
			Valid:           true,
		}
		return
	}

	if dist < v.Scratch.ClosestM {
		v.Scratch.ClosestM = dist
		if dist > d.cfg.MaxClosestM {
			v.Scratch.ApproachBearing = geo.Bearing(v.Position(), b.Point())
		}
	}
	v.Scratch.PrevDistanceM = dist
}

// ClearsLatches reports whether the vessel's latest jump is large enough to
// drop all of its latches.
func (d *Detector) ClearsLatches(v *vessel.Vessel) bool {
	return v.GPSJump && v.JumpM > d.cfg.LatchClearJumpM
}
