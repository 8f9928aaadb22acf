// Package status turns proximity and kinematics into a vessel's status and
// damps the result against noisy fixes.
package status

import (
	"sort"
	"time"

	"github.com/banshee-data/canal.report/internal/bridges"
	"github.com/banshee-data/canal.report/internal/config"
	"github.com/banshee-data/canal.report/internal/geo"
	"github.com/banshee-data/canal.report/internal/vessel"
)

// Vetoer is consulted before any status is surfaced for a vessel and
// bridge. Passage latches implement it.
type Vetoer interface {
	Vetoes(vesselID, bridgeID string, s vessel.Status, now time.Time) bool
}

type noVeto struct{}

func (noVeto) Vetoes(string, string, vessel.Status, time.Time) bool { return false }

// NoVeto never vetoes.
var NoVeto Vetoer = noVeto{}

// ResolverConfig holds the zone bands and kinematic thresholds.
type ResolverConfig struct {
	Zones               Zones
	WaitingMaxSpeedKn   float64       // below this the vessel counts as stopped
	WaitingMinDwell     time.Duration // how long it must stay stopped inside the approach zone
	ApproachMinSpeedKn  float64       // approaching needs more than this
	HeadingToleranceDeg float64       // heading-towards tolerance
	PassedHold          time.Duration // passed is held this long after a passage
}

// DefaultResolverConfig returns resolver configuration loaded from the
// canonical tuning defaults file.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfigFromTuning(config.MustLoadDefaultConfig())
}

// ResolverConfigFromTuning builds a ResolverConfig from a loaded TuningConfig.
func ResolverConfigFromTuning(cfg *config.TuningConfig) ResolverConfig {
	return ResolverConfig{
		Zones: Zones{
			Approach: Band{SetM: cfg.GetApproachSetM(), ClearM: cfg.GetApproachClearM()},
			Waiting:  Band{SetM: cfg.GetWaitingSetM(), ClearM: cfg.GetWaitingClearM()},
			Under:    Band{SetM: cfg.GetUnderBridgeSetM(), ClearM: cfg.GetUnderBridgeClearM()},
		},
		WaitingMaxSpeedKn:   cfg.GetWaitingMaxSpeedKn(),
		WaitingMinDwell:     cfg.GetWaitingMinDwell(),
		ApproachMinSpeedKn:  cfg.GetApproachMinSpeedKn(),
		HeadingToleranceDeg: cfg.GetHeadingToleranceDeg(),
		PassedHold:          cfg.GetPassedHold(),
	}
}

// Proposal is a status and the bridge it refers to.
type Proposal struct {
	Status   vessel.Status
	BridgeID string
}

// Resolver maps one vessel's state to a Proposal. It keeps no state of its
// own; zone memory lives on the vessel record.
type Resolver struct {
	cfg      ResolverConfig
	registry *bridges.Registry
}

// NewResolver creates a Resolver.
func NewResolver(cfg ResolverConfig, registry *bridges.Registry) *Resolver {
	return &Resolver{cfg: cfg, registry: registry}
}

// Observe advances the per-bridge zone flags and the stopped-since marker
// from the vessel's latest distances and speed. Call it once per update,
// before Resolve.
func (r *Resolver) Observe(v *vessel.Vessel) {
	if v.Zones == nil {
		v.Zones = make(map[string]vessel.ZoneFlags, len(v.Distances))
	}
	for id, d := range v.Distances {
		v.Zones[id] = r.cfg.Zones.Update(v.Zones[id], d)
	}

	if v.SpeedKn < r.cfg.WaitingMaxSpeedKn {
		if v.SlowSince.IsZero() {
			v.SlowSince = v.LastUpdate
		}
	} else {
		v.SlowSince = time.Time{}
	}
}

// Resolve picks the highest-priority status the vessel qualifies for that
// veto does not block. Candidates, highest first:
//
//  1. under-bridge at a bridge other than the one just passed
//  2. passed, for PassedHold after a passage
//  3. under-bridge at the nearest bridge whose under flag is set
//  4. waiting at the target (waiting flag, or stopped long enough in the approach zone)
//  5. waiting at any other bridge whose waiting flag is set, nearest first
//  6. approaching the target (approach flag, heading towards it, moving)
//  7. en-route
func (r *Resolver) Resolve(v *vessel.Vessel, veto Vetoer) Proposal {
	if veto == nil {
		veto = NoVeto
	}
	now := v.LastUpdate
	try := func(s vessel.Status, bridgeID string) bool {
		return !veto.Vetoes(v.ID, bridgeID, s, now)
	}

	under := r.flagged(v, func(f vessel.ZoneFlags) bool { return f.Under })
	inHold := v.LastPassedBridge != "" && now.Sub(v.LastPassedTime) < r.cfg.PassedHold

	for _, id := range under {
		if inHold && id == v.LastPassedBridge {
			continue
		}
		if try(vessel.StatusUnderBridge, id) {
			return Proposal{Status: vessel.StatusUnderBridge, BridgeID: id}
		}
	}
	if inHold && try(vessel.StatusPassed, v.LastPassedBridge) {
		return Proposal{Status: vessel.StatusPassed, BridgeID: v.LastPassedBridge}
	}
	for _, id := range under {
		if try(vessel.StatusUnderBridge, id) {
			return Proposal{Status: vessel.StatusUnderBridge, BridgeID: id}
		}
	}

	target := r.focus(v)
	if target != "" {
		f := v.Zones[target]
		stopped := !v.SlowSince.IsZero() && now.Sub(v.SlowSince) >= r.cfg.WaitingMinDwell
		if (f.Waiting || (f.Approach && stopped)) && try(vessel.StatusWaiting, target) {
			return Proposal{Status: vessel.StatusWaiting, BridgeID: target}
		}
	}
	for _, id := range r.flagged(v, func(f vessel.ZoneFlags) bool { return f.Waiting }) {
		if id == target {
			continue
		}
		if try(vessel.StatusWaiting, id) {
			return Proposal{Status: vessel.StatusWaiting, BridgeID: id}
		}
	}

	if target != "" {
		b, _ := r.registry.Get(target)
		if v.Zones[target].Approach &&
			v.SpeedKn > r.cfg.ApproachMinSpeedKn &&
			geo.IsHeadingTowards(v.Position(), v.CourseDeg, b.Point(), r.cfg.HeadingToleranceDeg) &&
			try(vessel.StatusApproaching, target) {
			return Proposal{Status: vessel.StatusApproaching, BridgeID: target}
		}
	}

	return Proposal{Status: vessel.StatusEnRoute, BridgeID: v.TargetBridge}
}

// focus is the bridge the waiting and approaching rules measure against:
// the target when one is assigned, otherwise the nearest openable bridge.
func (r *Resolver) focus(v *vessel.Vessel) string {
	if v.TargetBridge != "" {
		return v.TargetBridge
	}
	best := ""
	bestD := 0.0
	for _, b := range r.registry.Openable() {
		d, ok := v.Distances[b.ID]
		if !ok {
			continue
		}
		if best == "" || d < bestD {
			best, bestD = b.ID, d
		}
	}
	return best
}

// flagged returns the bridges whose flags satisfy pred, nearest first.
func (r *Resolver) flagged(v *vessel.Vessel, pred func(vessel.ZoneFlags) bool) []string {
	var ids []string
	for id, f := range v.Zones {
		if pred(f) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		di, dj := v.Distances[ids[i]], v.Distances[ids[j]]
		if di != dj {
			return di < dj
		}
		return ids[i] < ids[j]
	})
	return ids
}
