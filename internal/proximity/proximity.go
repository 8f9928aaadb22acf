// Package proximity measures a vessel against every bridge and derives how
// long the record may go without an update before it is considered stale.
package proximity

import (
	"time"

	"github.com/banshee-data/canal.report/internal/bridges"
	"github.com/banshee-data/canal.report/internal/config"
	"github.com/banshee-data/canal.report/internal/geo"
	"github.com/banshee-data/canal.report/internal/vessel"
)

// Config holds the distance bands and staleness timeouts.
type Config struct {
	ProtectionZoneM  float64       // at or inside: protection zone, longest timeout
	MidZoneM         float64       // at or inside: intermediate timeout
	NearTimeout      time.Duration // nearest bridge within ProtectionZoneM
	MidTimeout       time.Duration // nearest bridge within MidZoneM
	FarTimeout       time.Duration // everything further out
	WaitingTimeout   time.Duration // floor while waiting
	FastSpeedKn      float64       // above this the fast floor applies
	FastTimeout      time.Duration // floor for fast vessels
	PassedTimeoutMin time.Duration // floor after a passage, measured from the passage
}

// DefaultConfig returns proximity configuration loaded from the canonical
// tuning defaults file.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		ProtectionZoneM:  cfg.GetProtectionZoneM(),
		MidZoneM:         cfg.GetMidZoneM(),
		NearTimeout:      cfg.GetNearTimeout(),
		MidTimeout:       cfg.GetMidTimeout(),
		FarTimeout:       cfg.GetFarTimeout(),
		WaitingTimeout:   cfg.GetWaitingTimeoutMin(),
		FastSpeedKn:      cfg.GetFastSpeedKn(),
		FastTimeout:      cfg.GetFastTimeoutMin(),
		PassedTimeoutMin: cfg.GetPassedTimeoutMin(),
	}
}

// Result is the per-update proximity picture.
type Result struct {
	Distances    map[string]float64
	Nearest      bridges.Bridge
	NearestM     float64
	InProtection bool
}

// Analyzer is stateless apart from its configuration and bridge table.
type Analyzer struct {
	cfg      Config
	registry *bridges.Registry
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(cfg Config, registry *bridges.Registry) *Analyzer {
	return &Analyzer{cfg: cfg, registry: registry}
}

// Analyze measures p against every bridge.
func (a *Analyzer) Analyze(p geo.Point) Result {
	all := a.registry.Ordered()
	res := Result{Distances: make(map[string]float64, len(all))}
	for i, b := range all {
		d := geo.Distance(p, b.Point())
		res.Distances[b.ID] = d
		if i == 0 || d < res.NearestM {
			res.Nearest = b
			res.NearestM = d
		}
	}
	res.InProtection = res.NearestM <= a.cfg.ProtectionZoneM
	return res
}

// Apply copies r into the vessel record and tracks protection-zone entry.
func (a *Analyzer) Apply(v *vessel.Vessel, r Result) {
	v.Distances = r.Distances
	v.NearestBridge = r.Nearest.ID
	v.NearestM = r.NearestM
	switch {
	case r.InProtection && v.ProtectionEnteredAt.IsZero():
		v.ProtectionEnteredAt = v.LastUpdate
	case !r.InProtection:
		v.ProtectionEnteredAt = time.Time{}
	}
}

// Timeout returns how long after its last update the vessel may go silent
// before removal, given its current status and speed.
func (a *Analyzer) Timeout(nearestM float64, status vessel.Status, speedKn float64) time.Duration {
	var timeout time.Duration
	switch {
	case nearestM <= a.cfg.ProtectionZoneM:
		timeout = a.cfg.NearTimeout
	case nearestM <= a.cfg.MidZoneM:
		timeout = a.cfg.MidTimeout
	default:
		timeout = a.cfg.FarTimeout
	}
	if status == vessel.StatusWaiting && timeout < a.cfg.WaitingTimeout {
		timeout = a.cfg.WaitingTimeout
	}
	if speedKn > a.cfg.FastSpeedKn && timeout < a.cfg.FastTimeout {
		timeout = a.cfg.FastTimeout
	}
	return timeout
}

// RemovalDeadline is the instant the vessel becomes stale. A passed vessel
// is never removed sooner than PassedTimeoutMin after its passage,
// whatever its distance.
func (a *Analyzer) RemovalDeadline(v *vessel.Vessel) time.Time {
	deadline := v.LastUpdate.Add(a.Timeout(v.NearestM, v.Status, v.SpeedKn))
	if v.Status == vessel.StatusPassed && !v.LastPassedTime.IsZero() {
		if floor := v.LastPassedTime.Add(a.cfg.PassedTimeoutMin); deadline.Before(floor) {
			deadline = floor
		}
	}
	return deadline
}
