package engine

import (
	"time"

	"github.com/banshee-data/canal.report/internal/config"
	"github.com/banshee-data/canal.report/internal/passage"
	"github.com/banshee-data/canal.report/internal/proximity"
	"github.com/banshee-data/canal.report/internal/route"
	"github.com/banshee-data/canal.report/internal/status"
	"github.com/banshee-data/canal.report/internal/vessel"
)

// Config gathers the configuration of every component the engine drives.
type Config struct {
	Store      vessel.StoreConfig
	Proximity  proximity.Config
	Resolver   status.ResolverConfig
	Stabilizer status.StabilizerConfig
	Passage    passage.Config
	Route      route.Config

	TargetReassignDistanceM float64 // a target this far behind is dropped
	DirectionMinSpeedKn     float64 // course is read as a direction only above this
	RecentPassagesMax       int
	NearZoneEventDistanceM  float64

	LatchSweepInterval time.Duration
	RoutePruneInterval time.Duration
	StaleSweepInterval time.Duration
	TextDebounce       time.Duration

	SubscriberBuffer int
	InboxSize        int
}

// DefaultConfig returns engine configuration loaded from the canonical
// tuning defaults file.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Store:                   vessel.StoreConfigFromTuning(cfg),
		Proximity:               proximity.ConfigFromTuning(cfg),
		Resolver:                status.ResolverConfigFromTuning(cfg),
		Stabilizer:              status.StabilizerConfigFromTuning(cfg),
		Passage:                 passage.ConfigFromTuning(cfg),
		Route:                   route.ConfigFromTuning(cfg),
		TargetReassignDistanceM: cfg.GetTargetReassignDistanceM(),
		DirectionMinSpeedKn:     cfg.GetDirectionMinSpeedKn(),
		RecentPassagesMax:       cfg.GetRecentPassagesMax(),
		NearZoneEventDistanceM:  cfg.GetNearZoneEventDistanceM(),
		LatchSweepInterval:      cfg.GetLatchSweepInterval(),
		RoutePruneInterval:      cfg.GetRoutePruneInterval(),
		StaleSweepInterval:      cfg.GetStaleSweepInterval(),
		TextDebounce:            cfg.GetTextDebounce(),
		SubscriberBuffer:        64,
		InboxSize:               256,
	}
}
