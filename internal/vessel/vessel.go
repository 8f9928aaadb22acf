// Package vessel owns the live vessel records. Every other component gets a
// *Vessel for the duration of one processing pass and never keeps it.
package vessel

import (
	"time"

	"github.com/banshee-data/canal.report/internal/geo"
	"gonum.org/v1/gonum/stat"
)

// Status is a vessel's relationship to a bridge.
type Status string

const (
	StatusEnRoute     Status = "en-route"
	StatusApproaching Status = "approaching"
	StatusWaiting     Status = "waiting"
	StatusUnderBridge Status = "under-bridge"
	StatusPassed      Status = "passed"
)

// Priority orders statuses for resolution and display; higher wins.
func (s Status) Priority() int {
	switch s {
	case StatusPassed:
		return 4
	case StatusUnderBridge:
		return 3
	case StatusWaiting:
		return 2
	case StatusApproaching:
		return 1
	default:
		return 0
	}
}

// PrePassage reports whether s describes a vessel that has not yet passed
// its bridge. These are the statuses a passage latch vetoes.
func (s Status) PrePassage() bool {
	return s == StatusApproaching || s == StatusWaiting
}

// Report is one position fix from the feed.
type Report struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	SOG       float64   `json:"sog"` // knots
	COG       float64   `json:"cog"` // degrees true
	Timestamp time.Time `json:"timestamp"`
}

// ZoneFlags is the per-bridge hysteresis memory. A flag is set when the
// vessel comes within the zone's set distance and stays set until the
// vessel is beyond the clear distance.
type ZoneFlags struct {
	Approach bool `json:"approach"`
	Waiting  bool `json:"waiting"`
	Under    bool `json:"under"`
}

// PassageRecord is one accepted passage in the vessel's short history.
type PassageRecord struct {
	BridgeID  string    `json:"bridge_id"`
	At        time.Time `json:"at"`
	Direction string    `json:"direction,omitempty"`
}

// Scratch is the closest-approach state tracked against the current target.
type Scratch struct {
	BridgeID        string
	ClosestM        float64
	PrevDistanceM   float64
	ApproachBearing float64
	Valid           bool
	Rejected        bool // a closest-approach passage here was refused; wait for a new target
}

// Vessel is the live record for one vessel id.
type Vessel struct {
	// Identity
	ID string

	// Kinematics
	Lat          float64
	Lon          float64
	SpeedKn      float64
	CourseDeg    float64
	LastUpdate   time.Time
	LastSeen     time.Time // arrival of the last accepted report on the engine clock
	LastMovement time.Time
	HasPrev      bool
	PrevLat      float64
	PrevLon      float64
	PrevSpeedKn  float64
	PrevUpdate   time.Time
	SlowSince    time.Time // start of the current below-waiting-speed run, zero when moving
	SpeedSamples []float64 // most recent last, bounded

	// Routing
	TargetBridge     string
	LastPassedBridge string
	LastPassedTime   time.Time
	RecentPassages   []PassageRecord // bounded, oldest first

	// Status
	Status       Status
	StatusBridge string
	Confidence   float64
	Zones        map[string]ZoneFlags

	// Proximity, refreshed on every update
	Distances     map[string]float64
	NearestBridge string
	NearestM      float64
	NearNotified  map[string]bool // near-zone entry already announced per bridge

	// Passage scratch
	Scratch Scratch

	// Lifecycle
	FirstSeen           time.Time
	RemovalAt           time.Time
	ProtectionEnteredAt time.Time

	// Per-update position quality
	GPSJump   bool
	Uncertain bool
	JumpM     float64
}

func newVessel(id string, r Report) *Vessel {
	return &Vessel{
		ID:           id,
		Lat:          r.Lat,
		Lon:          r.Lon,
		SpeedKn:      r.SOG,
		CourseDeg:    r.COG,
		LastUpdate:   r.Timestamp,
		LastSeen:     r.Timestamp,
		LastMovement: r.Timestamp,
		FirstSeen:    r.Timestamp,
		Status:       StatusEnRoute,
		Confidence:   1.0,
		Zones:        make(map[string]ZoneFlags),
		Distances:    make(map[string]float64),
		NearNotified: make(map[string]bool),
	}
}

// Position returns the current fix.
func (v *Vessel) Position() geo.Point { return geo.Point{Lat: v.Lat, Lon: v.Lon} }

// PrevPosition returns the previous fix, or the current one for a vessel
// seen only once.
func (v *Vessel) PrevPosition() geo.Point {
	if !v.HasPrev {
		return v.Position()
	}
	return geo.Point{Lat: v.PrevLat, Lon: v.PrevLon}
}

// MeanSpeedKn smooths the recent speed samples for ETA estimates.
func (v *Vessel) MeanSpeedKn() float64 {
	if len(v.SpeedSamples) == 0 {
		return v.SpeedKn
	}
	return stat.Mean(v.SpeedSamples, nil)
}

// ClearScratch drops the closest-approach state.
func (v *Vessel) ClearScratch() { v.Scratch = Scratch{} }

// RecordPassage updates the last-passed fields and the bounded recent list.
func (v *Vessel) RecordPassage(bridgeID string, at time.Time, direction string, limit int) {
	v.LastPassedBridge = bridgeID
	v.LastPassedTime = at
	v.RecentPassages = append(v.RecentPassages, PassageRecord{BridgeID: bridgeID, At: at, Direction: direction})
	if limit > 0 && len(v.RecentPassages) > limit {
		v.RecentPassages = append([]PassageRecord(nil), v.RecentPassages[len(v.RecentPassages)-limit:]...)
	}
}

// View is the read-only projection of a vessel handed to HTTP readers and
// the text composer.
type View struct {
	ID                string          `json:"id"`
	Lat               float64         `json:"lat"`
	Lon               float64         `json:"lon"`
	SpeedKn           float64         `json:"speed_kn"`
	CourseDeg         float64         `json:"course_deg"`
	Status            Status          `json:"status"`
	StatusBridge      string          `json:"status_bridge,omitempty"`
	TargetBridge      string          `json:"target_bridge,omitempty"`
	LastPassedBridge  string          `json:"last_passed_bridge,omitempty"`
	LastPassedTime    time.Time       `json:"last_passed_time,omitempty"`
	RecentPassages    []PassageRecord `json:"recent_passages,omitempty"`
	Confidence        float64         `json:"confidence"`
	NearestBridge     string          `json:"nearest_bridge"`
	NearestM          float64         `json:"nearest_m"`
	DistanceToTargetM *float64        `json:"distance_to_target_m,omitempty"`
	ETAMinutes        *float64        `json:"eta_minutes,omitempty"`
	FirstSeen         time.Time       `json:"first_seen"`
	LastUpdate        time.Time       `json:"last_update"`
	RemovalAt         time.Time       `json:"removal_at,omitempty"`
}
