package engine

import (
	"time"

	"github.com/banshee-data/canal.report/internal/bridges"
	"github.com/banshee-data/canal.report/internal/passage"
	"github.com/banshee-data/canal.report/internal/route"
	"github.com/google/uuid"
)

// EventKind names an outbound event.
type EventKind string

const (
	EventNearZoneEntry     EventKind = "near-zone-entry"
	EventPassageConfirmed  EventKind = "passage-confirmed"
	EventPassageRejected   EventKind = "passage-rejected"
	EventJourneyCompleted  EventKind = "journey-completed"
	EventVesselRemoved     EventKind = "vessel-removed"
	EventBridgeTextChanged EventKind = "bridge-text-changed"
)

// Removal reasons carried by EventVesselRemoved.
const (
	RemovedStale     = "stale"
	RemovedCompleted = "journey-completed"
)

// Event is one discrete change published to subscribers. Only the fields
// relevant to Kind are set.
type Event struct {
	ID         string    `json:"id"`
	Kind       EventKind `json:"kind"`
	At         time.Time `json:"at"`
	VesselID   string    `json:"vessel_id,omitempty"`
	BridgeID   string    `json:"bridge_id,omitempty"`
	BridgeName string    `json:"bridge_name,omitempty"`

	// Near-zone entry
	DistanceM  float64  `json:"distance_m,omitempty"`
	ETAMinutes *float64 `json:"eta_minutes,omitempty"`

	// Passage
	Direction    bridges.Direction `json:"direction,omitempty"`
	Triggers     []passage.Trigger `json:"triggers,omitempty"`
	ClosestM     float64           `json:"closest_m,omitempty"`
	CrossingM    *float64          `json:"crossing_m,omitempty"`
	Verdict      route.Reason      `json:"verdict,omitempty"`
	TargetBridge string            `json:"target_bridge,omitempty"` // target after the passage

	// Removal
	Reason string `json:"reason,omitempty"`

	// Bridge text
	Text string `json:"text,omitempty"`
}

func newEvent(kind EventKind, at time.Time) Event {
	return Event{ID: uuid.NewString(), Kind: kind, At: at}
}
