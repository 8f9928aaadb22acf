package passage

import (
	"sort"
	"time"

	"github.com/banshee-data/canal.report/internal/bridges"
	"github.com/banshee-data/canal.report/internal/vessel"
)

// Latch blocks pre-passage statuses for one vessel and bridge after a
// confirmed passage, so a late or reordered fix cannot make the vessel look
// as if it were still on the near side.
type Latch struct {
	VesselID  string            `json:"vessel_id"`
	BridgeID  string            `json:"bridge_id"`
	Direction bridges.Direction `json:"direction,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Vetoed    []vessel.Status   `json:"vetoed"`
}

func (l Latch) vetoes(s vessel.Status) bool {
	for _, v := range l.Vetoed {
		if v == s {
			return true
		}
	}
	return false
}

// Latches is the set of live latches. A latch is active from registration
// until Lifetime has passed; Vetoes checks the age itself, so a late Expire
// sweep never lets a stale latch veto anything.
type Latches struct {
	lifetime time.Duration
	byVessel map[string]map[string]Latch
}

// NewLatches creates an empty latch set.
func NewLatches(lifetime time.Duration) *Latches {
	return &Latches{lifetime: lifetime, byVessel: make(map[string]map[string]Latch)}
}

// Register latches vesselID at bridgeID from at. Re-registering refreshes
// the latch.
func (l *Latches) Register(vesselID, bridgeID string, dir bridges.Direction, at time.Time) Latch {
	latch := Latch{
		VesselID:  vesselID,
		BridgeID:  bridgeID,
		Direction: dir,
		CreatedAt: at,
		Vetoed:    []vessel.Status{vessel.StatusApproaching, vessel.StatusWaiting},
	}
	m, ok := l.byVessel[vesselID]
	if !ok {
		m = make(map[string]Latch)
		l.byVessel[vesselID] = m
	}
	m[bridgeID] = latch
	return latch
}

// Vetoes implements status.Vetoer.
func (l *Latches) Vetoes(vesselID, bridgeID string, s vessel.Status, now time.Time) bool {
	latch, ok := l.byVessel[vesselID][bridgeID]
	if !ok || now.Sub(latch.CreatedAt) >= l.lifetime {
		return false
	}
	return latch.vetoes(s)
}

// Active reports whether a live latch exists for the pair.
func (l *Latches) Active(vesselID, bridgeID string, now time.Time) bool {
	latch, ok := l.byVessel[vesselID][bridgeID]
	return ok && now.Sub(latch.CreatedAt) < l.lifetime
}

// ClearVessel drops every latch of a vessel and returns how many there were.
func (l *Latches) ClearVessel(vesselID string) int {
	n := len(l.byVessel[vesselID])
	delete(l.byVessel, vesselID)
	return n
}

// Expire drops latches older than the lifetime and returns how many went.
func (l *Latches) Expire(now time.Time) int {
	n := 0
	for vid, m := range l.byVessel {
		for bid, latch := range m {
			if now.Sub(latch.CreatedAt) >= l.lifetime {
				delete(m, bid)
				n++
			}
		}
		if len(m) == 0 {
			delete(l.byVessel, vid)
		}
	}
	return n
}

// Len returns the number of latches held, expired or not.
func (l *Latches) Len() int {
	n := 0
	for _, m := range l.byVessel {
		n += len(m)
	}
	return n
}

// List returns every latch ordered by vessel then bridge.
func (l *Latches) List() []Latch {
	var out []Latch
	for _, m := range l.byVessel {
		for _, latch := range m {
			out = append(out, latch)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VesselID != out[j].VesselID {
			return out[i].VesselID < out[j].VesselID
		}
		return out[i].BridgeID < out[j].BridgeID
	})
	return out
}
