// Package lifecycle decides when a vessel's journey through the canal is
// complete.
package lifecycle

import (
	"github.com/banshee-data/canal.report/internal/bridges"
	"github.com/banshee-data/canal.report/internal/vessel"
)

// Verdict is the outcome of Evaluate.
type Verdict struct {
	Eliminate bool
	BridgeID  string            // the final openable bridge that was passed
	Direction bridges.Direction // direction the journey was judged in
}

// Manager applies the journey-completion rule. Staleness is not its
// concern; the store's removal deadlines cover that.
type Manager struct {
	registry *bridges.Registry
	infer    func(courseDeg float64) bridges.Direction
}

// NewManager creates a Manager. infer reads a direction off a course and is
// used when the passage itself carries none.
func NewManager(registry *bridges.Registry, infer func(courseDeg float64) bridges.Direction) *Manager {
	return &Manager{registry: registry, infer: infer}
}

// Evaluate reports whether v may be eliminated: it has no target and its
// last openable passage was the final openable bridge for its direction.
func (m *Manager) Evaluate(v *vessel.Vessel) Verdict {
	if v.TargetBridge != "" {
		return Verdict{}
	}
	rec, ok := m.lastOpenable(v)
	if !ok {
		return Verdict{}
	}
	dir := bridges.Direction(rec.Direction)
	if dir == bridges.DirectionUnknown && m.infer != nil {
		dir = m.infer(v.CourseDeg)
	}
	if dir == bridges.DirectionUnknown {
		return Verdict{}
	}
	final, ok := m.registry.FinalOpenable(dir)
	if !ok || final.ID != rec.BridgeID {
		return Verdict{}
	}
	return Verdict{Eliminate: true, BridgeID: final.ID, Direction: dir}
}

func (m *Manager) lastOpenable(v *vessel.Vessel) (vessel.PassageRecord, bool) {
	for i := len(v.RecentPassages) - 1; i >= 0; i-- {
		rec := v.RecentPassages[i]
		if b, ok := m.registry.Get(rec.BridgeID); ok && b.Openable() {
			return rec, true
		}
	}
	if b, ok := m.registry.Get(v.LastPassedBridge); ok && b.Openable() {
		return vessel.PassageRecord{BridgeID: b.ID, At: v.LastPassedTime}, true
	}
	return vessel.PassageRecord{}, false
}
