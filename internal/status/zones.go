package status

import "github.com/banshee-data/canal.report/internal/vessel"

// Band is one zone boundary with independent set and clear distances.
// Entering requires d <= SetM; leaving requires d >= ClearM. In between the
// previous state is kept, which is what stops flapping at the edge.
type Band struct {
	SetM   float64
	ClearM float64
}

// Update returns the new membership given the previous one and a distance.
func (b Band) Update(active bool, d float64) bool {
	if active {
		return d < b.ClearM
	}
	return d <= b.SetM
}

// Zones groups the three bands of a bridge.
type Zones struct {
	Approach Band
	Waiting  Band
	Under    Band
}

// Update advances one bridge's flags.
func (z Zones) Update(f vessel.ZoneFlags, d float64) vessel.ZoneFlags {
	return vessel.ZoneFlags{
		Approach: z.Approach.Update(f.Approach, d),
		Waiting:  z.Waiting.Update(f.Waiting, d),
		Under:    z.Under.Update(f.Under, d),
	}
}
