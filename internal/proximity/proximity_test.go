package proximity

import (
	"testing"
	"time"

	"github.com/banshee-data/canal.report/internal/bridges"
	"github.com/banshee-data/canal.report/internal/geo"
	"github.com/banshee-data/canal.report/internal/vessel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestAnalyzer(t *testing.T) (*Analyzer, *bridges.Registry) {
	t.Helper()
	reg := bridges.DefaultRegistry()
	return NewAnalyzer(DefaultConfig(), reg), reg
}

func TestAnalyze(t *testing.T) {
	t.Parallel()
	a, reg := newTestAnalyzer(t)

	klaff, _ := reg.Get("klaffbron")
	p := geo.Offset(klaff.Point(), 205, 250)
	res := a.Analyze(p)

	require.Len(t, res.Distances, 5)
	assert.Equal(t, "klaffbron", res.Nearest.ID)
	assert.InDelta(t, 250, res.NearestM, 0.5)
	assert.True(t, res.InProtection)
	assert.Greater(t, res.Distances["stallbackabron"], res.Distances["stridsbergsbron"])

	far := a.Analyze(geo.Offset(klaff.Point(), 290, 800))
	assert.False(t, far.InProtection)
}

func TestApplyTracksProtectionEntry(t *testing.T) {
	t.Parallel()
	a, reg := newTestAnalyzer(t)
	klaff, _ := reg.Get("klaffbron")

	v := &vessel.Vessel{ID: "a", LastUpdate: t0}
	a.Apply(v, a.Analyze(geo.Offset(klaff.Point(), 205, 250)))
	assert.Equal(t, t0, v.ProtectionEnteredAt)
	assert.Equal(t, "klaffbron", v.NearestBridge)

	v.LastUpdate = t0.Add(time.Minute)
	a.Apply(v, a.Analyze(geo.Offset(klaff.Point(), 205, 200)))
	assert.Equal(t, t0, v.ProtectionEnteredAt, "entry time is kept while inside")

	a.Apply(v, a.Analyze(geo.Offset(klaff.Point(), 290, 900)))
	assert.True(t, v.ProtectionEnteredAt.IsZero())
}

func TestTimeout(t *testing.T) {
	t.Parallel()
	a, _ := newTestAnalyzer(t)

	tests := []struct {
		name     string
		nearestM float64
		status   vessel.Status
		speedKn  float64
		want     time.Duration
	}{
		{"protection zone", 300, vessel.StatusApproaching, 3, 20 * time.Minute},
		{"mid zone", 450, vessel.StatusEnRoute, 3, 10 * time.Minute},
		{"far", 2000, vessel.StatusEnRoute, 3, 2 * time.Minute},
		{"far but fast", 2000, vessel.StatusEnRoute, 6, 5 * time.Minute},
		{"far but waiting", 2000, vessel.StatusWaiting, 0, 20 * time.Minute},
		{"fast inside protection keeps the longer timeout", 100, vessel.StatusEnRoute, 8, 20 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Timeout(tt.nearestM, tt.status, tt.speedKn))
		})
	}
}

func TestRemovalDeadlinePassedFloor(t *testing.T) {
	t.Parallel()
	a, _ := newTestAnalyzer(t)

	// Far away and slow: 2 min timeout from the last update.
	v := &vessel.Vessel{
		ID:             "a",
		LastUpdate:     t0,
		NearestM:       2000,
		SpeedKn:        3,
		Status:         vessel.StatusPassed,
		LastPassedTime: t0.Add(90 * time.Second),
	}
	assert.Equal(t, t0.Add(155*time.Second), a.RemovalDeadline(v))

	v.Status = vessel.StatusEnRoute
	assert.Equal(t, t0.Add(2*time.Minute), a.RemovalDeadline(v))
}
