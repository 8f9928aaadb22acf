package passage

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

// track feeds fixes to a vessel the way the store and proximity pass do.
type track struct {
	reg *bridges.Registry
	v   *vessel.Vessel
}

func newTrack(reg *bridges.Registry, target string) *track {
	return &track{reg: reg, v: &vessel.Vessel{
		ID:           "265123000",
		TargetBridge: target,
		Distances:    make(map[string]float64),
	}}
}

func (tr *track) fix(p geo.Point, sog, cog float64, at time.Time) *vessel.Vessel {
	v := tr.v
	if !v.LastUpdate.IsZero() {
		v.HasPrev = true
		v.PrevLat, v.PrevLon = v.Lat, v.Lon
	}
	v.Lat, v.Lon = p.Lat, p.Lon
	v.SpeedKn, v.CourseDeg = sog, cog
	v.LastUpdate = at
	for _, b := range tr.reg.Ordered() {
		v.Distances[b.ID] = geo.Distance(p, b.Point())
	}
	return v
}

// along returns a point s metres along the bridge axis (negative: south of
// the bridge line) and lateral metres to the east of it.
func along(b bridges.Bridge, s, lateral float64) geo.Point {
	p := b.Point()
	if s != 0 {
		brg := b.AxisBearingDeg
		if s < 0 {
			brg += 180
			s = -s
		}
		p = geo.Offset(p, brg, s)
	}
	if lateral != 0 {
		p = geo.Offset(p, b.AxisBearingDeg+90, lateral)
	}
	return p
}

// ----

func TestLineCrossingOnTarget(t *testing.T) {
	t.Parallel()
	reg := bridges.DefaultRegistry()
	d := NewDetector(DefaultConfig(), reg)
	klaff, _ := reg.Get("klaffbron")

	tr := newTrack(reg, "klaffbron")
	var got []Detection
	for i, s := range []float64{-200, -100, -40, 30} {
		got = d.Evaluate(tr.fix(along(klaff, s, 0), 5, klaff.AxisBearingDeg, t0.Add(time.Duration(i)*20*time.Second)))
	}
	require.Len(t, got, 1)
	assert.Equal(t, "klaffbron", got[0].BridgeID)
	assert.True(t, got[0].IsTarget)
	assert.True(t, got[0].Has(TriggerLineCrossing))
	assert.False(t, got[0].Has(TriggerClosestApproach), "still closing on the bridge")
	assert.Equal(t, bridges.Northbound, got[0].Direction)
	require.NotNil(t, got[0].CrossingM)
	assert.Less(t, *got[0].CrossingM, 1.0)
}

func TestClosestApproachWithoutLineCrossing(t *testing.T) {
	t.Parallel()
	reg := bridges.DefaultRegistry()
	cfg := DefaultConfig()
	cfg.LineCrossingProximityM = 100 // the track below passes 120 m abeam
	d := NewDetector(cfg, reg)
	klaff, _ := reg.Get("klaffbron")

	tr := newTrack(reg, "klaffbron")
	steps := []float64{-300, -150, -50, 0, 60, 150}
	var results [][]Detection
	for i, s := range steps {
		results = append(results, d.Evaluate(tr.fix(along(klaff, s, 120), 5, klaff.AxisBearingDeg, t0.Add(time.Duration(i)*30*time.Second))))
	}
	for i := 0; i < len(steps)-1; i++ {
		assert.Empty(t, results[i], "no passage at step %d", i)
	}
	last := results[len(results)-1]
	require.Len(t, last, 1)
	assert.Equal(t, []Trigger{TriggerClosestApproach}, last[0].Triggers)
	assert.InDelta(t, 120, last[0].ClosestM, 1)
	assert.Equal(t, bridges.Northbound, last[0].Direction, "approached from the south")
}

func TestClosestApproachDirectionAfterReversal(t *testing.T) {
	t.Parallel()
	reg := bridges.DefaultRegistry()
	d := NewDetector(DefaultConfig(), reg)
	klaff, _ := reg.Get("klaffbron")

	tr := newTrack(reg, "klaffbron")
	at := t0
	for _, s := range []float64{-300, -150, -40} {
		require.Empty(t, d.Evaluate(tr.fix(along(klaff, s, 0), 5, klaff.AxisBearingDeg, at)))
		at = at.Add(30 * time.Second)
	}
	// Turned round short of the bridge line and heading back south.
	got := d.Evaluate(tr.fix(along(klaff, -80, 0), 5, klaff.AxisBearingDeg+180, at))
	require.Len(t, got, 1)
	assert.Equal(t, []Trigger{TriggerClosestApproach}, got[0].Triggers)
	assert.Nil(t, got[0].CrossingM)
	assert.Equal(t, bridges.Northbound, got[0].Direction, "direction of the approach, not the current course")

	south := newTrack(reg, "klaffbron")
	at = t0
	for _, s := range []float64{300, 150, 40} {
		d.Evaluate(south.fix(along(klaff, s, 0), 5, klaff.AxisBearingDeg+180, at))
		at = at.Add(30 * time.Second)
	}
	got = d.Evaluate(south.fix(along(klaff, 80, 0), 5, klaff.AxisBearingDeg, at))
	require.Len(t, got, 1)
	assert.Equal(t, bridges.Southbound, got[0].Direction)
}

func TestClosestApproachNeedsSpeed(t *testing.T) {
	t.Parallel()
	reg := bridges.DefaultRegistry()
	cfg := DefaultConfig()
	cfg.LineCrossingProximityM = 100
	d := NewDetector(cfg, reg)
	klaff, _ := reg.Get("klaffbron")

	tr := newTrack(reg, "klaffbron")
	var last []Detection
	for i, s := range []float64{-300, -150, 0, 150} {
		sog := 5.0
		if s == 150 {
			sog = 0.3
		}
		last = d.Evaluate(tr.fix(along(klaff, s, 120), sog, klaff.AxisBearingDeg, t0.Add(time.Duration(i)*30*time.Second)))
	}
	assert.Empty(t, last)
}

func TestNonTargetBridgeLineCrossingOnly(t *testing.T) {
	t.Parallel()
	reg := bridges.DefaultRegistry()
	d := NewDetector(DefaultConfig(), reg)
	jarn, _ := reg.Get("jarnvagsbron")

	tr := newTrack(reg, "stridsbergsbron")
	d.Evaluate(tr.fix(along(jarn, -60, 0), 4, jarn.AxisBearingDeg, t0))
	got := d.Evaluate(tr.fix(along(jarn, 40, 0), 4, jarn.AxisBearingDeg, t0.Add(30*time.Second)))
	require.Len(t, got, 1)
	assert.Equal(t, "jarnvagsbron", got[0].BridgeID)
	assert.False(t, got[0].IsTarget)
	assert.Equal(t, []Trigger{TriggerLineCrossing}, got[0].Triggers)
}

func TestSparseSegmentCrossingTwoBridgesInOrder(t *testing.T) {
	t.Parallel()
	reg := bridges.DefaultRegistry()
	d := NewDetector(DefaultConfig(), reg)
	jarn, _ := reg.Get("jarnvagsbron")
	strid, _ := reg.Get("stridsbergsbron")

	tr := newTrack(reg, "stridsbergsbron")
	d.Evaluate(tr.fix(along(jarn, -80, 0), 6, 32, t0))
	got := d.Evaluate(tr.fix(along(strid, 80, 0), 6, 32, t0.Add(time.Minute)))
	require.Len(t, got, 2)
	assert.Equal(t, "jarnvagsbron", got[0].BridgeID)
	assert.Equal(t, "stridsbergsbron", got[1].BridgeID)
	assert.True(t, got[1].IsTarget)
}

func TestFarCrossingIgnored(t *testing.T) {
	t.Parallel()
	reg := bridges.DefaultRegistry()
	d := NewDetector(DefaultConfig(), reg)
	klaff, _ := reg.Get("klaffbron")

	tr := newTrack(reg, "")
	d.Evaluate(tr.fix(along(klaff, -50, 400), 5, klaff.AxisBearingDeg, t0))
	assert.Empty(t, d.Evaluate(tr.fix(along(klaff, 50, 400), 5, klaff.AxisBearingDeg, t0.Add(30*time.Second))))
}

func TestJitterIsNotAPassage(t *testing.T) {
	t.Parallel()
	reg := bridges.DefaultRegistry()
	d := NewDetector(DefaultConfig(), reg)
	klaff, _ := reg.Get("klaffbron")

	tr := newTrack(reg, "klaffbron")
	d.Evaluate(tr.fix(along(klaff, -3, 0), 0.1, klaff.AxisBearingDeg, t0))
	assert.Empty(t, d.Evaluate(tr.fix(along(klaff, 3, 0), 0.1, klaff.AxisBearingDeg, t0.Add(30*time.Second))), "6 m of jitter across the line")
}

func TestGPSJumpIsNotAPassage(t *testing.T) {
	t.Parallel()
	reg := bridges.DefaultRegistry()
	d := NewDetector(DefaultConfig(), reg)
	klaff, _ := reg.Get("klaffbron")

	tr := newTrack(reg, "klaffbron")
	d.Evaluate(tr.fix(along(klaff, -40, 0), 5, klaff.AxisBearingDeg, t0))
	v := tr.fix(along(klaff, 40, 0), 5, klaff.AxisBearingDeg, t0.Add(30*time.Second))
	v.GPSJump = true
	assert.Empty(t, d.Evaluate(v))
}

func TestScratchFollowsTarget(t *testing.T) {
	t.Parallel()
	reg := bridges.DefaultRegistry()
	d := NewDetector(DefaultConfig(), reg)
	klaff, _ := reg.Get("klaffbron")

	tr := newTrack(reg, "klaffbron")
	v := tr.fix(along(klaff, -300, 0), 5, klaff.AxisBearingDeg, t0)
	d.Evaluate(v)
	require.True(t, v.Scratch.Valid)
	assert.Equal(t, "klaffbron", v.Scratch.BridgeID)
	assert.InDelta(t, klaff.AxisBearingDeg, v.Scratch.ApproachBearing, 0.5)

	d.Evaluate(tr.fix(along(klaff, -200, 0), 5, klaff.AxisBearingDeg, t0.Add(30*time.Second)))
	assert.InDelta(t, 200, v.Scratch.ClosestM, 0.5)

	v.TargetBridge = "stridsbergsbron"
	d.Evaluate(tr.fix(along(klaff, -150, 0), 5, klaff.AxisBearingDeg, t0.Add(time.Minute)))
	assert.Equal(t, "stridsbergsbron", v.Scratch.BridgeID)

	v.TargetBridge = ""
	d.Evaluate(tr.fix(along(klaff, -100, 0), 5, klaff.AxisBearingDeg, t0.Add(90*time.Second)))
	assert.False(t, v.Scratch.Valid)
}

func TestClearsLatches(t *testing.T) {
	t.Parallel()
	d := NewDetector(DefaultConfig(), bridges.DefaultRegistry())
	assert.False(t, d.ClearsLatches(&vessel.Vessel{GPSJump: true, JumpM: 700}))
	assert.True(t, d.ClearsLatches(&vessel.Vessel{GPSJump: true, JumpM: 1200}))
	assert.False(t, d.ClearsLatches(&vessel.Vessel{JumpM: 1200}))
}

// ----

func TestLatchVetoesPrePassageStatuses(t *testing.T) {
	t.Parallel()
	l := NewLatches(10 * time.Minute)
	l.Register("a", "klaffbron", bridges.Northbound, t0)

	assert.True(t, l.Vetoes("a", "klaffbron", vessel.StatusApproaching, t0))
	assert.True(t, l.Vetoes("a", "klaffbron", vessel.StatusWaiting, t0.Add(time.Minute)))
	assert.False(t, l.Vetoes("a", "klaffbron", vessel.StatusUnderBridge, t0))
	assert.False(t, l.Vetoes("a", "klaffbron", vessel.StatusPassed, t0))
	assert.False(t, l.Vetoes("a", "klaffbron", vessel.StatusEnRoute, t0))
	assert.False(t, l.Vetoes("a", "stridsbergsbron", vessel.StatusWaiting, t0))
	assert.False(t, l.Vetoes("b", "klaffbron", vessel.StatusWaiting, t0))
}

func TestLatchMonotonicity(t *testing.T) {
	t.Parallel()
	l := NewLatches(10 * time.Minute)
	l.Register("a", "klaffbron", bridges.Northbound, t0)

	for s := time.Duration(0); s < 10*time.Minute; s += 15 * time.Second {
		now := t0.Add(s)
		for _, st := range []vessel.Status{vessel.StatusApproaching, vessel.StatusWaiting} {
			require.True(t, l.Vetoes("a", "klaffbron", st, now), "%s surfaced %v after passage", st, s)
		}
		// Expiry sweeps inside the lifetime never drop the latch.
		l.Expire(now)
	}
	assert.False(t, l.Vetoes("a", "klaffbron", vessel.StatusWaiting, t0.Add(10*time.Minute)))
}

func TestLatchExpireAndClear(t *testing.T) {
	t.Parallel()
	l := NewLatches(10 * time.Minute)
	l.Register("a", "klaffbron", bridges.Northbound, t0)
	l.Register("a", "jarnvagsbron", bridges.Northbound, t0.Add(5*time.Minute))
	l.Register("b", "stridsbergsbron", bridges.Southbound, t0)
	require.Equal(t, 3, l.Len())

	assert.Equal(t, 2, l.Expire(t0.Add(11*time.Minute)))
	assert.Equal(t, 1, l.Len())
	assert.True(t, l.Active("a", "jarnvagsbron", t0.Add(11*time.Minute)))

	assert.Equal(t, 1, l.ClearVessel("a"))
	assert.Equal(t, 0, l.Len())
	assert.Equal(t, 0, l.ClearVessel("a"))
}

func TestLatchRegisterRefreshes(t *testing.T) {
	t.Parallel()
	l := NewLatches(10 * time.Minute)
	l.Register("a", "klaffbron", bridges.Northbound, t0)
	l.Register("a", "klaffbron", bridges.Northbound, t0.Add(8*time.Minute))
	assert.True(t, l.Vetoes("a", "klaffbron", vessel.StatusWaiting, t0.Add(15*time.Minute)))

	list := l.List()
	require.Len(t, list, 1)
	assert.Equal(t, t0.Add(8*time.Minute), list[0].CreatedAt)
}
