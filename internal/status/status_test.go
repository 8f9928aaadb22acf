package status

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

// place builds a vessel at p with distances to every bridge filled in, the
// way the proximity pass leaves it.
func place(reg *bridges.Registry, p geo.Point, sog, cog float64, at time.Time) *vessel.Vessel {
	v := &vessel.Vessel{
		ID:         "265123000",
		Lat:        p.Lat,
		Lon:        p.Lon,
		SpeedKn:    sog,
		CourseDeg:  cog,
		LastUpdate: at,
		Zones:      make(map[string]vessel.ZoneFlags),
		Distances:  make(map[string]float64),
	}
	for _, b := range reg.Ordered() {
		v.Distances[b.ID] = geo.Distance(p, b.Point())
	}
	return v
}

type vetoSet map[vessel.Status]bool

func (vs vetoSet) Vetoes(_, _ string, s vessel.Status, _ time.Time) bool { return vs[s] }

// ----

func TestBandHysteresisNoFlap(t *testing.T) {
	t.Parallel()
	under := Band{SetM: 50, ClearM: 70}

	seq := []float64{45, 55, 65, 75, 65, 45}
	active := under.Update(false, seq[0])
	require.True(t, active)

	sets, clears := 0, 0
	for _, d := range seq[1:] {
		next := under.Update(active, d)
		switch {
		case next && !active:
			sets++
		case !next && active:
			clears++
		}
		active = next
	}
	assert.Equal(t, 1, sets)
	assert.Equal(t, 1, clears)
}

func TestBandOscillationInsideDeadZone(t *testing.T) {
	t.Parallel()
	approach := Band{SetM: 450, ClearM: 550}

	active := false
	var got []bool
	for _, d := range []float64{600, 500, 440, 500, 540, 500, 560, 500, 449} {
		active = approach.Update(active, d)
		got = append(got, active)
	}
	assert.Equal(t, []bool{false, false, true, true, true, true, false, false, true}, got)
}

func TestZonesUpdate(t *testing.T) {
	t.Parallel()
	z := DefaultResolverConfig().Zones
	f := z.Update(vessel.ZoneFlags{}, 40)
	assert.Equal(t, vessel.ZoneFlags{Approach: true, Waiting: true, Under: true}, f)

	f = z.Update(f, 300)
	assert.Equal(t, vessel.ZoneFlags{Approach: true, Waiting: true, Under: false}, f)
}

// ----

func newResolver(t *testing.T) (*Resolver, *bridges.Registry) {
	t.Helper()
	reg := bridges.DefaultRegistry()
	return NewResolver(DefaultResolverConfig(), reg), reg
}

func towards(reg *bridges.Registry, id string, fromBearing, distM float64) (geo.Point, float64) {
	b, _ := reg.Get(id)
	p := geo.Offset(b.Point(), fromBearing, distM)
	return p, geo.Bearing(p, b.Point())
}

func TestResolveApproaching(t *testing.T) {
	t.Parallel()
	r, reg := newResolver(t)

	p, course := towards(reg, "klaffbron", 205, 400)
	v := place(reg, p, 5, course, t0)
	v.TargetBridge = "klaffbron"
	r.Observe(v)
	assert.Equal(t, Proposal{vessel.StatusApproaching, "klaffbron"}, r.Resolve(v, nil))

	v.CourseDeg = geo.NormalizeDeg(course + 180)
	assert.Equal(t, Proposal{vessel.StatusEnRoute, "klaffbron"}, r.Resolve(v, nil), "heading away")

	v.CourseDeg = course
	v.SpeedKn = 0.4
	assert.Equal(t, vessel.StatusEnRoute, r.Resolve(v, nil).Status, "too slow to be approaching")
}

func TestResolveWaiting(t *testing.T) {
	t.Parallel()
	r, reg := newResolver(t)

	t.Run("inside waiting zone", func(t *testing.T) {
		p, course := towards(reg, "klaffbron", 205, 250)
		v := place(reg, p, 2, course, t0)
		v.TargetBridge = "klaffbron"
		r.Observe(v)
		assert.Equal(t, Proposal{vessel.StatusWaiting, "klaffbron"}, r.Resolve(v, nil))
	})

	t.Run("stopped long enough in approach zone", func(t *testing.T) {
		p, course := towards(reg, "klaffbron", 205, 400)
		v := place(reg, p, 0.1, course, t0)
		v.TargetBridge = "klaffbron"
		r.Observe(v)
		assert.Equal(t, vessel.StatusEnRoute, r.Resolve(v, nil).Status, "just stopped")

		v.LastUpdate = t0.Add(90 * time.Second)
		r.Observe(v)
		assert.Equal(t, vessel.StatusEnRoute, r.Resolve(v, nil).Status)

		v.LastUpdate = t0.Add(2 * time.Minute)
		r.Observe(v)
		assert.Equal(t, Proposal{vessel.StatusWaiting, "klaffbron"}, r.Resolve(v, nil))

		v.SpeedKn = 1.0
		v.LastUpdate = t0.Add(3 * time.Minute)
		r.Observe(v)
		assert.True(t, v.SlowSince.IsZero(), "moving again resets the dwell")
	})

	t.Run("no target falls back to nearest openable", func(t *testing.T) {
		p, _ := towards(reg, "klaffbron", 205, 200)
		v := place(reg, p, 0, 0, t0)
		r.Observe(v)
		assert.Equal(t, Proposal{vessel.StatusWaiting, "klaffbron"}, r.Resolve(v, nil))
	})

	t.Run("intermediate bridge before the target", func(t *testing.T) {
		p, course := towards(reg, "jarnvagsbron", 212, 200)
		v := place(reg, p, 3, course, t0)
		v.TargetBridge = "stridsbergsbron"
		r.Observe(v)
		require.Greater(t, v.Distances["stridsbergsbron"], 320.0)
		assert.Equal(t, Proposal{vessel.StatusWaiting, "jarnvagsbron"}, r.Resolve(v, nil))
	})
}

func TestResolveUnderBridge(t *testing.T) {
	t.Parallel()
	r, reg := newResolver(t)

	p, course := towards(reg, "klaffbron", 205, 30)
	v := place(reg, p, 3, course, t0)
	v.TargetBridge = "klaffbron"
	r.Observe(v)
	assert.Equal(t, Proposal{vessel.StatusUnderBridge, "klaffbron"}, r.Resolve(v, nil))
}

func TestResolvePassedHold(t *testing.T) {
	t.Parallel()
	r, reg := newResolver(t)

	p, _ := towards(reg, "klaffbron", 25, 60)
	v := place(reg, p, 4, 25, t0)
	v.TargetBridge = "stridsbergsbron"
	v.LastPassedBridge = "klaffbron"
	v.LastPassedTime = t0.Add(-30 * time.Second)
	r.Observe(v)
	assert.Equal(t, Proposal{vessel.StatusPassed, "klaffbron"}, r.Resolve(v, nil))

	v.LastPassedTime = t0.Add(-70 * time.Second)
	assert.NotEqual(t, vessel.StatusPassed, r.Resolve(v, nil).Status)
}

func TestResolveUnderOtherBridgeBeatsPassedHold(t *testing.T) {
	t.Parallel()
	r, reg := newResolver(t)

	p, _ := towards(reg, "jarnvagsbron", 212, 20)
	v := place(reg, p, 4, 32, t0)
	v.TargetBridge = "stridsbergsbron"
	v.LastPassedBridge = "klaffbron"
	v.LastPassedTime = t0.Add(-20 * time.Second)
	r.Observe(v)
	assert.Equal(t, Proposal{vessel.StatusUnderBridge, "jarnvagsbron"}, r.Resolve(v, nil))
}

func TestResolveVetoFallsThrough(t *testing.T) {
	t.Parallel()
	r, reg := newResolver(t)

	p, course := towards(reg, "klaffbron", 205, 250)
	v := place(reg, p, 3, course, t0)
	v.TargetBridge = "klaffbron"
	r.Observe(v)

	require.Equal(t, vessel.StatusWaiting, r.Resolve(v, nil).Status)
	assert.Equal(t, vessel.StatusApproaching, r.Resolve(v, vetoSet{vessel.StatusWaiting: true}).Status)
	assert.Equal(t, vessel.StatusEnRoute,
		r.Resolve(v, vetoSet{vessel.StatusWaiting: true, vessel.StatusApproaching: true}).Status)
}

// ----

func newStabilizer() *Stabilizer { return NewStabilizer(DefaultStabilizerConfig()) }

func stabVessel(at time.Time) *vessel.Vessel {
	return &vessel.Vessel{ID: "a", SpeedKn: 3, NearestM: 200, LastUpdate: at}
}

var (
	enRoute     = Proposal{vessel.StatusEnRoute, "klaffbron"}
	approaching = Proposal{vessel.StatusApproaching, "klaffbron"}
	waiting     = Proposal{vessel.StatusWaiting, "klaffbron"}
	under       = Proposal{vessel.StatusUnderBridge, "klaffbron"}
)

func TestStabilizerSteadyTransitionIsDelayedNotLost(t *testing.T) {
	t.Parallel()
	s := newStabilizer()

	in := []Proposal{enRoute, enRoute, enRoute, approaching, approaching, approaching}
	var out []vessel.Status
	for i, p := range in {
		d := s.Stabilize(stabVessel(t0.Add(time.Duration(i)*10*time.Second)), p)
		out = append(out, d.Status)
	}
	assert.Equal(t, []vessel.Status{
		vessel.StatusEnRoute, vessel.StatusEnRoute, vessel.StatusEnRoute,
		vessel.StatusEnRoute, vessel.StatusEnRoute, vessel.StatusApproaching,
	}, out)
}

func TestStabilizerSuppressesFlicker(t *testing.T) {
	t.Parallel()
	s := newStabilizer()

	in := []Proposal{enRoute, approaching, enRoute, approaching, enRoute}
	for i, p := range in {
		d := s.Stabilize(stabVessel(t0.Add(time.Duration(i)*10*time.Second)), p)
		assert.Equal(t, vessel.StatusEnRoute, d.Status, "step %d", i)
	}
}

func TestStabilizerBypassesUnderBridge(t *testing.T) {
	t.Parallel()
	s := newStabilizer()
	for i := 0; i < 3; i++ {
		s.Stabilize(stabVessel(t0.Add(time.Duration(i)*10*time.Second)), waiting)
	}
	d := s.Stabilize(stabVessel(t0.Add(40*time.Second)), under)
	assert.Equal(t, under, d.Proposal)
	assert.Empty(t, d.Reason)
}

func TestStabilizerGPSJumpHold(t *testing.T) {
	t.Parallel()
	s := newStabilizer()
	for i := 0; i < 3; i++ {
		s.Stabilize(stabVessel(t0.Add(time.Duration(i)*10*time.Second)), waiting)
	}

	jump := stabVessel(t0.Add(30 * time.Second))
	jump.GPSJump = true
	jump.JumpM = 700
	d := s.Stabilize(jump, enRoute)
	assert.Equal(t, waiting, d.Proposal)
	assert.Equal(t, "gps-jump-hold", d.Reason)
	assert.InDelta(t, 0.3, d.Confidence, 1e-9)

	d = s.Stabilize(stabVessel(t0.Add(45*time.Second)), enRoute)
	assert.Equal(t, waiting, d.Proposal, "still inside the 30 s hold")

	d = s.Stabilize(stabVessel(t0.Add(61*time.Second)), enRoute)
	assert.Equal(t, enRoute, d.Proposal, "hold over and the history agrees")
}

func TestStabilizerUncertainNeedsConfirmation(t *testing.T) {
	t.Parallel()
	s := newStabilizer()
	s.Stabilize(stabVessel(t0), enRoute)

	u := stabVessel(t0.Add(10 * time.Second))
	u.Uncertain = true
	d := s.Stabilize(u, approaching)
	assert.Equal(t, enRoute, d.Proposal)
	assert.Equal(t, "uncertain", d.Reason)

	u = stabVessel(t0.Add(20 * time.Second))
	u.Uncertain = true
	d = s.Stabilize(u, approaching)
	assert.Equal(t, approaching, d.Proposal)
}

func TestStabilizerConfidence(t *testing.T) {
	t.Parallel()
	s := newStabilizer()

	v := stabVessel(t0)
	assert.Equal(t, 1.0, s.Confidence(v))

	v.GPSJump = true
	v.SpeedKn = 0.2
	v.NearestM = 1500
	assert.InDelta(t, 0.3*0.8*0.9, s.Confidence(v), 1e-9)

	cfg := DefaultStabilizerConfig()
	cfg.ConfidenceFloor = 0.25
	assert.Equal(t, 0.25, NewStabilizer(cfg).Confidence(v))
}

func TestStabilizerResetAndPurge(t *testing.T) {
	t.Parallel()
	s := newStabilizer()

	s.Stabilize(stabVessel(t0), waiting)
	other := stabVessel(t0.Add(50 * time.Minute))
	other.ID = "b"
	s.Stabilize(other, waiting)
	require.Equal(t, 2, s.Len())

	assert.Equal(t, 1, s.Purge(t0.Add(time.Hour)))
	assert.Equal(t, 1, s.Len())

	s.Reset("b")
	assert.Equal(t, 0, s.Len())
}

func TestStabilizerHistoryWindow(t *testing.T) {
	t.Parallel()
	s := newStabilizer()

	// Old entries age out of the 5 minute window and stop voting.
	s.Stabilize(stabVessel(t0), enRoute)
	s.Stabilize(stabVessel(t0.Add(10*time.Second)), enRoute)
	d := s.Stabilize(stabVessel(t0.Add(10*time.Minute)), approaching)
	assert.Equal(t, approaching, d.Proposal)
}
