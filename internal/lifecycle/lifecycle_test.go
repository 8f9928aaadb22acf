package lifecycle

import (
	"testing"
	"time"

	"github.com/banshee-data/canal.report/internal/bridges"
	"github.com/banshee-data/canal.report/internal/route"
	"github.com/banshee-data/canal.report/internal/vessel"
	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newManager() *Manager {
	reg := bridges.DefaultRegistry()
	return NewManager(reg, route.NewValidator(route.DefaultConfig(), reg).InferDirection)
}

func passedAt(v *vessel.Vessel, dir bridges.Direction, ids ...string) *vessel.Vessel {
	for i, id := range ids {
		v.RecordPassage(id, t0.Add(time.Duration(i)*5*time.Minute), string(dir), 5)
	}
	return v
}

func TestEvaluate(t *testing.T) {
	t.Parallel()
	m := newManager()

	tests := []struct {
		name   string
		vessel *vessel.Vessel
		want   bool
	}{
		{
			name:   "northbound past the northernmost openable",
			vessel: passedAt(&vessel.Vessel{ID: "a"}, bridges.Northbound, "klaffbron", "jarnvagsbron", "stridsbergsbron"),
			want:   true,
		},
		{
			name:   "northbound past final then an intermediate",
			vessel: passedAt(&vessel.Vessel{ID: "a"}, bridges.Northbound, "stridsbergsbron", "stallbackabron"),
			want:   true,
		},
		{
			name:   "same vessel with a target",
			vessel: passedAt(&vessel.Vessel{ID: "a", TargetBridge: "klaffbron"}, bridges.Northbound, "stridsbergsbron"),
			want:   false,
		},
		{
			name:   "southbound past the southernmost openable",
			vessel: passedAt(&vessel.Vessel{ID: "a"}, bridges.Southbound, "stridsbergsbron", "jarnvagsbron", "klaffbron"),
			want:   true,
		},
		{
			name:   "southbound past the northern openable only",
			vessel: passedAt(&vessel.Vessel{ID: "a"}, bridges.Southbound, "stridsbergsbron"),
			want:   false,
		},
		{
			name:   "no passages",
			vessel: &vessel.Vessel{ID: "a"},
			want:   false,
		},
		{
			name:   "intermediate passages only",
			vessel: passedAt(&vessel.Vessel{ID: "a"}, bridges.Northbound, "olidebron"),
			want:   false,
		},
		{
			name:   "direction from course",
			vessel: passedAt(&vessel.Vessel{ID: "a", CourseDeg: 20}, bridges.DirectionUnknown, "stridsbergsbron"),
			want:   true,
		},
		{
			name:   "direction indeterminate",
			vessel: passedAt(&vessel.Vessel{ID: "a", CourseDeg: 90}, bridges.DirectionUnknown, "stridsbergsbron"),
			want:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, m.Evaluate(tt.vessel).Eliminate)
		})
	}
}

func TestEvaluateReportsFinalBridge(t *testing.T) {
	t.Parallel()
	v := passedAt(&vessel.Vessel{ID: "a"}, bridges.Northbound, "stridsbergsbron")
	got := newManager().Evaluate(v)
	assert.Equal(t, Verdict{Eliminate: true, BridgeID: "stridsbergsbron", Direction: bridges.Northbound}, got)
}

func TestEvaluateFallsBackToLastPassed(t *testing.T) {
	t.Parallel()
	v := &vessel.Vessel{ID: "a", LastPassedBridge: "klaffbron", LastPassedTime: t0, CourseDeg: 180}
	assert.True(t, newManager().Evaluate(v).Eliminate)
}
