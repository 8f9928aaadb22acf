package vessel

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/banshee-data/canal.report/internal/config"
	"github.com/banshee-data/canal.report/internal/geo"
	"github.com/banshee-data/canal.report/internal/units"
)

// ErrInvalidReport is wrapped by every validation failure in Store.Update.
var ErrInvalidReport = errors.New("invalid position report")

// Change describes what Store.Update did with a report.
type Change int

const (
	ChangeCreated Change = iota // first report for an unseen id
	ChangeUpdated               // record moved forward
	ChangeStale                 // timestamp not newer than the last report; nothing changed
)

// StoreConfig holds the position-quality thresholds the store applies while
// folding a report into a record.
type StoreConfig struct {
	GPSJumpM               float64 // displacement above which a fix may be a jump (metres)
	GPSJumpSpeedFactor     float64 // tolerance over the fastest plausible speed
	UncertainDisplacementM float64 // displacement above which a fix may be uncertain (metres)
	UncertainSpeedFactor   float64 // tolerance over reported speed for uncertain fixes
	MovementThresholdM     float64 // displacement that counts as significant movement
	SpeedSamplesMax        int     // recent speed samples kept for ETA smoothing
	ETAMinSpeedKn          float64 // below this no ETA is given
	MaxReportAhead         time.Duration
}

// DefaultStoreConfig returns store configuration loaded from the canonical
// tuning defaults file.
func DefaultStoreConfig() StoreConfig {
	return StoreConfigFromTuning(config.MustLoadDefaultConfig())
}

// StoreConfigFromTuning builds a StoreConfig from a loaded TuningConfig.
func StoreConfigFromTuning(cfg *config.TuningConfig) StoreConfig {
	return StoreConfig{
		GPSJumpM:               cfg.GetGPSJumpM(),
		GPSJumpSpeedFactor:     cfg.GetGPSJumpSpeedFactor(),
		UncertainDisplacementM: cfg.GetUncertainDisplacementM(),
		UncertainSpeedFactor:   cfg.GetUncertainSpeedFactor(),
		MovementThresholdM:     cfg.GetMovementThresholdM(),
		SpeedSamplesMax:        cfg.GetSpeedSamplesMax(),
		ETAMinSpeedKn:          cfg.GetETAMinSpeedKn(),
		MaxReportAhead:         cfg.GetMaxReportAhead(),
	}
}

// Store is the sole owner of vessel records. It is not safe for concurrent
// use; the engine serialises every access.
type Store struct {
	cfg     StoreConfig
	vessels map[string]*Vessel
}

// NewStore creates an empty store.
func NewStore(cfg StoreConfig) *Store {
	return &Store{cfg: cfg, vessels: make(map[string]*Vessel)}
}

// Validate checks a report against the accepted ranges. Values are never
// clamped or coerced.
func Validate(id string, r Report) error {
	if id == "" {
		return fmt.Errorf("%w: empty vessel id", ErrInvalidReport)
	}
	for name, v := range map[string]float64{"lat": r.Lat, "lon": r.Lon, "sog": r.SOG, "cog": r.COG} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidReport, name)
		}
	}
	switch {
	case r.Lat < -90 || r.Lat > 90:
		return fmt.Errorf("%w: lat %v outside [-90, 90]", ErrInvalidReport, r.Lat)
	case r.Lon < -180 || r.Lon > 180:
		return fmt.Errorf("%w: lon %v outside [-180, 180]", ErrInvalidReport, r.Lon)
	case r.SOG < 0 || r.SOG > 100:
		return fmt.Errorf("%w: sog %v outside [0, 100] kn", ErrInvalidReport, r.SOG)
	case r.COG < 0 || r.COG >= 360:
		return fmt.Errorf("%w: cog %v outside [0, 360)", ErrInvalidReport, r.COG)
	case r.Timestamp.IsZero():
		return fmt.Errorf("%w: missing timestamp", ErrInvalidReport)
	}
	return nil
}

// Update folds r into the record for id using the report's own timestamp
// as its arrival time.
func (s *Store) Update(id string, r Report) (*Vessel, Change, error) {
	return s.UpdateAt(id, r, r.Timestamp)
}

// UpdateAt validates r and folds it into the record for id, creating the
// record on first sight. now is the arrival time; a report stamped more
// than MaxReportAhead past it is invalid. An invalid report leaves the
// store untouched. A report that is not newer than the record's last
// update is ignored and reported as ChangeStale, which makes resubmission
// idempotent.
func (s *Store) UpdateAt(id string, r Report, now time.Time) (*Vessel, Change, error) {
	if err := Validate(id, r); err != nil {
		return nil, ChangeStale, err
	}
	if ahead := r.Timestamp.Sub(now); s.cfg.MaxReportAhead > 0 && ahead > s.cfg.MaxReportAhead {
		return nil, ChangeStale, fmt.Errorf("%w: timestamp %s is %s ahead of arrival", ErrInvalidReport, r.Timestamp.Format(time.RFC3339), ahead)
	}

	v, ok := s.vessels[id]
	if !ok {
		v = newVessel(id, r)
		v.LastSeen = now
		s.pushSpeed(v, r.SOG)
		s.vessels[id] = v
		return v, ChangeCreated, nil
	}
	if !r.Timestamp.After(v.LastUpdate) {
		return v, ChangeStale, nil
	}

	prev := v.Position()
	cur := geo.Point{Lat: r.Lat, Lon: r.Lon}
	disp := geo.Distance(prev, cur)
	elapsed := r.Timestamp.Sub(v.LastUpdate).Seconds()

	v.GPSJump, v.Uncertain, v.JumpM = false, false, 0
	// Anything moving slower than a knot is treated as a knot so a drifting
	// vessel reporting 0 kn is not flagged for a few metres of travel.
	fastest := math.Max(math.Max(r.SOG, v.SpeedKn), 1)
	if disp > s.cfg.GPSJumpM && disp > elapsed*units.KnotsToMPS(fastest)*s.cfg.GPSJumpSpeedFactor {
		v.GPSJump = true
		v.JumpM = disp
	} else if disp > s.cfg.UncertainDisplacementM &&
		disp > elapsed*units.KnotsToMPS(math.Max(r.SOG, 1))*s.cfg.UncertainSpeedFactor {
		v.Uncertain = true
	}

	v.HasPrev = true
	v.PrevLat, v.PrevLon = v.Lat, v.Lon
	v.PrevSpeedKn = v.SpeedKn
	v.PrevUpdate = v.LastUpdate

	v.Lat, v.Lon = r.Lat, r.Lon
	v.SpeedKn = r.SOG
	v.CourseDeg = r.COG
	v.LastUpdate = r.Timestamp
	v.LastSeen = now
	if disp >= s.cfg.MovementThresholdM {
		v.LastMovement = r.Timestamp
	}
	s.pushSpeed(v, r.SOG)

	return v, ChangeUpdated, nil
}

func (s *Store) pushSpeed(v *Vessel, sog float64) {
	v.SpeedSamples = append(v.SpeedSamples, sog)
	if limit := s.cfg.SpeedSamplesMax; limit > 0 && len(v.SpeedSamples) > limit {
		v.SpeedSamples = v.SpeedSamples[len(v.SpeedSamples)-limit:]
	}
}

// Get returns the record for id.
func (s *Store) Get(id string) (*Vessel, bool) {
	v, ok := s.vessels[id]
	return v, ok
}

// Remove deletes the record for id. It reports whether a record existed.
func (s *Store) Remove(id string) bool {
	if _, ok := s.vessels[id]; !ok {
		return false
	}
	delete(s.vessels, id)
	return true
}

// Len returns the number of live vessels.
func (s *Store) Len() int { return len(s.vessels) }

// All returns the live records ordered by id.
func (s *Store) All() []*Vessel {
	out := make([]*Vessel, 0, len(s.vessels))
	for _, v := range s.vessels {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Schedule sets the removal deadline for id. A later call supersedes an
// earlier one, so a fresh update simply moves the deadline.
func (s *Store) Schedule(id string, at time.Time) {
	if v, ok := s.vessels[id]; ok {
		v.RemovalAt = at
	}
}

// Expired returns the ids whose removal deadline is at or before now.
func (s *Store) Expired(now time.Time) []string {
	var ids []string
	for id, v := range s.vessels {
		if !v.RemovalAt.IsZero() && !now.Before(v.RemovalAt) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// View projects one record.
func (s *Store) View(v *Vessel) View {
	view := View{
		ID:               v.ID,
		Lat:              v.Lat,
		Lon:              v.Lon,
		SpeedKn:          v.SpeedKn,
		CourseDeg:        v.CourseDeg,
		Status:           v.Status,
		StatusBridge:     v.StatusBridge,
		TargetBridge:     v.TargetBridge,
		LastPassedBridge: v.LastPassedBridge,
		LastPassedTime:   v.LastPassedTime,
		Confidence:       v.Confidence,
		NearestBridge:    v.NearestBridge,
		NearestM:         v.NearestM,
		FirstSeen:        v.FirstSeen,
		LastUpdate:       v.LastUpdate,
		RemovalAt:        v.RemovalAt,
	}
	if len(v.RecentPassages) > 0 {
		view.RecentPassages = append([]PassageRecord(nil), v.RecentPassages...)
	}
	if v.TargetBridge != "" {
		if d, ok := v.Distances[v.TargetBridge]; ok {
			view.DistanceToTargetM = &d
			if eta, ok := units.ETAMinutes(d, v.MeanSpeedKn(), s.cfg.ETAMinSpeedKn); ok {
				view.ETAMinutes = &eta
			}
		}
	}
	return view
}

// Snapshot returns views of every live record, ordered by id.
func (s *Store) Snapshot() []View {
	all := s.All()
	out := make([]View, 0, len(all))
	for _, v := range all {
		out = append(out, s.View(v))
	}
	return out
}
