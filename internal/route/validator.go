// Package route keeps a short passage history per vessel and rejects
// passage sequences that could not physically have happened.
package route

import (
	"sort"
	"time"

	"github.com/banshee-data/canal.report/internal/bridges"
	"github.com/banshee-data/canal.report/internal/config"
	"github.com/banshee-data/canal.report/internal/geo"
	"github.com/banshee-data/canal.report/internal/monitoring"
)

// Config holds the route validator tolerances.
type Config struct {
	HistoryMax      int           // entries kept per vessel
	DuplicateWindow time.Duration // same bridge again within this is a repeat
	MaxForwardSkip  int           // largest accepted step up the sequence
	LargeGap        time.Duration // any step is accepted after this long
	MaxAge          time.Duration // Prune drops entries older than this

	NorthFromDeg, NorthToDeg float64 // course sector read as northbound
	SouthFromDeg, SouthToDeg float64 // course sector read as southbound
}

// DefaultConfig returns validator configuration loaded from the canonical
// tuning defaults file.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		HistoryMax:      cfg.GetRouteHistoryMax(),
		DuplicateWindow: cfg.GetRouteDuplicateWindow(),
		MaxForwardSkip:  cfg.GetRouteMaxForwardSkip(),
		LargeGap:        cfg.GetRouteLargeGap(),
		MaxAge:          cfg.GetRouteHistoryMaxAge(),
		NorthFromDeg:    cfg.GetNorthboundCourseFromDeg(),
		NorthToDeg:      cfg.GetNorthboundCourseToDeg(),
		SouthFromDeg:    cfg.GetSouthboundCourseFromDeg(),
		SouthToDeg:      cfg.GetSouthboundCourseToDeg(),
	}
}

// Entry is one accepted passage in a vessel's history.
type Entry struct {
	BridgeID  string            `json:"bridge_id"`
	At        time.Time         `json:"at"`
	Direction bridges.Direction `json:"direction,omitempty"`
	Lat       float64           `json:"lat"`
	Lon       float64           `json:"lon"`
	SpeedKn   float64           `json:"speed_kn"`
}

// Reason explains a verdict.
type Reason string

const (
	ReasonFirst       Reason = "first"
	ReasonAdjacent    Reason = "adjacent"
	ReasonForwardSkip Reason = "forward-skip"
	ReasonLargeGap    Reason = "large-gap"
	ReasonReversal    Reason = "reversal"

	ReasonRepeat       Reason = "repeat"
	ReasonBackwardSkip Reason = "backward-skip"
	ReasonSkipTooFar   Reason = "skip-too-far"
	ReasonUnknown      Reason = "unknown-bridge"
)

// Verdict is the outcome of Validate.
type Verdict struct {
	Accepted bool   `json:"accepted"`
	Reason   Reason `json:"reason"`
}

// Validator holds per-vessel passage history. Not safe for concurrent use.
type Validator struct {
	cfg      Config
	registry *bridges.Registry
	history  map[string][]Entry
}

// NewValidator creates a Validator.
func NewValidator(cfg Config, registry *bridges.Registry) *Validator {
	return &Validator{cfg: cfg, registry: registry, history: make(map[string][]Entry)}
}

// InferDirection reads a travel direction off a course over ground. Courses
// outside both sectors give DirectionUnknown.
func (val *Validator) InferDirection(courseDeg float64) bridges.Direction {
	c := geo.NormalizeDeg(courseDeg)
	switch {
	case inSector(c, val.cfg.NorthFromDeg, val.cfg.NorthToDeg):
		return bridges.Northbound
	case inSector(c, val.cfg.SouthFromDeg, val.cfg.SouthToDeg):
		return bridges.Southbound
	}
	return bridges.DirectionUnknown
}

// inSector reports whether c lies in [from, to] going clockwise, so a
// sector may wrap through north.
func inSector(c, from, to float64) bool {
	from, to = geo.NormalizeDeg(from), geo.NormalizeDeg(to)
	if from <= to {
		return c >= from && c <= to
	}
	return c >= from || c <= to
}

// Validate checks a candidate passage e against the vessel's history. It
// never changes state; call Register to record an accepted passage.
//
// Accepted: the first passage, a step to the adjacent bridge, a step up the
// sequence of at most MaxForwardSkip, anything after LargeGap, and anything
// whose direction is opposite to the previous passage. Rejected: the same
// bridge again within DuplicateWindow, and larger or backward steps that
// none of the above explain.
//
// Steps are counted on the south-to-north sequence whatever the travel
// direction, so MaxForwardSkip only ever helps northbound traffic: a
// southbound step over more than one bridge is a backward skip and needs a
// reversal or LargeGap to be accepted.
func (val *Validator) Validate(vesselID string, e Entry) Verdict {
	to := val.registry.Position(e.BridgeID)
	if to < 0 {
		return val.reject(vesselID, e, ReasonUnknown)
	}
	h := val.history[vesselID]
	if len(h) == 0 {
		return Verdict{Accepted: true, Reason: ReasonFirst}
	}
	last := h[len(h)-1]
	elapsed := e.At.Sub(last.At)

	if e.BridgeID == last.BridgeID && elapsed < val.cfg.DuplicateWindow {
		return val.reject(vesselID, e, ReasonRepeat)
	}
	if elapsed > val.cfg.LargeGap {
		return Verdict{Accepted: true, Reason: ReasonLargeGap}
	}
	if reversed(last.Direction, e.Direction) {
		return Verdict{Accepted: true, Reason: ReasonReversal}
	}

	step := to - val.registry.Position(last.BridgeID)
	switch {
	case step == 1 || step == -1:
		return Verdict{Accepted: true, Reason: ReasonAdjacent}
	case step > 1 && step <= val.cfg.MaxForwardSkip:
		return Verdict{Accepted: true, Reason: ReasonForwardSkip}
	case step > 1:
		return val.reject(vesselID, e, ReasonSkipTooFar)
	case step == 0:
		return val.reject(vesselID, e, ReasonRepeat)
	}
	return val.reject(vesselID, e, ReasonBackwardSkip)
}

func reversed(a, b bridges.Direction) bool {
	return a != bridges.DirectionUnknown && b != bridges.DirectionUnknown && a != b
}

func (val *Validator) reject(vesselID string, e Entry, r Reason) Verdict {
	last := "-"
	if h := val.history[vesselID]; len(h) > 0 {
		last = h[len(h)-1].BridgeID
	}
	monitoring.Vesself("route", vesselID, "rejected passage at %s after %s (%s, %s)", e.BridgeID, last, r, e.Direction)
	return Verdict{Accepted: false, Reason: r}
}

// Register appends an accepted passage. Entries older than the newest one
// are dropped so the history stays timestamp-monotonic.
func (val *Validator) Register(vesselID string, e Entry) bool {
	h := val.history[vesselID]
	if n := len(h); n > 0 && e.At.Before(h[n-1].At) {
		return false
	}
	h = append(h, e)
	if over := len(h) - val.cfg.HistoryMax; over > 0 {
		h = append([]Entry(nil), h[over:]...)
	}
	val.history[vesselID] = h
	return true
}

// History returns a copy of the vessel's history, oldest first.
func (val *Validator) History(vesselID string) []Entry {
	return append([]Entry(nil), val.history[vesselID]...)
}

// Last returns the most recent entry for the vessel.
func (val *Validator) Last(vesselID string) (Entry, bool) {
	h := val.history[vesselID]
	if len(h) == 0 {
		return Entry{}, false
	}
	return h[len(h)-1], true
}

// Prune drops entries older than MaxAge and returns how many went.
func (val *Validator) Prune(now time.Time) int {
	n := 0
	cutoff := now.Add(-val.cfg.MaxAge)
	for id, h := range val.history {
		i := sort.Search(len(h), func(i int) bool { return !h[i].At.Before(cutoff) })
		if i == 0 {
			continue
		}
		n += i
		if i == len(h) {
			delete(val.history, id)
			continue
		}
		val.history[id] = append([]Entry(nil), h[i:]...)
	}
	return n
}

// Forget drops the vessel's history.
func (val *Validator) Forget(vesselID string) { delete(val.history, vesselID) }

// Len returns the number of vessels with history.
func (val *Validator) Len() int { return len(val.history) }
