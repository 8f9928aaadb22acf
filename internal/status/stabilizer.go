package status

import (
	"time"

	"github.com/banshee-data/canal.report/internal/config"
	"github.com/banshee-data/canal.report/internal/monitoring"
	"github.com/banshee-data/canal.report/internal/vessel"
)

// StabilizerConfig holds the flicker-damping parameters.
type StabilizerConfig struct {
	Window                 time.Duration // history older than this is dropped
	MaxEntries             int           // history length cap
	FlickerWindow          int           // entries inspected for flicker
	GPSJumpHold            time.Duration // prior stable status held after a jump
	UncertainConfirmations int           // identical proposals needed while uncertain
	IdlePurge              time.Duration // history of silent vessels dropped after this

	ConfidenceGPSJump    float64
	ConfidenceUncertain  float64
	ConfidenceLowSpeed   float64
	ConfidenceFar        float64
	ConfidenceFloor      float64
	LowConfidenceSpeedKn float64
	FarDistanceM         float64
}

// DefaultStabilizerConfig returns stabilizer configuration loaded from the
// canonical tuning defaults file.
func DefaultStabilizerConfig() StabilizerConfig {
	return StabilizerConfigFromTuning(config.MustLoadDefaultConfig())
}

// StabilizerConfigFromTuning builds a StabilizerConfig from a loaded TuningConfig.
func StabilizerConfigFromTuning(cfg *config.TuningConfig) StabilizerConfig {
	return StabilizerConfig{
		Window:                 cfg.GetStabilityWindow(),
		MaxEntries:             cfg.GetStabilityMaxEntries(),
		FlickerWindow:          cfg.GetFlickerWindow(),
		GPSJumpHold:            cfg.GetGPSJumpHold(),
		UncertainConfirmations: cfg.GetUncertainConfirmations(),
		IdlePurge:              cfg.GetStabilityIdlePurge(),
		ConfidenceGPSJump:      cfg.GetConfidenceGPSJump(),
		ConfidenceUncertain:    cfg.GetConfidenceUncertain(),
		ConfidenceLowSpeed:     cfg.GetConfidenceLowSpeed(),
		ConfidenceFar:          cfg.GetConfidenceFar(),
		ConfidenceFloor:        cfg.GetConfidenceFloor(),
		LowConfidenceSpeedKn:   cfg.GetLowConfidenceSpeedKn(),
		FarDistanceM:           cfg.GetFarDistanceM(),
	}
}

type historyEntry struct {
	Proposal
	at time.Time
}

type stability struct {
	history   []historyEntry
	stable    Proposal
	hasStable bool
	holdUntil time.Time
	lastSeen  time.Time
}

// Decision is the stabilizer's output for one update.
type Decision struct {
	Proposal
	Confidence float64
	Reason     string // empty when the proposal was taken as is
}

// Stabilizer keeps a short history of proposals per vessel and decides
// which one to surface. Not safe for concurrent use.
type Stabilizer struct {
	cfg    StabilizerConfig
	states map[string]*stability
}

// NewStabilizer creates a Stabilizer.
func NewStabilizer(cfg StabilizerConfig) *Stabilizer {
	return &Stabilizer{cfg: cfg, states: make(map[string]*stability)}
}

// Confidence scores the vessel's current fix.
func (s *Stabilizer) Confidence(v *vessel.Vessel) float64 {
	c := 1.0
	if v.GPSJump {
		c *= s.cfg.ConfidenceGPSJump
	}
	if v.Uncertain {
		c *= s.cfg.ConfidenceUncertain
	}
	if v.SpeedKn < s.cfg.LowConfidenceSpeedKn {
		c *= s.cfg.ConfidenceLowSpeed
	}
	if v.NearestM > s.cfg.FarDistanceM {
		c *= s.cfg.ConfidenceFar
	}
	if c < s.cfg.ConfidenceFloor {
		c = s.cfg.ConfidenceFloor
	}
	return c
}

// Stabilize decides what to surface given the resolver's proposal p.
// Under-bridge and passed always pass straight through. Otherwise, in
// order: a recent GPS jump holds the last stable status; an uncertain fix
// needs repeated agreement; and flicker in the recent history is replaced
// by the most frequent recent proposal.
func (s *Stabilizer) Stabilize(v *vessel.Vessel, p Proposal) Decision {
	now := v.LastUpdate
	st, ok := s.states[v.ID]
	if !ok {
		st = &stability{}
		s.states[v.ID] = st
	}
	st.lastSeen = now
	d := Decision{Proposal: p, Confidence: s.Confidence(v)}

	if v.GPSJump {
		st.holdUntil = now.Add(s.cfg.GPSJumpHold)
	}

	if p.Status == vessel.StatusUnderBridge || p.Status == vessel.StatusPassed {
		st.accept(p)
		return d
	}

	st.push(historyEntry{Proposal: p, at: now}, now, s.cfg)

	if !st.hasStable {
		st.accept(p)
		return d
	}

	if now.Before(st.holdUntil) && p != st.stable {
		d.Proposal, d.Reason = st.stable, "gps-jump-hold"
		monitoring.Vesself("status", v.ID, "holding %s after %.0f m jump (proposed %s)", st.stable.Status, v.JumpM, p.Status)
		return d
	}

	if v.Uncertain && p != st.stable && !st.agrees(p, s.cfg.UncertainConfirmations) {
		d.Proposal, d.Reason = st.stable, "uncertain"
		return d
	}

	if st.flickering(s.cfg.FlickerWindow) {
		if m, ok := st.mostFrequent(s.cfg.MaxEntries); ok {
			d.Proposal = m
		} else {
			d.Proposal = st.stable
		}
		if d.Proposal != p {
			d.Reason = "flicker"
		}
	}

	st.accept(d.Proposal)
	return d
}

// Reset drops the vessel's history, e.g. after a confirmed passage so the
// pre-passage statuses cannot vote afterwards.
func (s *Stabilizer) Reset(vesselID string) {
	delete(s.states, vesselID)
}

// Purge drops the history of vessels not seen for IdlePurge. It returns how
// many were dropped.
func (s *Stabilizer) Purge(now time.Time) int {
	n := 0
	for id, st := range s.states {
		if now.Sub(st.lastSeen) >= s.cfg.IdlePurge {
			delete(s.states, id)
			n++
		}
	}
	return n
}

// Len returns the number of vessels with history.
func (s *Stabilizer) Len() int { return len(s.states) }

func (st *stability) accept(p Proposal) {
	st.stable = p
	st.hasStable = true
}

func (st *stability) push(e historyEntry, now time.Time, cfg StabilizerConfig) {
	st.history = append(st.history, e)
	cut := 0
	for cut < len(st.history) && now.Sub(st.history[cut].at) > cfg.Window {
		cut++
	}
	if over := len(st.history) - cut - cfg.MaxEntries; over > 0 {
		cut += over
	}
	if cut > 0 {
		st.history = append([]historyEntry(nil), st.history[cut:]...)
	}
}

// agrees reports whether the last n proposals all equal p.
func (st *stability) agrees(p Proposal, n int) bool {
	if len(st.history) < n {
		return false
	}
	for _, e := range st.history[len(st.history)-n:] {
		if e.Proposal != p {
			return false
		}
	}
	return true
}

// flickering reports whether the last n proposals hold at least two
// distinct values.
func (st *stability) flickering(n int) bool {
	if len(st.history) < 2 {
		return false
	}
	start := len(st.history) - n
	if start < 0 {
		start = 0
	}
	first := st.history[start].Proposal
	for _, e := range st.history[start+1:] {
		if e.Proposal != first {
			return true
		}
	}
	return false
}

// mostFrequent returns the most common proposal among the last n entries.
// ok is false on a tie for first place.
func (st *stability) mostFrequent(n int) (Proposal, bool) {
	start := len(st.history) - n
	if start < 0 {
		start = 0
	}
	counts := make(map[Proposal]int)
	for _, e := range st.history[start:] {
		counts[e.Proposal]++
	}
	var best Proposal
	bestN, tie := 0, false
	for p, c := range counts {
		switch {
		case c > bestN:
			best, bestN, tie = p, c, false
		case c == bestN:
			tie = true
		}
	}
	return best, !tie
}
