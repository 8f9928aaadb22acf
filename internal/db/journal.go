package db

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/canal.report/internal/engine"
	"github.com/banshee-data/canal.report/internal/passage"
)

// PassageRow is one confirmed or rejected passage.
type PassageRow struct {
	ID              string    `json:"id"`
	VesselID        string    `json:"vessel_id"`
	BridgeID        string    `json:"bridge_id"`
	Direction       string    `json:"direction"`
	Accepted        bool      `json:"accepted"`
	Verdict         string    `json:"verdict"`
	ClosestApproach bool      `json:"closest_approach"`
	LineCrossing    bool      `json:"line_crossing"`
	ClosestM        *float64  `json:"closest_m,omitempty"`
	CrossingM       *float64  `json:"crossing_m,omitempty"`
	TargetBridge    string    `json:"target_bridge"`
	PassedAt        time.Time `json:"passed_at"`
}

// TextRow is one bridge-text change.
type TextRow struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	ChangedAt time.Time `json:"changed_at"`
}

// VesselEventRow is a near-zone entry, journey completion or removal.
type VesselEventRow struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	VesselID   string    `json:"vessel_id"`
	BridgeID   string    `json:"bridge_id"`
	DistanceM  *float64  `json:"distance_m,omitempty"`
	ETAMinutes *float64  `json:"eta_minutes,omitempty"`
	Reason     string    `json:"reason"`
	At         time.Time `json:"at"`
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

func nullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

// RecordEvent journals one engine event. Kinds without a table are
// ignored. Re-recording the same event id is a no-op.
func (db *DB) RecordEvent(ctx context.Context, ev engine.Event) error {
	var err error
	switch ev.Kind {
	case engine.EventPassageConfirmed, engine.EventPassageRejected:
		closest := sql.NullFloat64{Float64: ev.ClosestM, Valid: ev.ClosestM > 0}
		var crossing sql.NullFloat64
		if ev.CrossingM != nil {
			crossing = sql.NullFloat64{Float64: *ev.CrossingM, Valid: true}
		}
		_, err = db.ExecContext(ctx, `
			INSERT OR IGNORE INTO passages (
				passage_id, vessel_id, bridge_id, direction, accepted, verdict,
				closest_approach, line_crossing, closest_m, crossing_m,
				target_bridge, passed_unix
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, ev.VesselID, ev.BridgeID, string(ev.Direction),
			ev.Kind == engine.EventPassageConfirmed, string(ev.Verdict),
			hasTrigger(ev.Triggers, passage.TriggerClosestApproach),
			hasTrigger(ev.Triggers, passage.TriggerLineCrossing),
			closest, crossing, ev.TargetBridge, unixSeconds(ev.At),
		)

	case engine.EventBridgeTextChanged:
		_, err = db.ExecContext(ctx,
			`INSERT OR IGNORE INTO bridge_text_log (text_id, text, changed_unix) VALUES (?, ?, ?)`,
			ev.ID, ev.Text, unixSeconds(ev.At),
		)

	case engine.EventNearZoneEntry, engine.EventJourneyCompleted, engine.EventVesselRemoved:
		var distance, eta sql.NullFloat64
		if ev.Kind == engine.EventNearZoneEntry {
			distance = sql.NullFloat64{Float64: ev.DistanceM, Valid: true}
		}
		if ev.ETAMinutes != nil {
			eta = sql.NullFloat64{Float64: *ev.ETAMinutes, Valid: true}
		}
		_, err = db.ExecContext(ctx, `
			INSERT OR IGNORE INTO vessel_events (
				event_id, kind, vessel_id, bridge_id, distance_m, eta_minutes, reason, event_unix
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, string(ev.Kind), ev.VesselID, ev.BridgeID, distance, eta, ev.Reason, unixSeconds(ev.At),
		)

	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("record %s event: %w", ev.Kind, err)
	}
	return nil
}

func hasTrigger(ts []passage.Trigger, want passage.Trigger) bool {
	for _, t := range ts {
		if t == want {
			return true
		}
	}
	return false
}

// PassageFilter narrows a passage query. Zero values match everything.
type PassageFilter struct {
	BridgeID     string
	VesselID     string
	Since        time.Time
	AcceptedOnly bool
	Limit        int
}

// Passages returns journaled passages, newest first.
func (db *DB) Passages(ctx context.Context, f PassageFilter) ([]PassageRow, error) {
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := `SELECT passage_id, vessel_id, bridge_id, direction, accepted, verdict,
			closest_approach, line_crossing, closest_m, crossing_m, target_bridge, passed_unix
		FROM passages WHERE 1=1`
	var args []any
	if f.BridgeID != "" {
		query += " AND bridge_id = ?"
		args = append(args, f.BridgeID)
	}
	if f.VesselID != "" {
		query += " AND vessel_id = ?"
		args = append(args, f.VesselID)
	}
	if !f.Since.IsZero() {
		query += " AND passed_unix >= ?"
		args = append(args, unixSeconds(f.Since))
	}
	if f.AcceptedOnly {
		query += " AND accepted = 1"
	}
	query += " ORDER BY passed_unix DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []PassageRow{}
	for rows.Next() {
		var (
			p                 PassageRow
			closest, crossing sql.NullFloat64
			passed            float64
		)
		if err := rows.Scan(&p.ID, &p.VesselID, &p.BridgeID, &p.Direction, &p.Accepted, &p.Verdict,
			&p.ClosestApproach, &p.LineCrossing, &closest, &crossing, &p.TargetBridge, &passed); err != nil {
			return nil, err
		}
		p.ClosestM = nullFloat(closest)
		p.CrossingM = nullFloat(crossing)
		p.PassedAt = fromUnixSeconds(passed)
		out = append(out, p)
	}
	return out, rows.Err()
}

// BridgeTexts returns the most recent bridge-text changes, newest first.
func (db *DB) BridgeTexts(ctx context.Context, limit int) ([]TextRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx,
		`SELECT text_id, text, changed_unix FROM bridge_text_log ORDER BY changed_unix DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []TextRow{}
	for rows.Next() {
		var (
			t       TextRow
			changed float64
		)
		if err := rows.Scan(&t.ID, &t.Text, &changed); err != nil {
			return nil, err
		}
		t.ChangedAt = fromUnixSeconds(changed)
		out = append(out, t)
	}
	return out, rows.Err()
}

// VesselEvents returns the lifecycle events of one vessel, oldest first.
func (db *DB) VesselEvents(ctx context.Context, vesselID string) ([]VesselEventRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT event_id, kind, vessel_id, bridge_id, distance_m, eta_minutes, reason, event_unix
		FROM vessel_events WHERE vessel_id = ? ORDER BY event_unix ASC, rowid ASC`, vesselID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []VesselEventRow{}
	for rows.Next() {
		var (
			e             VesselEventRow
			distance, eta sql.NullFloat64
			at            float64
		)
		if err := rows.Scan(&e.ID, &e.Kind, &e.VesselID, &e.BridgeID, &distance, &eta, &e.Reason, &at); err != nil {
			return nil, err
		}
		e.DistanceM = nullFloat(distance)
		e.ETAMinutes = nullFloat(eta)
		e.At = fromUnixSeconds(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes journal rows older than before and returns how many were
// removed.
func (db *DB) Prune(ctx context.Context, before time.Time) (int64, error) {
	cutoff := unixSeconds(before)
	var total int64
	for _, q := range []string{
		`DELETE FROM passages WHERE passed_unix < ?`,
		`DELETE FROM bridge_text_log WHERE changed_unix < ?`,
		`DELETE FROM vessel_events WHERE event_unix < ?`,
	} {
		res, err := db.ExecContext(ctx, q, cutoff)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
