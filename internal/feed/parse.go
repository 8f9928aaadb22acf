package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/canal.report/internal/vessel"
)

// ErrNotPosition is returned for lines that are not position reports, such
// as raw NMEA sentences or receiver status lines. Callers skip them.
var ErrNotPosition = errors.New("not a position report")

// positionLine is the JSON shape forwarded by the AIS decoder. The vessel
// id is the MMSI; "id" is accepted for non-AIS sources.
type positionLine struct {
	MMSI      json.RawMessage `json:"mmsi"`
	ID        string          `json:"id"`
	Lat       *float64        `json:"lat"`
	Lon       *float64        `json:"lon"`
	SOG       *float64        `json:"sog"`
	COG       *float64        `json:"cog"`
	Timestamp string          `json:"timestamp"`
}

// ParseReport decodes one feed line. A line without a timestamp takes
// received. Speed and course are required; a position without them is
// invalid rather than stationary and heading north.
func ParseReport(line string, received time.Time) (string, vessel.Report, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return "", vessel.Report{}, ErrNotPosition
	}

	var p positionLine
	if err := json.Unmarshal([]byte(line), &p); err != nil {
		return "", vessel.Report{}, fmt.Errorf("decode position: %w", err)
	}
	if p.Lat == nil || p.Lon == nil {
		return "", vessel.Report{}, ErrNotPosition
	}

	id := p.ID
	if len(p.MMSI) > 0 {
		id = strings.Trim(string(p.MMSI), `"`)
		if _, err := strconv.ParseUint(id, 10, 64); err != nil {
			return "", vessel.Report{}, fmt.Errorf("invalid mmsi %s", p.MMSI)
		}
	}
	if id == "" {
		return "", vessel.Report{}, errors.New("position without vessel id")
	}
	if p.SOG == nil || p.COG == nil {
		return id, vessel.Report{}, fmt.Errorf("%w: missing sog or cog", vessel.ErrInvalidReport)
	}

	ts := received
	if p.Timestamp != "" {
		t, err := time.Parse(time.RFC3339Nano, p.Timestamp)
		if err != nil {
			return "", vessel.Report{}, fmt.Errorf("invalid timestamp %q: %w", p.Timestamp, err)
		}
		ts = t
	}

	return id, vessel.Report{
		Lat:       *p.Lat,
		Lon:       *p.Lon,
		SOG:       *p.SOG,
		COG:       *p.COG,
		Timestamp: ts,
	}, nil
}
