// Package bridges holds the static canal topology: where each bridge is,
// which way the canal runs through it, and whether it opens.
package bridges

import (
	"fmt"
	"sort"

	"github.com/banshee-data/canal.report/internal/config"
	"github.com/banshee-data/canal.report/internal/geo"
)

// Role distinguishes bridges that can be a vessel's target from those a
// vessel merely passes on the way.
type Role string

const (
	RoleOpenable     Role = "openable"
	RoleIntermediate Role = "intermediate"
)

// Direction of travel along the canal. Sequence indices increase northward.
type Direction string

const (
	DirectionUnknown Direction = ""
	Northbound       Direction = "northbound"
	Southbound       Direction = "southbound"
)

// Step returns +1 for northbound, -1 for southbound and 0 otherwise.
func (d Direction) Step() int {
	switch d {
	case Northbound:
		return 1
	case Southbound:
		return -1
	default:
		return 0
	}
}

// Bridge is immutable once the registry is built.
type Bridge struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	RadiusM        float64 `json:"radius_m"`
	AxisBearingDeg float64 `json:"axis_bearing_deg"`
	Role           Role    `json:"role"`
	NeverOpens     bool    `json:"never_opens"`
	Sequence       int     `json:"sequence"`
}

// Point returns the bridge position.
func (b Bridge) Point() geo.Point { return geo.Point{Lat: b.Lat, Lon: b.Lon} }

// Openable reports whether the bridge can be a target.
func (b Bridge) Openable() bool { return b.Role == RoleOpenable }

// defaultTable is the Trollhätte canal bridge set, south to north.
var defaultTable = []Bridge{
	{ID: "olidebron", Name: "Olidebron", Lat: 58.272743, Lon: 12.275116, RadiusM: 300, AxisBearingDeg: 22, Role: RoleIntermediate, Sequence: 0},
	{ID: "klaffbron", Name: "Klaffbron", Lat: 58.284096, Lon: 12.283930, RadiusM: 300, AxisBearingDeg: 25, Role: RoleOpenable, Sequence: 1},
	{ID: "jarnvagsbron", Name: "Järnvägsbron", Lat: 58.291640, Lon: 12.292025, RadiusM: 300, AxisBearingDeg: 32, Role: RoleIntermediate, Sequence: 2},
	{ID: "stridsbergsbron", Name: "Stridsbergsbron", Lat: 58.293524, Lon: 12.294566, RadiusM: 300, AxisBearingDeg: 32, Role: RoleOpenable, Sequence: 3},
	{ID: "stallbackabron", Name: "Stallbackabron", Lat: 58.311430, Lon: 12.314564, RadiusM: 300, AxisBearingDeg: 30, Role: RoleIntermediate, NeverOpens: true, Sequence: 4},
}

// Registry is a read-only, sequence-ordered bridge table. It is safe for
// concurrent use because nothing mutates it after construction.
type Registry struct {
	ordered []Bridge
	byID    map[string]int
}

// DefaultRegistry returns the built-in canal topology.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("bridges: built-in table invalid: %v", err))
	}
	return r
}

// RegistryFromTuning builds the registry from the tuning file's bridges
// array, falling back to the built-in table when the file has none.
func RegistryFromTuning(cfg *config.TuningConfig) (*Registry, error) {
	if cfg == nil || len(cfg.Bridges) == 0 {
		return DefaultRegistry(), nil
	}
	list := make([]Bridge, 0, len(cfg.Bridges))
	for _, bc := range cfg.Bridges {
		list = append(list, Bridge{
			ID:             bc.ID,
			Name:           bc.Name,
			Lat:            bc.Lat,
			Lon:            bc.Lon,
			RadiusM:        bc.RadiusM,
			AxisBearingDeg: bc.AxisBearingDeg,
			Role:           Role(bc.Role),
			NeverOpens:     bc.NeverOpens,
			Sequence:       bc.Sequence,
		})
	}
	return NewRegistry(list)
}

// NewRegistry validates and orders a bridge list. Sequence indices must be
// unique and at least one bridge must be openable.
func NewRegistry(list []Bridge) (*Registry, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("bridge registry is empty")
	}

	ordered := make([]Bridge, len(list))
	copy(ordered, list)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Sequence < ordered[j].Sequence })

	byID := make(map[string]int, len(ordered))
	openable := 0
	for i, b := range ordered {
		if b.ID == "" {
			return nil, fmt.Errorf("bridge at sequence %d has no id", b.Sequence)
		}
		if _, dup := byID[b.ID]; dup {
			return nil, fmt.Errorf("duplicate bridge id %q", b.ID)
		}
		if i > 0 && ordered[i-1].Sequence == b.Sequence {
			return nil, fmt.Errorf("bridges %q and %q share sequence %d", ordered[i-1].ID, b.ID, b.Sequence)
		}
		switch b.Role {
		case RoleOpenable:
			openable++
		case RoleIntermediate:
		default:
			return nil, fmt.Errorf("bridge %q has unknown role %q", b.ID, b.Role)
		}
		byID[b.ID] = i
	}
	if openable == 0 {
		return nil, fmt.Errorf("bridge registry has no openable bridge")
	}

	return &Registry{ordered: ordered, byID: byID}, nil
}

// Get looks a bridge up by id.
func (r *Registry) Get(id string) (Bridge, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Bridge{}, false
	}
	return r.ordered[i], true
}

// Name returns the display name for id, or id itself when unknown.
func (r *Registry) Name(id string) string {
	if b, ok := r.Get(id); ok {
		return b.Name
	}
	return id
}

// Ordered returns every bridge, south to north.
func (r *Registry) Ordered() []Bridge {
	out := make([]Bridge, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Openable returns the openable bridges, south to north.
func (r *Registry) Openable() []Bridge {
	var out []Bridge
	for _, b := range r.ordered {
		if b.Openable() {
			out = append(out, b)
		}
	}
	return out
}

// Position returns the index of id in south-to-north order, or -1.
func (r *Registry) Position(id string) int {
	i, ok := r.byID[id]
	if !ok {
		return -1
	}
	return i
}

// NextOpenable returns the first openable bridge strictly beyond fromID in
// direction dir. ok is false at the end of the canal or when dir is unknown.
func (r *Registry) NextOpenable(fromID string, dir Direction) (Bridge, bool) {
	step := dir.Step()
	i, known := r.byID[fromID]
	if step == 0 || !known {
		return Bridge{}, false
	}
	for j := i + step; j >= 0 && j < len(r.ordered); j += step {
		if r.ordered[j].Openable() {
			return r.ordered[j], true
		}
	}
	return Bridge{}, false
}

// FinalOpenable returns the last openable bridge a vessel travelling in dir
// meets: the northernmost for northbound, the southernmost for southbound.
func (r *Registry) FinalOpenable(dir Direction) (Bridge, bool) {
	open := r.Openable()
	switch dir {
	case Northbound:
		return open[len(open)-1], true
	case Southbound:
		return open[0], true
	default:
		return Bridge{}, false
	}
}

// Nearest returns the bridge closest to p and the distance to it in metres.
func (r *Registry) Nearest(p geo.Point) (Bridge, float64) {
	best := r.ordered[0]
	bestD := geo.Distance(p, best.Point())
	for _, b := range r.ordered[1:] {
		if d := geo.Distance(p, b.Point()); d < bestD {
			best, bestD = b, d
		}
	}
	return best, bestD
}

// Beyond reports whether toID lies further along the canal than fromID for
// a vessel travelling in dir. With an unknown direction any two distinct
// bridges qualify.
func (r *Registry) Beyond(fromID, toID string, dir Direction) bool {
	from, ok := r.byID[fromID]
	if !ok {
		return false
	}
	to, ok := r.byID[toID]
	if !ok || to == from {
		return false
	}
	step := dir.Step()
	if step == 0 {
		return true
	}
	return (to-from)*step > 0
}
