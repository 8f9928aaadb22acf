// Package bridgetext renders the live vessel set into the one sentence shown
// on the canal display.
package bridgetext

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/banshee-data/canal.report/internal/bridges"
	"github.com/banshee-data/canal.report/internal/vessel"
)

// Composer builds the display sentence. It is pure: the same views always
// give the same text.
type Composer struct {
	registry *bridges.Registry
}

// NewComposer creates a Composer.
func NewComposer(registry *bridges.Registry) *Composer {
	return &Composer{registry: registry}
}

// Compose renders views. A vessel under an opening bridge wins outright.
// Otherwise vessels are grouped by the bridge they are heading for and each
// group reports its highest-priority status (passed, then waiting, then
// approaching) with a count. Groups follow the bridge sequence and are
// joined with "; ". With nothing relevant the default sentence is returned.
func (c *Composer) Compose(views []vessel.View) string {
	var under []vessel.View
	groups := make(map[string][]vessel.View)

	for _, v := range views {
		sb, known := c.registry.Get(v.StatusBridge)
		switch v.Status {
		case vessel.StatusUnderBridge:
			if known && !sb.NeverOpens {
				under = append(under, v)
				continue
			}
		case vessel.StatusPassed, vessel.StatusWaiting, vessel.StatusApproaching:
		default:
			continue
		}
		if !known {
			continue
		}
		key := v.TargetBridge
		if _, ok := c.registry.Get(key); !ok {
			key = sb.ID
		}
		groups[key] = append(groups[key], v)
	}

	if len(under) > 0 {
		return c.opening(under)
	}
	if len(groups) == 0 {
		return c.Default()
	}

	var parts []string
	for _, key := range c.inSequence(groups) {
		parts = append(parts, c.group(groups[key])...)
	}
	return strings.Join(parts, "; ")
}

// Default is the sentence shown when no vessel is relevant.
func (c *Composer) Default() string {
	var names []string
	for _, b := range c.registry.Openable() {
		names = append(names, b.Name)
	}
	return "No boats near " + joinOr(names)
}

func (c *Composer) opening(under []vessel.View) string {
	byBridge := make(map[string][]vessel.View)
	for _, v := range under {
		byBridge[v.StatusBridge] = append(byBridge[v.StatusBridge], v)
	}
	var parts []string
	for _, id := range c.inSequence(byBridge) {
		s := "Bridge opening in progress at " + c.registry.Name(id)
		if n := len(byBridge[id]); n > 1 {
			s += fmt.Sprintf(" (%d boats)", n)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "; ")
}

// group renders the top-priority members of one target group, one phrase
// per status bridge.
func (c *Composer) group(views []vessel.View) []string {
	top := rank(views[0])
	for _, v := range views[1:] {
		if r := rank(v); r > top {
			top = r
		}
	}
	byBridge := make(map[string][]vessel.View)
	for _, v := range views {
		if rank(v) == top {
			byBridge[v.StatusBridge] = append(byBridge[v.StatusBridge], v)
		}
	}
	var out []string
	for _, id := range c.inSequence(byBridge) {
		out = append(out, c.phrase(byBridge[id]))
	}
	return out
}

// rank orders statuses for display. Under-bridge only reaches a group at a
// bridge that never opens, where it reads as passing.
func rank(v vessel.View) int {
	switch v.Status {
	case vessel.StatusPassed:
		return 3
	case vessel.StatusWaiting, vessel.StatusUnderBridge:
		return 2
	case vessel.StatusApproaching:
		return 1
	}
	return 0
}

// phrase renders vessels that share a status and a status bridge.
func (c *Composer) phrase(views []vessel.View) string {
	v := views[0]
	n := len(views)
	sb, _ := c.registry.Get(v.StatusBridge)
	target := ""
	if v.TargetBridge != "" && v.TargetBridge != sb.ID {
		target = c.registry.Name(v.TargetBridge)
	}
	eta := etaSuffix(views)

	switch {
	case v.Status == vessel.StatusPassed:
		if target == "" {
			return subject(n, "has") + " just passed " + sb.Name
		}
		return subject(n, "has") + " just passed " + sb.Name + ", heading for " + target + eta

	case sb.NeverOpens:
		if target == "" {
			return subject(n, "is") + " passing " + sb.Name
		}
		return subject(n, "is") + " passing " + sb.Name + ", heading for " + target + eta

	case v.Status == vessel.StatusWaiting:
		if target == "" {
			if sb.Openable() {
				return subject(n, "is") + " waiting for " + sb.Name + " to open"
			}
			return subject(n, "is") + " waiting at " + sb.Name
		}
		return subject(n, "is") + " waiting at " + sb.Name + ", heading for " + target

	default:
		if target == "" {
			return subject(n, "is") + " approaching " + sb.Name + eta
		}
		return subject(n, "is") + " approaching " + sb.Name + " on the way to " + target + eta
	}
}

func subject(n int, verb string) string {
	if n == 1 {
		return "A boat " + verb
	}
	if verb == "is" {
		verb = "are"
	} else if verb == "has" {
		verb = "have"
	}
	return fmt.Sprintf("%d boats %s", n, verb)
}

// etaSuffix reports the earliest ETA among views, or nothing when none has
// one.
func etaSuffix(views []vessel.View) string {
	best := math.Inf(1)
	for _, v := range views {
		if v.ETAMinutes != nil && *v.ETAMinutes < best {
			best = *v.ETAMinutes
		}
	}
	if math.IsInf(best, 1) {
		return ""
	}
	return ", ETA " + formatMinutes(best)
}

func formatMinutes(m float64) string {
	if m < 1 {
		return "under a minute"
	}
	r := int(math.Round(m))
	if r == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", r)
}

// inSequence returns the keys of m that name bridges, ordered south to
// north.
func (c *Composer) inSequence(m map[string][]vessel.View) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		pi, pj := c.registry.Position(keys[i]), c.registry.Position(keys[j])
		if pi != pj {
			return pi < pj
		}
		return keys[i] < keys[j]
	})
	return keys
}

func joinOr(names []string) string {
	switch len(names) {
	case 0:
		return "the canal"
	case 1:
		return names[0]
	}
	return strings.Join(names[:len(names)-1], ", ") + " or " + names[len(names)-1]
}
