package normalizer

import (
	"fmt"
	"strings"
)

// resolveConflicts handles expansions claimed by more than one origin
// pattern, which happens when overlapping ranges are learned through
// several catalogs. The most specific origin wins, measured by expansion
// fan-out; ties go to the earlier input record. Losing origins keep their
// non-overlapping expansions.
func resolveConflicts(origins []*origin) []string {
	claims := make(map[string][]*origin)
	var order []string
	for _, o := range origins {
		for _, p := range o.expanded {
			if claims[p] == nil {
				order = append(order, p)
			}
			claims[p] = append(claims[p], o)
		}
	}

	var notes []string
	for _, p := range order {
		claimants := claims[p]
		if len(claimants) < 2 {
			continue
		}

		winner := claimants[0]
		for _, c := range claimants[1:] {
			if len(c.expanded) < len(winner.expanded) {
				winner = c
			}
		}

		var losers []string
		for _, c := range claimants {
			if c == winner {
				continue
			}
			c.keep[p] = false
			losers = append(losers, fmt.Sprintf("%q in catalog %q", c.raw.Pattern, c.raw.RouteString))
		}
		notes = append(notes, fmt.Sprintf("conflict on %q: kept origin %q from catalog %q, suppressed %s",
			p, winner.raw.Pattern, winner.raw.RouteString, strings.Join(losers, ", ")))
	}

	for _, o := range origins {
		kept := 0
		for _, p := range o.expanded {
			if o.keep[p] {
				kept++
			}
		}
		if kept == 0 {
			notes = append(notes, fmt.Sprintf("pattern %q in catalog %q fully superseded by more specific patterns",
				o.raw.Pattern, o.raw.RouteString))
		}
	}
	return notes
}
