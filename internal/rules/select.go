// internal/rules/select.go
package rules

import (
	"time"

	"github.com/solatis/healthcert/internal/types"
)

// SelectRules returns the rules applicable at asOf.
//
// Without asOf every rule applies unchanged. With asOf, rules are grouped by
// identifier; within a group only versions whose [validFrom, validTo] contains
// asOf survive, and of those the one with the latest validFrom wins. The
// result keeps the order in which each identifier first appears.
func SelectRules(rules []types.Rule, asOf *time.Time) []types.Rule {
	if asOf == nil {
		return rules
	}

	var order []string
	best := make(map[string]int)
	for i, r := range rules {
		if _, seen := best[r.Identifier]; !seen {
			order = append(order, r.Identifier)
			best[r.Identifier] = -1
		}
		if !r.Contains(*asOf) {
			continue
		}
		if cur := best[r.Identifier]; cur < 0 || r.ValidFrom.After(rules[cur].ValidFrom.Time) {
			best[r.Identifier] = i
		}
	}

	selected := make([]types.Rule, 0, len(order))
	for _, id := range order {
		if idx := best[id]; idx >= 0 {
			selected = append(selected, rules[idx])
		}
	}
	return selected
}
