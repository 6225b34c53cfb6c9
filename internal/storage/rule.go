package storage

import (
	"net/netip"

	"github.com/jr42/homenet-pa/internal/pa"
)

// NewStorageRule builds the optional built-in storage rule: it proposes
// the most-recently-cached prefix for an LDP's link that still fits
// inside the DP and isn't overlapped by a higher-precedence peer
// advertisement.
func NewStorageRule(store *Store, priority uint16, paPriority uint8) *pa.Rule {
	return &pa.Rule{
		Name: "storage",
		MaxPriority: func(ldp *pa.LDP) uint16 {
			if _, ok := pickCandidate(store, ldp, nil); ok {
				return priority
			}
			return 0
		},
		Match: func(ldp *pa.LDP, _ uint16, ctx *pa.RuleContext) pa.RuleArg {
			prefix, ok := pickCandidate(store, ldp, ctx)
			if !ok {
				return pa.RuleArg{Target: pa.NoMatch}
			}
			return pa.RuleArg{
				Target:       pa.Publish,
				Prefix:       prefix,
				PAPriority:   paPriority,
				RulePriority: priority,
			}
		},
	}
}

// pickCandidate returns the newest cached prefix for ldp.Link that fits
// inside ldp.DP and (when ctx is available) doesn't collide with the
// best overlapping peer advertisement.
func pickCandidate(store *Store, ldp *pa.LDP, ctx *pa.RuleContext) (netip.Prefix, bool) {
	for _, cand := range store.Entries(ldp.Link) {
		if !fitsWithin(ldp.DP.Prefix, cand) {
			continue
		}
		if ctx != nil && ctx.Best != nil && ctx.Best.Prefix.Overlaps(cand) {
			continue
		}
		return cand, true
	}
	return netip.Prefix{}, false
}

func fitsWithin(dp, cand netip.Prefix) bool {
	return cand.Bits() >= dp.Bits() && dp.Overlaps(cand) && dp.Contains(cand.Addr())
}
