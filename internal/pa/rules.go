package pa

import (
	"crypto/md5"
	"encoding/binary"
	"math/rand"
	"net/netip"

	"github.com/bits-and-blooms/bitset"

	"github.com/jr42/homenet-pa/internal/trie"
)

// runRulePass is the two-step dispatch protocol: a cheap priority probe
// followed by a match pass in descending probed-priority order, stopping
// early once the next probe can no longer beat what's already been
// accepted.
func (c *Core) runRulePass(ldp *LDP, ctx *RuleContext) (RuleTarget, RuleArg, *Rule) {
	type probed struct {
		rule *Rule
		prio uint16
	}
	candidates := make([]probed, 0, len(c.rules))
	for _, r := range c.rules {
		if r.Filter != nil && !r.Filter.Accept(ldp) {
			continue
		}
		if r.MaxPriority == nil {
			continue
		}
		p := r.MaxPriority(ldp)
		if p == 0 {
			continue
		}
		candidates = append(candidates, probed{r, p})
	}
	// Descending by probed priority; stable so registration order breaks
	// ties (insertion order, as with the trie's multisets).
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].prio > candidates[j-1].prio; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}

	var (
		bestTarget = NoMatch
		bestArg    RuleArg
		bestRule   *Rule
		bestPrio   uint16
	)
	for _, cand := range candidates {
		if cand.prio <= bestPrio {
			break
		}
		arg := cand.rule.Match(ldp, bestPrio, ctx)
		if arg.Target == NoMatch {
			continue
		}
		if arg.RulePriority <= bestPrio {
			continue
		}
		bestTarget, bestArg, bestRule, bestPrio = arg.Target, arg, cand.rule, arg.RulePriority
	}
	return bestTarget, bestArg, bestRule
}

// NewAdoptRule builds the built-in Adopt rule: it proposes to adopt a
// surviving, unpublished, uncontested assignment.
func NewAdoptRule(name string, priority uint16, paPriority uint8) *Rule {
	return &Rule{
		Name: name,
		MaxPriority: func(ldp *LDP) uint16 {
			if ldp.Assigned && !ldp.Published && ldp.best == nil && ldp.valid {
				return priority
			}
			return 0
		},
		Match: func(ldp *LDP, _ uint16, _ *RuleContext) RuleArg {
			return RuleArg{Target: Adopt, PAPriority: paPriority, RulePriority: priority}
		},
	}
}

// NewStaticRule builds the built-in Static rule: it always proposes the
// same configured prefix, wholly contained in the LDP's DP, subject to
// override thresholds against rival peer or local publishers.
func NewStaticRule(cfg StaticRuleConfig) *Rule {
	return &Rule{
		Name: cfg.Name,
		MaxPriority: func(ldp *LDP) uint16 {
			if !ldp.DP.Prefix.Contains(cfg.Prefix.Addr()) || cfg.Prefix.Bits() < ldp.DP.Prefix.Bits() {
				return 0
			}
			return cfg.RulePriority
		},
		Match: func(ldp *LDP, bestRival uint16, ctx *RuleContext) RuleArg {
			if ldp.best != nil {
				if ldp.best.Priority >= cfg.OverridePriority {
					return RuleArg{Target: NoMatch}
				}
				if cfg.Safety {
					return RuleArg{Target: NoMatch}
				}
			}
			if ldp.Published && ldp.RulePriority >= cfg.OverrideRulePriority {
				return RuleArg{Target: NoMatch}
			}
			return RuleArg{
				Target:       Publish,
				Prefix:       cfg.Prefix,
				PAPriority:   cfg.PAPriority,
				RulePriority: cfg.RulePriority,
			}
		},
	}
}

// StaticRuleConfig parametrizes NewStaticRule.
type StaticRuleConfig struct {
	Name                 string
	Prefix               netip.Prefix
	PAPriority           uint8
	RulePriority         uint16
	OverridePriority     uint8
	OverrideRulePriority uint16
	// Safety, when set, declines whenever any Best Assignment exists,
	// whatever its priority, rather than overriding it; without it only
	// a rival at or above OverridePriority is declined.
	Safety bool
}

// RandomRuleConfig parametrizes NewRandomRule.
type RandomRuleConfig struct {
	Name                   string
	RulePriority           uint16
	PAPriority             uint8
	DesiredPrefixLen       int
	RandomSetSize          uint32
	PseudoRandomTentatives int
	Seed                   []byte
}

// RulePrefixCount is the lazily-computed, per-routine-run cache of
// available-prefix counts by length that the Random rule's count pass
// produces. It is shared across rule attempts within a single routine
// invocation via RuleContext so repeated probes don't re-walk the trie.
type RulePrefixCount struct {
	// byLen[p] is the number of maximal available sub-prefixes of the DP
	// that have length p, saturating at 65535.
	byLen map[int]uint16
	// present marks which lengths in [0,128] have a nonzero byLen entry,
	// so the accumulation loop in pickRandomPrefix can skip a map probe
	// for lengths it already knows are empty.
	present *bitset.BitSet
}

func computePrefixCount(t *trie.Trie, dp netip.Prefix, maxLen int) *RulePrefixCount {
	counts := make(map[int]uint16, maxLen+1)
	present := bitset.New(129)
	t.WalkAvailable(dp, func(avail netip.Prefix) {
		p := avail.Bits()
		if p > maxLen {
			p = maxLen
		}
		if counts[p] < 65535 {
			counts[p]++
		}
		present.Set(uint(p))
	})
	return &RulePrefixCount{byLen: counts, present: present}
}

// NewRandomRule builds the built-in Random rule: it first backs off, then
// on its second invocation (backoff=true) picks a prefix via the
// count/candidate-subset/pseudo-random/fallback pipeline.
func NewRandomRule(cfg RandomRuleConfig) *Rule {
	return &Rule{
		Name: cfg.Name,
		MaxPriority: func(ldp *LDP) uint16 {
			if ldp.best == nil && (!ldp.valid || !ldp.Published) {
				return cfg.RulePriority
			}
			return 0
		},
		Match: func(ldp *LDP, bestRival uint16, ctx *RuleContext) RuleArg {
			if !ctx.Backoff {
				return RuleArg{Target: Backoff, BackoffDuration: 0, RulePriority: cfg.RulePriority}
			}
			prefix, ok := pickRandomPrefix(ctx, &ldp.DP.Prefix, cfg)
			if !ok {
				return RuleArg{Target: NoMatch}
			}
			return RuleArg{
				Target:       Publish,
				Prefix:       prefix,
				PAPriority:   cfg.PAPriority,
				RulePriority: cfg.RulePriority,
			}
		},
	}
}

func pickRandomPrefix(ctx *RuleContext, dp *netip.Prefix, cfg RandomRuleConfig) (netip.Prefix, bool) {
	if ctx.count == nil {
		ctx.count = computePrefixCount(&ctx.Core.prefixes, *dp, cfg.DesiredPrefixLen)
	}
	count := ctx.count

	// Candidate subset: walking p = desired downwards, accumulate
	// count[p] * 2^(desired-p) until random_set_size is reached.
	minPlen := cfg.DesiredPrefixLen
	var accumulated uint64
	for p := cfg.DesiredPrefixLen; p >= dp.Bits(); p-- {
		if !count.present.Test(uint(p)) {
			continue
		}
		c := uint64(count.byLen[p])
		accumulated += c << uint(cfg.DesiredPrefixLen-p)
		minPlen = p
		if accumulated >= uint64(cfg.RandomSetSize) {
			break
		}
	}
	if accumulated == 0 {
		return netip.Prefix{}, false
	}

	// Pseudo-random tentatives.
	for i := 0; i < cfg.PseudoRandomTentatives; i++ {
		cand := prand(cfg.Seed, i, *dp, cfg.DesiredPrefixLen)
		if candidateWithinAvailable(&ctx.Core.prefixes, cand, minPlen) {
			return cand, true
		}
	}

	// Uniform-random fallback: pick the k-th desired-length candidate
	// inside an available prefix of length >= minPlen.
	k := rand.Uint64() % accumulated
	var chosen netip.Prefix
	found := false
	ctx.Core.prefixes.WalkAvailable(*dp, func(avail netip.Prefix) {
		if found || avail.Bits() < minPlen {
			return
		}
		n := uint64(1) << uint(cfg.DesiredPrefixLen-avail.Bits())
		if k < n {
			chosen = subPrefixAt(avail, cfg.DesiredPrefixLen, k)
			found = true
			return
		}
		k -= n
	})
	if !found {
		return netip.Prefix{}, false
	}
	return chosen, true
}

func candidateWithinAvailable(t *trie.Trie, cand netip.Prefix, minPlen int) bool {
	ok := false
	t.WalkAvailable(cand, func(avail netip.Prefix) {
		if avail.Bits() <= cand.Bits() && avail.Bits() >= minPlen {
			ok = true
		}
	})
	return ok
}

// prand is the MD5-based pseudo-random tentative generator. The DP's own
// high-order bits are kept so the tentative always falls inside the DP;
// only the remaining desired_plen-dp.Bits() bits come from the hash.
func prand(seed []byte, i int, dp netip.Prefix, desiredPlen int) netip.Prefix {
	h := md5.New()
	h.Write(seed)
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], uint64(i))
	h.Write(ctr[:])
	sum := h.Sum(nil)

	b := dp.Addr().As16()
	var rnd [16]byte
	copy(rnd[:], sum)
	for bit := dp.Bits(); bit < desiredPlen; bit++ {
		byteIdx, bitIdx := bit/8, 7-uint(bit%8)
		if rnd[byteIdx]&(1<<bitIdx) != 0 {
			b[byteIdx] |= 1 << bitIdx
		} else {
			b[byteIdx] &^= 1 << bitIdx
		}
	}
	addr := netip.AddrFrom16(b)
	if dp.Addr().Is4In6() {
		addr = addr.Unmap()
	}
	p, _ := addr.Prefix(desiredPlen)
	return p
}

// subPrefixAt returns the k-th /plen sub-prefix of avail, in address
// order.
func subPrefixAt(avail netip.Prefix, plen int, k uint64) netip.Prefix {
	b := avail.Addr().As16()
	extra := plen - avail.Bits()
	for i := extra - 1; i >= 0; i-- {
		bit := avail.Bits() + (extra - 1 - i)
		byteIdx, bitIdx := bit/8, 7-uint(bit%8)
		if k&(1<<uint(i)) != 0 {
			b[byteIdx] |= 1 << bitIdx
		} else {
			b[byteIdx] &^= 1 << bitIdx
		}
	}
	addr := netip.AddrFrom16(b)
	if avail.Addr().Is4In6() {
		addr = addr.Unmap()
	}
	p, _ := addr.Prefix(plen)
	return p
}
