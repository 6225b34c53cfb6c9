package pa

import (
	"time"

	"github.com/jr42/homenet-pa/internal/trie"
)

// schedule arms the routine timer at runDelay from now, but only if it
// isn't already pending, so bursts of events coalesce into one run.
func (c *Core) schedule(ldp *LDP) {
	if ldp.routinePending {
		return
	}
	ldp.routinePending = true
	ldp.routineTimer = c.clock.AfterFunc(c.runDelay, func() {
		ldp.routinePending = false
		c.routine(ldp, false)
	})
}

// armBackoff (re-)arms the single backoff slot, replacing whatever
// purpose it previously served.
func (c *Core) armBackoff(ldp *LDP, kind backoffKind, d time.Duration) {
	if ldp.backoffTimer != nil {
		ldp.backoffTimer.Stop()
	}
	ldp.backoffKind = kind
	ldp.backoffDeadline = c.clock.Now().Add(d)
	ldp.backoffArmed = true
	ldp.backoffTimer = c.clock.AfterFunc(d, func() { c.backoffExpire(ldp) })
}

func (c *Core) cancelBackoff(ldp *LDP) {
	if ldp.backoffTimer != nil {
		ldp.backoffTimer.Stop()
	}
	ldp.backoffArmed = false
	ldp.backoffKind = backoffNone
}

// backoffExpire is the single-slot timer's expiry handler. It dispatches
// on the recorded backoffKind rather than re-deriving the timer's purpose
// from ldp's flags: deriving from published/assigned conflates "assigned
// via a local rule" with "assigned by passively accepting a peer's Best
// Assignment" -- the latter is never published, yet still needs its apply
// backoff to mature into `applied`. Keying off the kind this LDP's own
// armBackoff recorded avoids that ambiguity.
func (c *Core) backoffExpire(ldp *LDP) {
	kind := ldp.backoffKind
	ldp.backoffArmed = false
	switch kind {
	case backoffAdopt:
		ldp.Adopting = false
		if !ldp.Published {
			ldp.Published = true
			c.notifyPublished(ldp)
		}
		if !ldp.Applied {
			c.armBackoff(ldp, backoffApply, 2*c.floodingDelay)
		}
	case backoffApply:
		if ldp.Assigned && !ldp.Applied {
			ldp.Applied = true
			c.log.Info("prefix applied",
				"link", ldp.Link.Name, "dp", ldp.DP.Name, "prefix", ldp.Prefix.String())
			c.notifyApplied(ldp)
		}
	default:
		c.routine(ldp, true)
	}
}

// precedes reports whether advertisement a takes precedence over ldp:
// ldp is unpublished, or a outranks ldp's published priority, or they
// tie and a's advertiser outranks the local node.
func (c *Core) precedes(a *ADVP, ldp *LDP) bool {
	if !ldp.Published {
		return true
	}
	if a.Priority > ldp.PAPriority {
		return true
	}
	if a.Priority == ldp.PAPriority && a.NodeID.Compare(c.NodeID) > 0 {
		return true
	}
	return false
}

// bestCandidate walks every ADVP overlapping ldp's DP on ldp's Link and
// returns the one with the highest priority, tie-broken by highest
// node-id.
func (c *Core) bestCandidate(ldp *LDP) *ADVP {
	var best *ADVP
	c.prefixes.WalkUpDown(ldp.DP.Prefix, func(e trie.Element) {
		a, ok := e.(*ADVP)
		if !ok || a.Link != ldp.Link {
			return
		}
		if best == nil || a.Priority > best.Priority ||
			(a.Priority == best.Priority && a.NodeID.Compare(best.NodeID) > 0) {
			best = a
		}
	})
	return best
}

// bestAssignment is the Best Assignment B: the raw candidate, unless it
// doesn't precede the current LDP, in which case there is none.
func (c *Core) bestAssignment(ldp *LDP) *ADVP {
	cand := c.bestCandidate(ldp)
	if cand == nil || !c.precedes(cand, ldp) {
		return nil
	}
	return cand
}

// globallyValid reports that no ADVP anywhere overlapping ldp's assigned
// prefix, on any link, precedes ldp -- catching collisions with peer
// assignments on other links covering the same range. Delegated prefixes
// are assumed not to overlap each other; behaviour is otherwise
// undefined.
func (c *Core) globallyValid(ldp *LDP) bool {
	valid := true
	c.prefixes.WalkUpDown(ldp.Prefix, func(e trie.Element) {
		a, ok := e.(*ADVP)
		if !ok {
			return
		}
		if c.precedes(a, ldp) {
			valid = false
		}
	})
	return valid
}

// unassign is the atomic teardown used mid-routine and by rule-driven
// Destroy, clearing applied, then published, then assigned. Note the
// link/DP removal cascade in core.go clears published before applied;
// the two orders are deliberate, not to be harmonised.
func (c *Core) unassign(ldp *LDP) {
	if ldp.Applied {
		ldp.Applied = false
		c.notifyApplied(ldp)
	}
	if ldp.Published {
		ldp.Published = false
		c.notifyPublished(ldp)
	}
	c.cancelBackoff(ldp)
	ldp.Adopting = false
	if ldp.Assigned {
		c.prefixes.Remove(ldp)
		ldp.Assigned = false
		ldp.Rule = nil
		c.log.V(1).Info("prefix unassigned",
			"link", ldp.Link.Name, "dp", ldp.DP.Name, "prefix", ldp.Prefix.String())
		c.notifyAssigned(ldp)
	}
	for _, sibling := range c.ldpsByDP[ldp.DP] {
		if sibling != ldp && !sibling.Assigned {
			c.schedule(sibling)
		}
	}
}

// routine is the per-LDP state machine step.
func (c *Core) routine(ldp *LDP, backoff bool) {
	best := c.bestAssignment(ldp)
	ldp.best = best

	// Step 1: recompute validity against the *current* assignment, before
	// anything below mutates it.
	switch {
	case !ldp.Assigned:
		ldp.valid = true
	case best == nil:
		ldp.valid = c.globallyValid(ldp)
	default:
		// The assignment stays valid only while it matches the Best
		// Assignment's prefix.
		ldp.valid = ldp.Prefix == best.Prefix
	}

	// Step 2: rule pass. The invalid teardown waits for step 3 so the
	// rules' override guards still see the publication they are judged
	// against -- tearing down first would let a rule below the published
	// RulePriority slip past its OverrideRulePriority check.
	ctx := &RuleContext{Core: c, Best: best, Valid: ldp.valid, Backoff: backoff}
	target, arg, rule := c.runRulePass(ldp, ctx)
	c.applyRuleTarget(ldp, target, arg, rule)

	// Step 3: reconcile. An invalid assignment is torn down unless the
	// rule pass just published over it -- the publication supersedes the
	// validity verdict computed against the pre-rule state.
	tornDown := false
	if ldp.Assigned && !ldp.valid && target != Publish {
		c.unassign(ldp)
		tornDown = true
	}

	// The rule pass may have published over the candidate (a Static rule
	// overriding a lower-priority rival), so B is re-evaluated against the
	// publication before the handoff below.
	best = c.bestAssignment(ldp)
	ldp.best = best

	// The orphan check runs after rule evaluation so a rule's Adopt or
	// Publish this run escapes it; an assignment backed by a Best
	// Assignment is not an orphan.
	if ldp.Assigned && best != nil && ldp.Published {
		ldp.Published = false
		c.notifyPublished(ldp)
	}
	if ldp.Assigned && !ldp.Published && !ldp.Adopting && best == nil {
		c.unassign(ldp)
	}
	if !ldp.Assigned && best != nil {
		ldp.Assigned = true
		ldp.Prefix = best.Prefix
		_ = c.prefixes.Insert(ldp.Prefix, ldp)
		c.log.V(1).Info("accepted peer assignment",
			"link", ldp.Link.Name, "dp", ldp.DP.Name, "prefix", ldp.Prefix.String())
		c.notifyAssigned(ldp)
		c.armBackoff(ldp, backoffApply, 2*c.floodingDelay)
	}
	if tornDown && !ldp.Assigned {
		// The rules only saw the now-gone assignment this pass; give them
		// a clean-slate run over the freed space.
		c.schedule(ldp)
	}
}

// applyRuleTarget enacts the winning rule's proposed transition.
// Unmet preconditions ignore the proposal silently.
func (c *Core) applyRuleTarget(ldp *LDP, target RuleTarget, arg RuleArg, rule *Rule) {
	switch target {
	case NoMatch:
		return
	case Adopt:
		if !(ldp.Assigned && !ldp.Published && ldp.best == nil) {
			return
		}
		ldp.Adopting = true
		ldp.PAPriority = arg.PAPriority
		ldp.RulePriority = arg.RulePriority
		ldp.Rule = rule
		d := arg.BackoffDuration
		if d == 0 {
			d = defaultAdoptWindow(c.floodingDelay)
		}
		c.armBackoff(ldp, backoffAdopt, d)
	case Backoff:
		if ldp.Assigned {
			return
		}
		d := arg.BackoffDuration
		if d == 0 {
			d = defaultCreationWindow(c.floodingDelay)
		}
		c.armBackoff(ldp, backoffCreation, d)
	case Publish:
		if ldp.Assigned && ldp.Prefix != arg.Prefix {
			c.unassign(ldp)
		}
		if !ldp.Assigned {
			ldp.Assigned = true
			ldp.Prefix = arg.Prefix
			_ = c.prefixes.Insert(ldp.Prefix, ldp)
			c.notifyAssigned(ldp)
		}
		ldp.PAPriority = arg.PAPriority
		ldp.RulePriority = arg.RulePriority
		ldp.Rule = rule
		if !ldp.Published {
			ldp.Published = true
			c.log.V(1).Info("prefix published",
				"link", ldp.Link.Name, "dp", ldp.DP.Name, "prefix", ldp.Prefix.String(),
				"rule", rule.Name, "paPriority", arg.PAPriority)
			c.notifyPublished(ldp)
		}
		c.armBackoff(ldp, backoffApply, 2*c.floodingDelay)
	case Destroy:
		if !(ldp.Published || ldp.Adopting) {
			return
		}
		c.unassign(ldp)
	}
}

// defaultCreationWindow/defaultAdoptWindow are the fallback backoff
// windows used when the matching rule does not choose its own duration.
func defaultCreationWindow(floodingDelay time.Duration) time.Duration {
	return 2 * floodingDelay
}

func defaultAdoptWindow(floodingDelay time.Duration) time.Duration {
	return 2 * floodingDelay
}
