package pa

import (
	"net/netip"
	"time"
)

// Link is the abstract broadcast domain prefixes are assigned on. Owned by
// the caller; the core only keeps a back-reference.
type Link struct {
	// Name is a stable identifier used in logging and storage.
	Name string
	// Type is an opaque tag consumers can match on with a TypeFilter.
	Type string
}

// DP is a Delegated Prefix the node is authorised to sub-assign. Owned by
// the caller.
type DP struct {
	// Prefix is the delegated range.
	Prefix netip.Prefix
	// Name is a stable identifier used in logging.
	Name string
	// Type is an opaque tag consumers can match on with a TypeFilter.
	Type string
}

// ADVP is a peer's opinion about which prefix it is using on a link.
// Ownership stays with the flooding-layer collaborator that calls ADVPAdd;
// it must remain valid and unchanged until ADVPDel.
type ADVP struct {
	NodeID   NodeID
	Prefix   netip.Prefix
	Priority uint8
	// Link is the Shared Link this opinion concerns, or nil for a
	// link-agnostic (global) opinion.
	Link *Link

	core *Core
}

// TriePrefix implements trie.Element.
func (a *ADVP) TriePrefix() netip.Prefix { return a.Prefix }

// User receives per-LDP callbacks on assigned/published/applied
// transitions. Embed NopUser to implement only the callbacks you need.
type User interface {
	OnAssigned(*LDP)
	OnPublished(*LDP)
	OnApplied(*LDP)
}

// NopUser is a User implementation whose callbacks all do nothing; embed
// it and override only what you need.
type NopUser struct{}

func (NopUser) OnAssigned(*LDP)  {}
func (NopUser) OnPublished(*LDP) {}
func (NopUser) OnApplied(*LDP)   {}

// RuleTarget is the action a Rule's Match proposes.
type RuleTarget int

const (
	NoMatch RuleTarget = iota
	Backoff
	Adopt
	Publish
	Destroy
)

func (t RuleTarget) String() string {
	switch t {
	case NoMatch:
		return "NoMatch"
	case Backoff:
		return "Backoff"
	case Adopt:
		return "Adopt"
	case Publish:
		return "Publish"
	case Destroy:
		return "Destroy"
	default:
		return "Unknown"
	}
}

// RuleArg is what a Rule's Match call fills in when it proposes an action.
type RuleArg struct {
	Target RuleTarget

	// Prefix/PAPriority are meaningful for Publish and Adopt. RulePriority
	// ranks every proposal in the rule pass: one whose RulePriority does
	// not exceed the best accepted so far (0 at the start) is dropped.
	Prefix       netip.Prefix
	PAPriority   uint8
	RulePriority uint16

	// BackoffDuration overrides the default window for Backoff/Adopt; zero
	// means "use the routine's default for this kind of backoff".
	BackoffDuration time.Duration
}

// RuleContext carries the per-routine-invocation state a Rule needs:
// the Best Assignment and validity the routine already computed (so rules
// never recompute it), plus the lazily-built prefix-count cache shared
// across rules/attempts within one routine run.
type RuleContext struct {
	Core    *Core
	Best    *ADVP
	Valid   bool
	Backoff bool

	count *RulePrefixCount
}

// Rule is a pluggable assignment policy.
type Rule struct {
	Name string
	// MaxPriority probes whether this rule is willing to match this LDP at
	// all (0 means "will not match"); cheap, called once per routine pass
	// before sorting. Pass a constant function for a statically-prioritized
	// rule.
	MaxPriority func(ldp *LDP) uint16
	// Match is called in descending max-priority order; ctx.Best/ctx.Valid
	// are already computed for this routine run.
	Match func(ldp *LDP, bestAcceptedRulePriority uint16, ctx *RuleContext) RuleArg
	// Filter restricts which LDPs this rule is even offered to. Nil means
	// AcceptAllFilter.
	Filter Filter
}
