package pa

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/go-logr/logr"

	"github.com/jr42/homenet-pa/internal/trie"
)

// Core is the engine's entry point: node identity, flooding delay, the
// entity registry and the prefix trie that backs it. Core is
// single-threaded and cooperative: every exported method must be called
// from one goroutine at a time, and User callbacks fire synchronously
// from within the mutating call or a timer callback.
type Core struct {
	NodeID        NodeID
	floodingDelay time.Duration
	runDelay      time.Duration
	clock         Clock
	log           logr.Logger

	prefixes trie.Trie

	links []*Link
	dps   []*DP
	users []User
	rules []*Rule

	ldpsByLink map[*Link][]*LDP
	ldpsByDP   map[*DP][]*LDP
	ldpByPair  map[ldpKey]*LDP
}

// Init brings a zero-value Core to a usable state: node ID zero,
// default delays.
func (c *Core) Init(cfg Config) {
	c.runDelay = cfg.RunDelay
	if c.runDelay == 0 {
		c.runDelay = DefaultRunDelay
	}
	c.floodingDelay = cfg.FloodingDelay
	if c.floodingDelay == 0 {
		c.floodingDelay = DefaultFloodingDelay
	}
	c.clock = cfg.Clock
	if c.clock == nil {
		c.clock = RealClock
	}
	c.log = logr.Discard()
	c.ldpsByLink = make(map[*Link][]*LDP)
	c.ldpsByDP = make(map[*DP][]*LDP)
	c.ldpByPair = make(map[ldpKey]*LDP)
}

// SetLogger installs a structured logger; nil restores the discard
// logger.
func (c *Core) SetLogger(l logr.Logger) { c.log = l }

// FloodingDelay returns the currently configured flooding delay.
func (c *Core) FloodingDelay() time.Duration { return c.floodingDelay }

// SetNodeID sets the local node ID. If it changed, every LDP's routine is
// rescheduled, since the precedence predicate depends on node ID.
func (c *Core) SetNodeID(id NodeID) {
	if id == c.NodeID {
		return
	}
	c.NodeID = id
	for _, ldp := range c.ldpByPair {
		c.schedule(ldp)
	}
}

// SetFloodingDelay changes the flooding delay. Published LDPs with a
// pending backoff have their deadlines rescaled: extended by twice the
// increase, or capped at twice the new delay on a decrease.
func (c *Core) SetFloodingDelay(d time.Duration) error {
	if d < 0 || d >= MaxFloodingDelay {
		return fmt.Errorf("%w: flooding delay %s out of range", ErrInvalidArgument, d)
	}
	old := c.floodingDelay
	c.floodingDelay = d
	if d == old {
		return nil
	}
	for _, ldp := range c.ldpByPair {
		if !ldp.Published || !ldp.backoffArmed {
			continue
		}
		remaining := ldp.backoffDeadline.Sub(c.clock.Now())
		var next time.Duration
		if d > old {
			next = remaining + 2*(d-old)
		} else {
			capped := 2 * d
			if remaining < capped {
				next = remaining
			} else {
				next = capped
			}
		}
		if next < 0 {
			next = 0
		}
		c.armBackoff(ldp, ldp.backoffKind, next)
	}
	return nil
}

// LinkAdd registers a Link and allocates one LDP per existing DP. On
// allocation failure all LDPs created in this call are unwound and the
// Link is not registered.
func (c *Core) LinkAdd(l *Link) error {
	for _, existing := range c.links {
		if existing == l {
			return fmt.Errorf("%w: link %q", ErrAlreadyRegistered, l.Name)
		}
	}
	created := make([]*LDP, 0, len(c.dps))
	for _, dp := range c.dps {
		ldp, err := c.newLDP(l, dp)
		if err != nil {
			for _, u := range created {
				c.destroyLDP(u)
			}
			return fmt.Errorf("%w: %v", ErrAllocation, err)
		}
		created = append(created, ldp)
	}
	c.links = append(c.links, l)
	for _, ldp := range created {
		c.schedule(ldp)
	}
	return nil
}

// LinkDel unregisters a Link, driving every dependent LDP through the
// public transitions published->0, applied->0, assigned->0 (in that
// order) before freeing it.
func (c *Core) LinkDel(l *Link) {
	idx := -1
	for i, existing := range c.links {
		if existing == l {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	for _, ldp := range append([]*LDP(nil), c.ldpsByLink[l]...) {
		c.cascadeClear(ldp)
		c.destroyLDP(ldp)
	}
	c.links = append(c.links[:idx], c.links[idx+1:]...)
	delete(c.ldpsByLink, l)
}

// DPAdd registers a Delegated Prefix and allocates one LDP per existing
// Link, symmetric to LinkAdd.
func (c *Core) DPAdd(dp *DP) error {
	for _, existing := range c.dps {
		if existing == dp {
			return fmt.Errorf("%w: dp %q", ErrAlreadyRegistered, dp.Name)
		}
	}
	created := make([]*LDP, 0, len(c.links))
	for _, l := range c.links {
		ldp, err := c.newLDP(l, dp)
		if err != nil {
			for _, u := range created {
				c.destroyLDP(u)
			}
			return fmt.Errorf("%w: %v", ErrAllocation, err)
		}
		created = append(created, ldp)
	}
	c.dps = append(c.dps, dp)
	for _, ldp := range created {
		c.schedule(ldp)
	}
	return nil
}

// DPDel unregisters a Delegated Prefix, symmetric to LinkDel.
func (c *Core) DPDel(dp *DP) {
	idx := -1
	for i, existing := range c.dps {
		if existing == dp {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	for _, ldp := range append([]*LDP(nil), c.ldpsByDP[dp]...) {
		c.cascadeClear(ldp)
		c.destroyLDP(ldp)
	}
	c.dps = append(c.dps[:idx], c.dps[idx+1:]...)
	delete(c.ldpsByDP, dp)
}

func (c *Core) newLDP(l *Link, dp *DP) (*LDP, error) {
	k := ldpKey{l, dp}
	if _, exists := c.ldpByPair[k]; exists {
		return nil, fmt.Errorf("%w: ldp (%s,%s)", ErrAllocation, l.Name, dp.Name)
	}
	ldp := &LDP{Link: l, DP: dp, core: c}
	c.ldpByPair[k] = ldp
	c.ldpsByLink[l] = append(c.ldpsByLink[l], ldp)
	c.ldpsByDP[dp] = append(c.ldpsByDP[dp], ldp)
	return ldp, nil
}

func (c *Core) destroyLDP(ldp *LDP) {
	if ldp.routineTimer != nil {
		ldp.routineTimer.Stop()
	}
	if ldp.backoffTimer != nil {
		ldp.backoffTimer.Stop()
	}
	delete(c.ldpByPair, ldp.key())
	c.ldpsByLink[ldp.Link] = removeLDP(c.ldpsByLink[ldp.Link], ldp)
	c.ldpsByDP[ldp.DP] = removeLDP(c.ldpsByDP[ldp.DP], ldp)
}

func removeLDP(s []*LDP, ldp *LDP) []*LDP {
	for i, e := range s {
		if e == ldp {
			return append(s[:i:i], s[i+1:]...)
		}
	}
	return s
}

// cascadeClear drives published->0, applied->0, assigned->0 in that order
// with notifications, without touching registry bookkeeping. Users
// observe the full sequence for one LDP before the next LDP's begins.
func (c *Core) cascadeClear(ldp *LDP) {
	if ldp.Published {
		ldp.Published = false
		c.notifyPublished(ldp)
	}
	if ldp.Applied {
		ldp.Applied = false
		c.notifyApplied(ldp)
	}
	if ldp.Assigned {
		c.prefixes.Remove(ldp)
		ldp.Assigned = false
		c.notifyAssigned(ldp)
	}
	ldp.Adopting = false
}

// ADVPAdd inserts a new Advertised Prefix and reschedules every LDP whose
// DP overlaps it.
func (c *Core) ADVPAdd(a *ADVP) error {
	a.core = c
	if err := c.prefixes.Insert(a.Prefix, a); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	c.rescheduleOverlapping(a)
	return nil
}

// ADVPUpdate tells the core the content of an already-added ADVP changed
// (priority, typically); it reschedules affected LDPs without touching the
// trie position (the prefix/length themselves are assumed immutable for a
// live ADVP -- callers that change the prefix must Del then Add).
func (c *Core) ADVPUpdate(a *ADVP) {
	c.rescheduleOverlapping(a)
}

// ADVPDel removes a previously added Advertised Prefix.
func (c *Core) ADVPDel(a *ADVP) {
	c.prefixes.Remove(a)
	c.rescheduleOverlapping(a)
}

func (c *Core) rescheduleOverlapping(a *ADVP) {
	for _, dp := range c.dps {
		if !overlaps(dp.Prefix, a.Prefix) {
			continue
		}
		for _, ldp := range c.ldpsByDP[dp] {
			c.schedule(ldp)
		}
	}
}

// RuleAdd registers a rule; every LDP is rescheduled since the new rule
// may change outcomes immediately.
func (c *Core) RuleAdd(r *Rule) error {
	if r.Filter == nil {
		r.Filter = AcceptAllFilter{}
	}
	c.rules = append(c.rules, r)
	for _, ldp := range c.ldpByPair {
		c.schedule(ldp)
	}
	return nil
}

// RuleDel unregisters a rule. Any LDP currently published by this rule
// loses its back-reference but keeps its other published state; the
// next routine run reconciles it.
func (c *Core) RuleDel(r *Rule) {
	idx := -1
	for i, existing := range c.rules {
		if existing == r {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	c.rules = append(c.rules[:idx], c.rules[idx+1:]...)
	for _, ldp := range c.ldpByPair {
		if ldp.Rule == r {
			ldp.Rule = nil
		}
		c.schedule(ldp)
	}
}

// UserRegister adds a subscriber. Existing LDP state does not trigger
// callbacks retroactively.
func (c *Core) UserRegister(u User) { c.users = append(c.users, u) }

// UserUnregister removes a subscriber.
func (c *Core) UserUnregister(u User) {
	for i, existing := range c.users {
		if existing == u {
			c.users = append(c.users[:i], c.users[i+1:]...)
			return
		}
	}
}

func (c *Core) notifyAssigned(ldp *LDP) {
	for _, u := range c.users {
		u.OnAssigned(ldp)
	}
}

func (c *Core) notifyPublished(ldp *LDP) {
	for _, u := range c.users {
		u.OnPublished(ldp)
	}
}

func (c *Core) notifyApplied(ldp *LDP) {
	for _, u := range c.users {
		u.OnApplied(ldp)
	}
}

func overlaps(a, b netip.Prefix) bool { return a.Overlaps(b) }
