package pa

import (
	"net/netip"
	"testing"
	"time"

	"github.com/jr42/homenet-pa/internal/trie"
)

type recorder struct {
	NopUser
	events []string
}

func (r *recorder) OnAssigned(ldp *LDP) {
	if ldp.Assigned {
		r.events = append(r.events, "assigned->1")
	} else {
		r.events = append(r.events, "assigned->0")
	}
}

func (r *recorder) OnPublished(ldp *LDP) {
	if ldp.Published {
		r.events = append(r.events, "published->1")
	} else {
		r.events = append(r.events, "published->0")
	}
}

func (r *recorder) OnApplied(ldp *LDP) {
	if ldp.Applied {
		r.events = append(r.events, "applied->1")
	} else {
		r.events = append(r.events, "applied->0")
	}
}

func newTestCore(t *testing.T) (*Core, *VirtualClock) {
	t.Helper()
	clock := NewVirtualClock()
	c := &Core{}
	c.Init(Config{Clock: clock})
	return c, clock
}

func mustPrefix(t *testing.T, s string) netip.Prefix {
	t.Helper()
	p, err := netip.ParsePrefix(s)
	if err != nil {
		t.Fatalf("ParsePrefix(%q): %v", s, err)
	}
	return p
}

// TestPassiveAccept: a single peer advertisement on the only Link is
// accepted, assigned, and eventually applied without ever publishing.
func TestPassiveAccept(t *testing.T) {
	c, clock := newTestCore(t)
	c.SetNodeID(NodeID{1})
	rec := &recorder{}
	c.UserRegister(rec)

	link := &Link{Name: "L1"}
	dp := &DP{Name: "dp", Prefix: mustPrefix(t, "2001:db8::/56")}
	if err := c.LinkAdd(link); err != nil {
		t.Fatalf("LinkAdd: %v", err)
	}
	if err := c.DPAdd(dp); err != nil {
		t.Fatalf("DPAdd: %v", err)
	}

	advp := &ADVP{NodeID: NodeID{2}, Prefix: mustPrefix(t, "2001:db8:0:1::/64"), Priority: 2, Link: link}
	if err := c.ADVPAdd(advp); err != nil {
		t.Fatalf("ADVPAdd: %v", err)
	}

	clock.Advance(c.runDelay + 2*c.floodingDelay + time.Millisecond)

	ldp := c.ldpByPair[ldpKey{link, dp}]
	if !ldp.Assigned || !ldp.Applied || ldp.Published {
		t.Fatalf("unexpected state: assigned=%v applied=%v published=%v", ldp.Assigned, ldp.Applied, ldp.Published)
	}
	if ldp.Prefix != advp.Prefix {
		t.Fatalf("prefix = %v, want %v", ldp.Prefix, advp.Prefix)
	}
}

// TestTieBreakByNodeID: equal-priority peers are tie-broken by the
// higher node ID.
func TestTieBreakByNodeID(t *testing.T) {
	c, clock := newTestCore(t)
	c.SetNodeID(NodeID{1})
	link := &Link{Name: "L1"}
	dp := &DP{Name: "dp", Prefix: mustPrefix(t, "2001:db8::/56")}
	_ = c.LinkAdd(link)
	_ = c.DPAdd(dp)

	low := &ADVP{NodeID: NodeID{2}, Prefix: mustPrefix(t, "2001:db8:0:2::/64"), Priority: 3, Link: link}
	high := &ADVP{NodeID: NodeID{3}, Prefix: mustPrefix(t, "2001:db8:0:3::/64"), Priority: 3, Link: link}
	_ = c.ADVPAdd(low)
	_ = c.ADVPAdd(high)

	clock.Advance(c.runDelay + 2*c.floodingDelay + time.Millisecond)

	ldp := c.ldpByPair[ldpKey{link, dp}]
	if ldp.Prefix != high.Prefix {
		t.Fatalf("prefix = %v, want the higher-node-id peer's %v", ldp.Prefix, high.Prefix)
	}
}

// TestDeleteCascadeOrdering: removing a Link clears published, then
// applied, then assigned, in that order, with one notification each. A
// Static rule publishes the pair and the apply window then matures it, so
// all three flags are set when the Link goes away.
func TestDeleteCascadeOrdering(t *testing.T) {
	c, clock := newTestCore(t)
	c.SetNodeID(NodeID{1})
	rec := &recorder{}
	c.UserRegister(rec)

	link := &Link{Name: "L1"}
	dp := &DP{Name: "dp", Prefix: mustPrefix(t, "2001:db8::/56")}
	_ = c.LinkAdd(link)
	_ = c.DPAdd(dp)
	_ = c.RuleAdd(NewStaticRule(StaticRuleConfig{
		Name:         "static",
		Prefix:       mustPrefix(t, "2001:db8:0:1::/64"),
		PAPriority:   2,
		RulePriority: 10,
	}))
	clock.Advance(c.runDelay + 2*c.floodingDelay + time.Millisecond)

	rec.events = nil
	c.LinkDel(link)

	want := []string{"published->0", "applied->0", "assigned->0"}
	got := rec.events
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

// TestDebounce: repeated advertisement updates within the run delay
// collapse into a single pending routine run.
func TestDebounce(t *testing.T) {
	c, clock := newTestCore(t)
	link := &Link{Name: "L1"}
	dp := &DP{Name: "dp", Prefix: mustPrefix(t, "2001:db8::/56")}
	_ = c.LinkAdd(link)
	_ = c.DPAdd(dp)
	ldp := c.ldpByPair[ldpKey{link, dp}]

	advp := &ADVP{NodeID: NodeID{2}, Prefix: mustPrefix(t, "2001:db8:0:1::/64"), Priority: 2, Link: link}
	_ = c.ADVPAdd(advp)
	for i := 0; i < 5; i++ {
		c.ADVPUpdate(advp)
	}
	if clock.Pending() != 1 {
		t.Fatalf("pending timers = %d, want 1 (debounced)", clock.Pending())
	}
	_ = ldp
}

// TestFloodingDelayRescale: raising the flooding delay by delta pushes
// a published LDP's pending apply deadline out by 2*delta; lowering
// caps the remainder at twice the new delay.
func TestFloodingDelayRescale(t *testing.T) {
	c, clock := newTestCore(t)
	link := &Link{Name: "L1"}
	dp := &DP{Name: "dp", Prefix: mustPrefix(t, "2001:db8::/56")}
	_ = c.LinkAdd(link)
	_ = c.DPAdd(dp)
	_ = c.RuleAdd(NewStaticRule(StaticRuleConfig{
		Name:         "static",
		Prefix:       mustPrefix(t, "2001:db8:0:1::/64"),
		PAPriority:   2,
		RulePriority: 10,
	}))

	clock.Advance(c.runDelay + time.Millisecond)
	ldp := c.ldpByPair[ldpKey{link, dp}]
	if !ldp.Assigned || !ldp.Published || ldp.Applied {
		t.Fatalf("expected published with apply pending, got assigned=%v published=%v applied=%v",
			ldp.Assigned, ldp.Published, ldp.Applied)
	}
	before := ldp.backoffDeadline

	delta := time.Second
	if err := c.SetFloodingDelay(c.floodingDelay + delta); err != nil {
		t.Fatalf("SetFloodingDelay: %v", err)
	}
	if got, want := ldp.backoffDeadline, before.Add(2*delta); !got.Equal(want) {
		t.Fatalf("raised deadline = %v, want %v (before + 2*delta)", got, want)
	}

	// Lowering caps the remainder at 2*new.
	lowered := 10 * time.Millisecond
	if err := c.SetFloodingDelay(lowered); err != nil {
		t.Fatalf("SetFloodingDelay: %v", err)
	}
	if got, want := ldp.backoffDeadline, clock.Now().Add(2*lowered); got.After(want) {
		t.Fatalf("lowered deadline = %v, want at most %v (now + 2*new)", got, want)
	}
}

func TestFlagMonotonicity(t *testing.T) {
	c, clock := newTestCore(t)
	link := &Link{Name: "L1"}
	dp := &DP{Name: "dp", Prefix: mustPrefix(t, "2001:db8::/56")}
	_ = c.LinkAdd(link)
	_ = c.DPAdd(dp)
	advp := &ADVP{NodeID: NodeID{2}, Prefix: mustPrefix(t, "2001:db8:0:1::/64"), Priority: 2, Link: link}
	_ = c.ADVPAdd(advp)
	clock.Advance(c.runDelay + 2*c.floodingDelay + time.Millisecond)

	ldp := c.ldpByPair[ldpKey{link, dp}]
	if ldp.Published && !ldp.Assigned {
		t.Fatal("published without assigned")
	}
	// A passively-accepted assignment applies without ever publishing,
	// so applied implies assigned, not published.
	if ldp.Applied && !ldp.Assigned {
		t.Fatal("applied without assigned")
	}
	if ldp.Adopting && (ldp.Published || !ldp.Assigned) {
		t.Fatal("adopting while published or unassigned")
	}
}

func TestTrieUniqueness(t *testing.T) {
	c, clock := newTestCore(t)
	link := &Link{Name: "L1"}
	dp := &DP{Name: "dp", Prefix: mustPrefix(t, "2001:db8::/56")}
	_ = c.LinkAdd(link)
	_ = c.DPAdd(dp)
	advp := &ADVP{NodeID: NodeID{2}, Prefix: mustPrefix(t, "2001:db8:0:1::/64"), Priority: 2, Link: link}
	_ = c.ADVPAdd(advp)
	clock.Advance(c.runDelay + 2*c.floodingDelay + time.Millisecond)

	ldp := c.ldpByPair[ldpKey{link, dp}]
	count := 0
	c.prefixes.WalkUpDown(dp.Prefix, func(e trie.Element) {
		if _, ok := e.(*LDP); ok {
			count++
		}
	})
	if count != 1 {
		t.Fatalf("trie holds %d ASSIGNED entries for one LDP, want 1", count)
	}
	if !ldp.Assigned {
		t.Fatal("trie entry present but LDP not assigned")
	}
}
