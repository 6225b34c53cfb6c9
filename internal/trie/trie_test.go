package trie

import (
	"net/netip"
	"sort"
	"testing"
)

type testElem struct {
	name string
	p    netip.Prefix
}

func (e *testElem) TriePrefix() netip.Prefix { return e.p }

func mustPrefix(t *testing.T, s string) netip.Prefix {
	t.Helper()
	p, err := netip.ParsePrefix(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return p
}

func TestInsertWalkUpDown(t *testing.T) {
	var tr Trie
	dp := &testElem{"dp", mustPrefix(t, "2001:db8::/56")}
	child := &testElem{"child", mustPrefix(t, "2001:db8:0:1::/64")}
	grandchild := &testElem{"grandchild", mustPrefix(t, "2001:db8:0:1::/80")}
	unrelated := &testElem{"unrelated", mustPrefix(t, "2001:db8:0:2::/64")}

	for _, e := range []*testElem{dp, child, grandchild, unrelated} {
		if err := tr.Insert(e.p, e); err != nil {
			t.Fatalf("insert %s: %v", e.name, err)
		}
	}

	var got []string
	tr.WalkUpDown(mustPrefix(t, "2001:db8:0:1::/64"), func(e Element) {
		got = append(got, e.(*testElem).name)
	})
	sort.Strings(got)
	want := []string{"child", "dp", "grandchild"}
	sort.Strings(want)
	if !equalSlices(got, want) {
		t.Fatalf("WalkUpDown = %v, want %v", got, want)
	}
}

func TestInsertDuplicateRejected(t *testing.T) {
	var tr Trie
	e := &testElem{"e", mustPrefix(t, "2001:db8::/64")}
	if err := tr.Insert(e.p, e); err != nil {
		t.Fatal(err)
	}
	if err := tr.Insert(e.p, e); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestMultisetSameNode(t *testing.T) {
	var tr Trie
	a := &testElem{"a", mustPrefix(t, "2001:db8::/64")}
	b := &testElem{"b", mustPrefix(t, "2001:db8::/64")}
	tr.Insert(a.p, a)
	tr.Insert(b.p, b)

	var got []string
	tr.WalkUpDown(mustPrefix(t, "2001:db8::/64"), func(e Element) {
		got = append(got, e.(*testElem).name)
	})
	if !equalSlices(got, []string{"a", "b"}) {
		t.Fatalf("got %v, want insertion order [a b]", got)
	}
}

func TestRemovePrunes(t *testing.T) {
	var tr Trie
	e := &testElem{"e", mustPrefix(t, "2001:db8:0:1::/64")}
	tr.Insert(e.p, e)
	tr.Remove(e)

	var got []string
	tr.WalkUpDown(mustPrefix(t, "2001:db8::/56"), func(el Element) {
		got = append(got, el.(*testElem).name)
	})
	if len(got) != 0 {
		t.Fatalf("expected empty trie after remove, got %v", got)
	}
	if tr.root != nil {
		t.Fatalf("expected root to be pruned to nil")
	}
}

func TestWalkAvailable(t *testing.T) {
	var tr Trie
	dp := mustPrefix(t, "2001:db8::/60")
	used := &testElem{"used", mustPrefix(t, "2001:db8::/64")}
	tr.Insert(used.p, used)

	var holes []netip.Prefix
	tr.WalkAvailable(dp, func(p netip.Prefix) { holes = append(holes, p) })

	// The /60 minus its first /64 leaves four maximal holes: the sibling
	// /64 and the /63, /62 and /61 that complete each level above it.
	want := []netip.Prefix{
		mustPrefix(t, "2001:db8:0:1::/64"),
		mustPrefix(t, "2001:db8:0:2::/63"),
		mustPrefix(t, "2001:db8:0:4::/62"),
		mustPrefix(t, "2001:db8:0:8::/61"),
	}
	if len(holes) != len(want) {
		t.Fatalf("expected %d maximal holes, got %d: %v", len(want), len(holes), holes)
	}
	for i, h := range holes {
		if h != want[i] {
			t.Fatalf("hole %d = %s, want %s", i, h, want[i])
		}
		if h.Overlaps(used.p) {
			t.Fatalf("used prefix %s reported as available", used.p)
		}
	}
}

func TestWalkAvailableWhollyEmpty(t *testing.T) {
	var tr Trie
	dp := mustPrefix(t, "2001:db8::/56")
	var holes []netip.Prefix
	tr.WalkAvailable(dp, func(p netip.Prefix) { holes = append(holes, p) })
	if len(holes) != 1 || holes[0] != dp {
		t.Fatalf("expected the whole DP as a single hole, got %v", holes)
	}
}

func TestWalkAvailableOccupiedAncestor(t *testing.T) {
	var tr Trie
	// An element assigned at exactly the root prefix leaves nothing inside it available.
	dp := mustPrefix(t, "2001:db8::/56")
	e := &testElem{"e", dp}
	tr.Insert(e.p, e)

	var holes []netip.Prefix
	tr.WalkAvailable(dp, func(p netip.Prefix) { holes = append(holes, p) })
	if len(holes) != 0 {
		t.Fatalf("expected no holes under a fully-occupied root, got %v", holes)
	}
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
