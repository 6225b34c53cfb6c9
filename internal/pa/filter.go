package pa

// Filter restricts which LDPs a Rule is evaluated against. Filters compose
// into boolean trees: leaves match on Link/DP identity or type tags,
// combinators (And/Or) combine children with optional negation.
type Filter interface {
	Accept(ldp *LDP) bool
}

// AcceptAllFilter matches every LDP. It is the default when a Rule
// registers with a nil Filter.
type AcceptAllFilter struct{}

func (AcceptAllFilter) Accept(*LDP) bool { return true }

// BasicFilter matches on specific Link and/or DP identity. A nil field is
// treated as "don't care".
type BasicFilter struct {
	Link *Link
	DP   *DP
}

func (f BasicFilter) Accept(ldp *LDP) bool {
	if f.Link != nil && f.Link != ldp.Link {
		return false
	}
	if f.DP != nil && f.DP != ldp.DP {
		return false
	}
	return true
}

// TypeFilter matches on the user-supplied Link.Type and/or DP.Type tags.
// An empty field is "don't care".
type TypeFilter struct {
	LinkType string
	DPType   string
}

func (f TypeFilter) Accept(ldp *LDP) bool {
	if f.LinkType != "" && (ldp.Link == nil || ldp.Link.Type != f.LinkType) {
		return false
	}
	if f.DPType != "" && (ldp.DP == nil || ldp.DP.Type != f.DPType) {
		return false
	}
	return true
}

// AndFilter accepts iff every child filter accepts (or, with Negate set,
// iff at least one child rejects).
type AndFilter struct {
	Filters []Filter
	Negate  bool
}

func (f AndFilter) Accept(ldp *LDP) bool {
	all := true
	for _, c := range f.Filters {
		if !c.Accept(ldp) {
			all = false
			break
		}
	}
	if f.Negate {
		return !all
	}
	return all
}

// OrFilter accepts iff any child filter accepts (or, with Negate set, iff
// every child rejects).
type OrFilter struct {
	Filters []Filter
	Negate  bool
}

func (f OrFilter) Accept(ldp *LDP) bool {
	any := false
	for _, c := range f.Filters {
		if c.Accept(ldp) {
			any = true
			break
		}
	}
	if f.Negate {
		return !any
	}
	return any
}
