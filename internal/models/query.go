// Package models defines the request, query and result types shared by the
// query-execution core.
package models

// QueryType identifies a query variant.
type QueryType int

const (
	QueryTypeMatchAll QueryType = iota
	QueryTypeMatchNone
	QueryTypeTerm
	QueryTypeBoolean
	QueryTypeConstantScore
	QueryTypeMinDoc
)

// Query is a compiled query executable against a segment. The set of
// variants is closed; execution and classification switch over Type().
type Query interface {
	Type() QueryType
}

// MatchAllQuery matches every live document.
type MatchAllQuery struct{}

func (*MatchAllQuery) Type() QueryType { return QueryTypeMatchAll }

// MatchNoneQuery matches no documents.
type MatchNoneQuery struct{}

func (*MatchNoneQuery) Type() QueryType { return QueryTypeMatchNone }

// TermQuery matches documents containing the exact term in a field.
type TermQuery struct {
	Field string
	Term  string
}

func (*TermQuery) Type() QueryType { return QueryTypeTerm }

// ConstantScoreQuery wraps a query whose scores are irrelevant; every match
// scores 1.0.
type ConstantScoreQuery struct {
	Inner Query
}

func (*ConstantScoreQuery) Type() QueryType { return QueryTypeConstantScore }

// BooleanQuery combines sub-queries. Must clauses are conjunctive, Should
// clauses disjunctive (at least one required when no Must clauses exist),
// MustNot clauses exclude.
type BooleanQuery struct {
	Must    []Query
	Should  []Query
	MustNot []Query
}

func (*BooleanQuery) Type() QueryType { return QueryTypeBoolean }

// MinDocQuery matches all live documents whose global doc id is >= MinDoc.
// Scroll pagination conjoins it to the session query so segments can skip
// already-returned documents by doc-id range instead of re-scoring them.
type MinDocQuery struct {
	MinDoc uint64
}

func (*MinDocQuery) Type() QueryType { return QueryTypeMinDoc }

// SortDirection orders sort keys ascending or descending.
type SortDirection int

const (
	SortAsc SortDirection = iota
	SortDesc
)

// SortField is one component of a sort specification.
type SortField struct {
	Field     string
	Direction SortDirection
}

// SortSpec is a requested or intrinsic document ordering.
type SortSpec struct {
	Fields []SortField
}

// PrefixOf reports whether s is a same-direction prefix of other. A request
// sorted by a prefix of a segment's intrinsic order sees documents already in
// the requested order.
func (s *SortSpec) PrefixOf(other *SortSpec) bool {
	if other == nil || len(s.Fields) == 0 || len(s.Fields) > len(other.Fields) {
		return false
	}
	for i, f := range s.Fields {
		if other.Fields[i] != f {
			return false
		}
	}
	return true
}
