// Package shape classifies compiled queries into the closed set of shapes
// whose match count an index can answer from metadata alone, without
// visiting documents.
package shape

import (
	"github.com/hyperjump/shiboru/internal/index"
	"github.com/hyperjump/shiboru/internal/models"
)

// Shape tags a recognized query structure.
type Shape int

const (
	// ShapeOther is any structure the classifier does not recognize; it
	// forces full collection and is never an error.
	ShapeOther Shape = iota
	ShapeMatchAll
	ShapeMatchNone
	ShapeSingleTerm
)

// Classify inspects q structurally, unwrapping scoring-irrelevant wrappers.
// No execution happens here.
func Classify(q models.Query) (Shape, *models.TermQuery) {
	switch t := q.(type) {
	case *models.MatchAllQuery:
		return ShapeMatchAll, nil
	case *models.MatchNoneQuery:
		return ShapeMatchNone, nil
	case *models.TermQuery:
		return ShapeSingleTerm, t
	case *models.ConstantScoreQuery:
		// Score never matters for counting, so the wrapper is transparent.
		return Classify(t.Inner)
	default:
		return ShapeOther, nil
	}
}

// Count derives the exact match count of q over seg from index metadata.
// ok is false when the count cannot be derived for this segment: an
// unrecognized shape, or a single-term query over a segment with deletions
// (frequency statistics do not reflect deletions).
func Count(q models.Query, seg index.Segment) (count int, ok bool) {
	s, term := Classify(q)
	switch s {
	case ShapeMatchAll:
		return seg.LiveDocCount(), true
	case ShapeMatchNone:
		return 0, true
	case ShapeSingleTerm:
		return seg.DocFreq(term.Field, term.Term)
	default:
		return 0, false
	}
}
