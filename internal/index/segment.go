// Package index provides the segment source the query executor drives: an
// in-memory segment implementation with roaring-bitmap postings, deletion
// masks and int64 doc values, plus the reader that composes segments into
// one shard view.
package index

import (
	"context"
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring"

	"github.com/hyperjump/shiboru/internal/models"
)

// VisitFunc is the per-document admission callback handed to Search. It
// receives local doc ids in ascending order. Returning false stops the
// visitation of this segment; a non-nil error aborts it.
type VisitFunc func(local uint32, score float64) (bool, error)

// Segment is one immutable unit of the shard index.
type Segment interface {
	// Base is the global doc id of this segment's local doc 0.
	Base() uint64
	// MaxDoc is the number of doc slots, including deleted ones.
	MaxDoc() uint32
	// LiveDocCount is the number of documents not marked deleted.
	LiveDocCount() int
	HasDeletions() bool
	// DocFreq returns the document frequency of the term. ok is false when
	// the segment has deletions, because frequency statistics do not
	// reflect them.
	DocFreq(field, term string) (freq int, ok bool)
	// Sort is the segment's intrinsic document ordering, nil when unsorted.
	Sort() *models.SortSpec
	// SortValue returns the doc value for a sort field.
	SortValue(field string, local uint32) (int64, bool)
	// Matches returns the set of live local doc ids matching q.
	Matches(q models.Query) (*roaring.Bitmap, error)
	// Search visits matching live documents in ascending local doc id
	// order, scoring each, and stops when visit signals.
	Search(ctx context.Context, q models.Query, visit VisitFunc) error
}

type postings map[string]*roaring.Bitmap

// MemorySegment is the in-memory Segment implementation.
type MemorySegment struct {
	base    uint64
	maxDoc  uint32
	fields  map[string]postings
	deleted *roaring.Bitmap
	values  map[string][]int64
	sort    *models.SortSpec
}

// SegmentBuilder accumulates documents for one MemorySegment. When an
// intrinsic sort is declared, documents must be added in that order; the
// builder does not re-sort.
type SegmentBuilder struct {
	seg *MemorySegment
}

// NewSegmentBuilder returns an empty builder.
func NewSegmentBuilder() *SegmentBuilder {
	return &SegmentBuilder{seg: &MemorySegment{
		fields:  make(map[string]postings),
		deleted: roaring.New(),
		values:  make(map[string][]int64),
	}}
}

// SetSort declares the intrinsic document ordering of the segment.
func (b *SegmentBuilder) SetSort(sort *models.SortSpec) *SegmentBuilder {
	b.seg.sort = sort
	return b
}

// Add appends a document and returns its local id. fields maps field name to
// terms; sortValues supplies doc values for sortable fields.
func (b *SegmentBuilder) Add(fields map[string][]string, sortValues map[string]int64) uint32 {
	local := b.seg.maxDoc
	b.seg.maxDoc++
	for field, terms := range fields {
		p, ok := b.seg.fields[field]
		if !ok {
			p = make(postings)
			b.seg.fields[field] = p
		}
		for _, term := range terms {
			bm, ok := p[term]
			if !ok {
				bm = roaring.New()
				p[term] = bm
			}
			bm.Add(local)
		}
	}
	for field, v := range sortValues {
		col := b.seg.values[field]
		for uint32(len(col)) < local {
			col = append(col, 0)
		}
		b.seg.values[field] = append(col, v)
	}
	return local
}

// Delete marks a previously added document deleted.
func (b *SegmentBuilder) Delete(local uint32) {
	if local < b.seg.maxDoc {
		b.seg.deleted.Add(local)
	}
}

// DeleteByTerm marks every document containing the term deleted.
func (b *SegmentBuilder) DeleteByTerm(field, term string) {
	if p, ok := b.seg.fields[field]; ok {
		if bm, ok := p[term]; ok {
			b.seg.deleted.Or(bm)
		}
	}
}

// Build seals the segment. The builder must not be reused afterwards.
func (b *SegmentBuilder) Build() *MemorySegment {
	return b.seg
}

func (s *MemorySegment) Base() uint64  { return s.base }
func (s *MemorySegment) MaxDoc() uint32 { return s.maxDoc }

func (s *MemorySegment) LiveDocCount() int {
	return int(s.maxDoc) - int(s.deleted.GetCardinality())
}

func (s *MemorySegment) HasDeletions() bool {
	return !s.deleted.IsEmpty()
}

func (s *MemorySegment) DocFreq(field, term string) (int, bool) {
	if s.HasDeletions() {
		return 0, false
	}
	p, ok := s.fields[field]
	if !ok {
		return 0, true
	}
	bm, ok := p[term]
	if !ok {
		return 0, true
	}
	return int(bm.GetCardinality()), true
}

func (s *MemorySegment) Sort() *models.SortSpec { return s.sort }

func (s *MemorySegment) SortValue(field string, local uint32) (int64, bool) {
	col, ok := s.values[field]
	if !ok || local >= uint32(len(col)) {
		return 0, false
	}
	return col[local], true
}

// live returns all non-deleted local doc ids.
func (s *MemorySegment) live() *roaring.Bitmap {
	bm := roaring.New()
	bm.AddRange(0, uint64(s.maxDoc))
	bm.AndNot(s.deleted)
	return bm
}

func (s *MemorySegment) Matches(q models.Query) (*roaring.Bitmap, error) {
	bm, err := s.match(q)
	if err != nil {
		return nil, err
	}
	bm.AndNot(s.deleted)
	return bm, nil
}

// match resolves the query to a bitmap of local ids, deletions not yet
// applied. The returned bitmap is always freshly allocated.
func (s *MemorySegment) match(q models.Query) (*roaring.Bitmap, error) {
	switch t := q.(type) {
	case *models.MatchAllQuery:
		bm := roaring.New()
		bm.AddRange(0, uint64(s.maxDoc))
		return bm, nil
	case *models.MatchNoneQuery:
		return roaring.New(), nil
	case *models.TermQuery:
		if p, ok := s.fields[t.Field]; ok {
			if bm, ok := p[t.Term]; ok {
				return bm.Clone(), nil
			}
		}
		return roaring.New(), nil
	case *models.ConstantScoreQuery:
		return s.match(t.Inner)
	case *models.MinDocQuery:
		bm := roaring.New()
		if t.MinDoc < s.base+uint64(s.maxDoc) {
			lo := uint64(0)
			if t.MinDoc > s.base {
				lo = t.MinDoc - s.base
			}
			bm.AddRange(lo, uint64(s.maxDoc))
		}
		return bm, nil
	case *models.BooleanQuery:
		return s.matchBoolean(t)
	default:
		return nil, fmt.Errorf("unsupported query type %T", q)
	}
}

func (s *MemorySegment) matchBoolean(q *models.BooleanQuery) (*roaring.Bitmap, error) {
	var bm *roaring.Bitmap
	for _, sub := range q.Must {
		m, err := s.match(sub)
		if err != nil {
			return nil, err
		}
		if bm == nil {
			bm = m
		} else {
			bm.And(m)
		}
	}
	if len(q.Should) > 0 {
		should := roaring.New()
		for _, sub := range q.Should {
			m, err := s.match(sub)
			if err != nil {
				return nil, err
			}
			should.Or(m)
		}
		if bm == nil {
			bm = should
		}
		// Should clauses alongside Must clauses only influence scoring.
	}
	if bm == nil {
		bm = roaring.New()
		bm.AddRange(0, uint64(s.maxDoc))
	}
	for _, sub := range q.MustNot {
		m, err := s.match(sub)
		if err != nil {
			return nil, err
		}
		bm.AndNot(m)
	}
	return bm, nil
}

// score computes the score of a matching document. Formula fidelity is not a
// goal here; it only has to be deterministic and monotone in term rarity.
func (s *MemorySegment) score(q models.Query, local uint32) float64 {
	switch t := q.(type) {
	case *models.MatchAllQuery, *models.MinDocQuery:
		return 1.0
	case *models.MatchNoneQuery:
		return 0
	case *models.ConstantScoreQuery:
		return 1.0
	case *models.TermQuery:
		return s.termWeight(t.Field, t.Term)
	case *models.BooleanQuery:
		var sum float64
		for _, sub := range t.Must {
			sum += s.score(sub, local)
		}
		for _, sub := range t.Should {
			if m, err := s.match(sub); err == nil && m.Contains(local) {
				sum += s.score(sub, local)
			}
		}
		return sum
	default:
		return 0
	}
}

func (s *MemorySegment) termWeight(field, term string) float64 {
	var df uint64
	if p, ok := s.fields[field]; ok {
		if bm, ok := p[term]; ok {
			df = bm.GetCardinality()
		}
	}
	return 1.0 + math.Log(1.0+float64(s.maxDoc)/float64(df+1))
}

func (s *MemorySegment) Search(ctx context.Context, q models.Query, visit VisitFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	matches, err := s.Matches(q)
	if err != nil {
		return err
	}
	it := matches.Iterator()
	for it.HasNext() {
		local := it.Next()
		more, err := visit(local, s.score(q, local))
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}
