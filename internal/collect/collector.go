package collect

import (
	"container/heap"
	"math"
	"sort"

	"github.com/hyperjump/shiboru/internal/index"
	"github.com/hyperjump/shiboru/internal/models"
)

// LeafFunc observes one candidate document of a segment. Returning false
// stops this collector's visitation of the current segment; an error aborts
// the whole execution. It aliases the index package's visit callback so a
// pipeline leaf drives a segment search directly.
type LeafFunc = index.VisitFunc

// Collector accumulates a result over the admitted document stream. Leaf is
// called once per visited segment; per-segment state lives in the returned
// closure, cross-segment state on the collector.
type Collector interface {
	Leaf(seg index.Segment) (LeafFunc, error)
}

// TotalHitsCollector counts every admitted document. It is the auxiliary
// collector the surrounding engine attaches when it needs an exact count
// independent of the primary chain's early termination.
type TotalHitsCollector struct {
	total int64
}

// NewTotalHitsCollector returns a zeroed counter.
func NewTotalHitsCollector() *TotalHitsCollector { return &TotalHitsCollector{} }

func (c *TotalHitsCollector) Leaf(index.Segment) (LeafFunc, error) {
	return func(uint32, float64) (bool, error) {
		c.total++
		return true, nil
	}, nil
}

// TotalHits returns the count observed so far.
func (c *TotalHitsCollector) TotalHits() int64 { return c.total }

// topDocsCollector is the ranking base of the primary chain: it counts every
// observed document and keeps the best k in a heap. With k == 0 it
// degenerates to a bare counter and never allocates hit storage.
type topDocsCollector struct {
	k         int
	total     int64
	maxScore  float64
	h         hitHeap
	bySortKey bool
	sortField string
	desc      bool
}

func newTopDocsCollector(k int) *topDocsCollector {
	c := &topDocsCollector{k: k, maxScore: math.NaN()}
	if k > 0 {
		c.h = hitHeap{hits: make([]models.Hit, 0, k)}
	}
	return c
}

func newTopSortCollector(k int, field string, desc bool) *topDocsCollector {
	c := newTopDocsCollector(k)
	c.bySortKey = true
	c.sortField = field
	c.desc = desc
	c.h.bySortKey = true
	c.h.desc = desc
	return c
}

func (c *topDocsCollector) Leaf(seg index.Segment) (LeafFunc, error) {
	base := seg.Base()
	return func(local uint32, score float64) (bool, error) {
		c.total++
		if !c.bySortKey && (math.IsNaN(c.maxScore) || score > c.maxScore) {
			c.maxScore = score
		}
		if c.k == 0 {
			return true, nil
		}
		hit := models.Hit{Doc: base + uint64(local), Score: score}
		if c.bySortKey {
			key, _ := seg.SortValue(c.sortField, local)
			hit.SortKey = key
		}
		c.admit(hit)
		return true, nil
	}, nil
}

func (c *topDocsCollector) admit(hit models.Hit) {
	if c.h.Len() < c.k {
		heap.Push(&c.h, hit)
		return
	}
	if c.h.better(hit, c.h.hits[0]) {
		c.h.hits[0] = hit
		heap.Fix(&c.h, 0)
	}
}

// countOnly records a document for the total without ranking it. Used when
// index-sort early termination keeps counting past the k-th document.
func (c *topDocsCollector) countOnly() { c.total++ }

// topDocs drains the collector into a ranked result. The collector must not
// be reused afterwards.
func (c *topDocsCollector) topDocs() models.TopDocs {
	hits := make([]models.Hit, len(c.h.hits))
	copy(hits, c.h.hits)
	h := &c.h
	sort.Slice(hits, func(i, j int) bool { return h.better(hits[i], hits[j]) })
	return models.TopDocs{
		Hits:      hits,
		TotalHits: models.TotalHits{Value: c.total, Relation: models.HitsExact},
		MaxScore:  c.maxScore,
	}
}

// hitHeap keeps the current worst hit at the root so it can be evicted.
type hitHeap struct {
	hits      []models.Hit
	bySortKey bool
	desc      bool
}

// better reports whether a ranks ahead of b. Ties break toward the lower
// doc id.
func (h *hitHeap) better(a, b models.Hit) bool {
	if h.bySortKey {
		if a.SortKey != b.SortKey {
			if h.desc {
				return a.SortKey > b.SortKey
			}
			return a.SortKey < b.SortKey
		}
	} else if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Doc < b.Doc
}

func (h *hitHeap) Len() int           { return len(h.hits) }
func (h *hitHeap) Less(i, j int) bool { return h.better(h.hits[j], h.hits[i]) }
func (h *hitHeap) Swap(i, j int)      { h.hits[i], h.hits[j] = h.hits[j], h.hits[i] }

func (h *hitHeap) Push(x any) { h.hits = append(h.hits, x.(models.Hit)) }

func (h *hitHeap) Pop() any {
	old := h.hits
	n := len(old)
	x := old[n-1]
	h.hits = old[:n-1]
	return x
}
