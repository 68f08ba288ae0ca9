package collect

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/hyperjump/shiboru/internal/index"
	"github.com/hyperjump/shiboru/internal/models"
)

func testSegment(t *testing.T, n int) index.Segment {
	t.Helper()
	b := index.NewSegmentBuilder()
	for i := 0; i < n; i++ {
		b.Add(map[string][]string{"id": {"doc"}}, map[string]int64{"rank": int64(i)})
	}
	seg := b.Build()
	index.NewReader(seg)
	return seg
}

// feed pushes docs 0..n-1 with the given scores through the pipeline leaf.
func feed(t *testing.T, p *Pipeline, seg index.Segment, scores []float64) {
	t.Helper()
	leaf, err := p.Leaf(seg)
	if err != nil {
		t.Fatal(err)
	}
	for i, score := range scores {
		more, err := leaf(uint32(i), score)
		if err != nil {
			t.Fatal(err)
		}
		if !more {
			return
		}
	}
}

func TestControl_CapSignals(t *testing.T) {
	c := NewControl(3)
	for i := 0; i < 2; i++ {
		if c.Admit() {
			t.Fatalf("cap reported reached after %d admissions", i+1)
		}
	}
	if !c.Admit() {
		t.Fatal("cap not reported at third admission")
	}
	if !c.Stopped() {
		t.Fatal("controller not stopped at cap")
	}
}

func TestControl_Unbounded(t *testing.T) {
	c := NewControl(0)
	for i := 0; i < 100; i++ {
		if c.Admit() {
			t.Fatal("unbounded controller signalled a cap")
		}
	}
	if c.Stopped() {
		t.Fatal("unbounded controller stopped on its own")
	}
	c.Stop()
	if !c.Stopped() {
		t.Fatal("explicit stop not observed")
	}
}

func TestControl_ConcurrentStopObserved(t *testing.T) {
	c := NewControl(50)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !c.Stopped() {
				c.Admit()
			}
		}()
	}
	wg.Wait()
	if got := c.Admitted(); got < 50 {
		t.Fatalf("stopped before the cap: %d", got)
	}
	// The defined race allows overshoot bounded by the number of visitors.
	if got := c.Admitted(); got > 54 {
		t.Fatalf("overshoot beyond in-flight visitors: %d", got)
	}
}

func TestPipeline_TopKByScore(t *testing.T) {
	seg := testSegment(t, 5)
	p, err := Build(Options{Size: 3, MinScore: math.NaN(), TrackTotalHits: true})
	if err != nil {
		t.Fatal(err)
	}
	feed(t, p, seg, []float64{0.5, 2.0, 1.0, 3.0, 0.1})

	td := p.TopDocs()
	if td.TotalHits.Value != 5 || td.TotalHits.Relation != models.HitsExact {
		t.Fatalf("unexpected total hits %+v", td.TotalHits)
	}
	if len(td.Hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(td.Hits))
	}
	wantDocs := []uint64{3, 1, 2}
	for i, hit := range td.Hits {
		if hit.Doc != wantDocs[i] {
			t.Fatalf("expected docs %v, got %+v", wantDocs, td.Hits)
		}
	}
	if td.MaxScore != 3.0 {
		t.Fatalf("expected max score 3.0, got %f", td.MaxScore)
	}
	if p.TerminatedEarly() != nil {
		t.Fatal("no termination mechanism was active; expected nil")
	}
}

func TestPipeline_LeafDrivesSegmentSearch(t *testing.T) {
	seg := testSegment(t, 5)
	p, err := Build(Options{Size: 2, MinScore: math.NaN(), TrackTotalHits: true})
	if err != nil {
		t.Fatal(err)
	}
	leaf, err := p.Leaf(seg)
	if err != nil {
		t.Fatal(err)
	}
	// The leaf is the segment's own visit callback type; no adapter sits
	// between the pipeline and the segment.
	if err := seg.Search(context.Background(), &models.MatchAllQuery{}, leaf); err != nil {
		t.Fatal(err)
	}
	td := p.TopDocs()
	if td.TotalHits.Value != 5 {
		t.Fatalf("expected 5 visited docs, got %d", td.TotalHits.Value)
	}
	if len(td.Hits) != 2 {
		t.Fatalf("expected 2 ranked hits, got %d", len(td.Hits))
	}
}

func TestPipeline_ScoreTiesBreakTowardLowerDoc(t *testing.T) {
	seg := testSegment(t, 4)
	p, err := Build(Options{Size: 2, MinScore: math.NaN(), TrackTotalHits: true})
	if err != nil {
		t.Fatal(err)
	}
	feed(t, p, seg, []float64{1.0, 1.0, 1.0, 1.0})
	td := p.TopDocs()
	if td.Hits[0].Doc != 0 || td.Hits[1].Doc != 1 {
		t.Fatalf("expected docs 0,1 on ties, got %+v", td.Hits)
	}
}

func TestPipeline_CountingOnlyAllocatesNoHits(t *testing.T) {
	seg := testSegment(t, 4)
	p, err := Build(Options{Size: 0, MinScore: math.NaN(), TrackTotalHits: true})
	if err != nil {
		t.Fatal(err)
	}
	feed(t, p, seg, []float64{1, 1, 1, 1})
	td := p.TopDocs()
	if td.TotalHits.Value != 4 {
		t.Fatalf("expected count 4, got %d", td.TotalHits.Value)
	}
	if len(td.Hits) != 0 {
		t.Fatalf("counting pipeline produced hits: %+v", td.Hits)
	}
}

func TestPipeline_SizeZeroWithSortIsLegal(t *testing.T) {
	sort := &models.SortSpec{Fields: []models.SortField{{Field: "rank"}}}
	p, err := Build(Options{Size: 0, Sort: sort, MinScore: math.NaN(), TrackTotalHits: true})
	if err != nil {
		t.Fatalf("size 0 with a sort must degenerate to a counter, got error %v", err)
	}
	seg := testSegment(t, 3)
	feed(t, p, seg, []float64{1, 1, 1})
	if got := p.TopDocs().TotalHits.Value; got != 3 {
		t.Fatalf("expected count 3, got %d", got)
	}
}

func TestPipeline_MinScoreFiltersAllChildren(t *testing.T) {
	seg := testSegment(t, 5)
	aux := NewTotalHitsCollector()
	p, err := Build(Options{
		Size:           5,
		MinScore:       1.5,
		TrackTotalHits: true,
		Aux:            map[models.CollectorKind]Collector{models.CollectorKindTotalHits: aux},
	})
	if err != nil {
		t.Fatal(err)
	}
	feed(t, p, seg, []float64{1.0, 2.0, 0.5, 3.0, 1.6})

	td := p.TopDocs()
	if td.TotalHits.Value != 3 {
		t.Fatalf("expected 3 docs past the score gate, got %d", td.TotalHits.Value)
	}
	if aux.TotalHits() != 3 {
		t.Fatalf("auxiliary collector must observe the filtered stream, got %d", aux.TotalHits())
	}
}

func TestPipeline_PostFilterFiltersAllChildren(t *testing.T) {
	seg := testSegment(t, 6)
	aux := NewTotalHitsCollector()
	p, err := Build(Options{
		Size:           6,
		MinScore:       math.NaN(),
		PostFilter:     &models.MinDocQuery{MinDoc: 4},
		TrackTotalHits: true,
		Aux:            map[models.CollectorKind]Collector{models.CollectorKindTotalHits: aux},
	})
	if err != nil {
		t.Fatal(err)
	}
	feed(t, p, seg, []float64{1, 1, 1, 1, 1, 1})

	td := p.TopDocs()
	if td.TotalHits.Value != 2 {
		t.Fatalf("expected 2 docs past the post filter, got %d", td.TotalHits.Value)
	}
	if aux.TotalHits() != 2 {
		t.Fatalf("auxiliary collector must observe the filtered stream, got %d", aux.TotalHits())
	}
}

func TestPipeline_TerminateAfterStopsEveryone(t *testing.T) {
	seg := testSegment(t, 10)
	aux := NewTotalHitsCollector()
	p, err := Build(Options{
		Size:           5,
		MinScore:       math.NaN(),
		TerminateAfter: 3,
		TrackTotalHits: true,
		Aux:            map[models.CollectorKind]Collector{models.CollectorKindTotalHits: aux},
	})
	if err != nil {
		t.Fatal(err)
	}
	feed(t, p, seg, []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1})

	td := p.TopDocs()
	if td.TotalHits.Value != 3 {
		t.Fatalf("expected the cap to hold the count at 3, got %d", td.TotalHits.Value)
	}
	if td.TotalHits.Relation != models.HitsLowerBound {
		t.Fatal("capped count must be tagged a lower bound")
	}
	if aux.TotalHits() != 3 {
		t.Fatalf("auxiliary collector must stop on the same document, got %d", aux.TotalHits())
	}
	te := p.TerminatedEarly()
	if te == nil || !*te {
		t.Fatalf("expected terminated early true, got %v", te)
	}
}

func TestPipeline_TerminateAfterNotReached(t *testing.T) {
	seg := testSegment(t, 3)
	p, err := Build(Options{Size: 3, MinScore: math.NaN(), TerminateAfter: 100, TrackTotalHits: true})
	if err != nil {
		t.Fatal(err)
	}
	feed(t, p, seg, []float64{1, 1, 1})
	te := p.TerminatedEarly()
	if te == nil {
		t.Fatal("terminate-after was active; tri-state must not be nil")
	}
	if *te {
		t.Fatal("cap was never reached; expected terminated early false")
	}
}
