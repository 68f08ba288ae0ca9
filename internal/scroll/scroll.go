// Package scroll implements stateful forward-only pagination: query
// rewriting that excludes already-emitted documents, per-session state
// updates, and a durable session store.
package scroll

import (
	"math"

	"github.com/hyperjump/shiboru/internal/models"
)

// Prepare returns the query to execute for the next page of a session. The
// first call of a session runs the original query unchanged; later calls
// conjoin a minimum-doc-id restriction so segments skip already-returned
// documents by doc-id range instead of re-scoring them. Documents with a
// global id at or below the last emitted one are never re-admitted.
func Prepare(q models.Query, state *models.ScrollState) models.Query {
	if state == nil || !state.HasLastEmitted {
		return q
	}
	return &models.BooleanQuery{
		Must: []models.Query{
			q,
			&models.MinDocQuery{MinDoc: state.LastEmittedDoc + 1},
		},
	}
}

// Update records the page just produced into the session state: the highest
// returned doc id, the page max score, and, on the first page, the session
// total. Later pages are forcibly terminated early, so their own totals are
// partial; the cached session total is restored into the result instead.
func Update(state *models.ScrollState, result *models.Result) {
	if state == nil {
		return
	}
	for _, hit := range result.TopDocs.Hits {
		if !state.HasLastEmitted || hit.Doc > state.LastEmittedDoc {
			state.LastEmittedDoc = hit.Doc
			state.HasLastEmitted = true
		}
	}
	if !math.IsNaN(result.TopDocs.MaxScore) {
		state.LastMaxScore = result.TopDocs.MaxScore
	}
	if state.TotalHits < 0 {
		state.TotalHits = result.TopDocs.TotalHits.Value
		state.TotalRelation = result.TopDocs.TotalHits.Relation
	} else {
		result.TopDocs.TotalHits = models.TotalHits{
			Value:    state.TotalHits,
			Relation: state.TotalRelation,
		}
	}
}
