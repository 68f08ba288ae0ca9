package server

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/shiboru/internal/models"
)

// queryNode is the wire form of a compiled query. Exactly one variant must
// be set.
type queryNode struct {
	MatchAll      *struct{}  `json:"match_all,omitempty"`
	MatchNone     *struct{}  `json:"match_none,omitempty"`
	Term          *termNode  `json:"term,omitempty"`
	ConstantScore *queryNode `json:"constant_score,omitempty"`
	Bool          *boolNode  `json:"bool,omitempty"`
}

type termNode struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type boolNode struct {
	Must    []queryNode `json:"must,omitempty"`
	Should  []queryNode `json:"should,omitempty"`
	MustNot []queryNode `json:"must_not,omitempty"`
}

func (n *queryNode) toQuery() (models.Query, error) {
	switch {
	case n.MatchAll != nil:
		return &models.MatchAllQuery{}, nil
	case n.MatchNone != nil:
		return &models.MatchNoneQuery{}, nil
	case n.Term != nil:
		if n.Term.Field == "" || n.Term.Value == "" {
			return nil, fmt.Errorf("term query requires field and value")
		}
		return &models.TermQuery{Field: n.Term.Field, Term: n.Term.Value}, nil
	case n.ConstantScore != nil:
		inner, err := n.ConstantScore.toQuery()
		if err != nil {
			return nil, err
		}
		return &models.ConstantScoreQuery{Inner: inner}, nil
	case n.Bool != nil:
		q := &models.BooleanQuery{}
		for _, group := range []struct {
			nodes []queryNode
			dst   *[]models.Query
		}{
			{n.Bool.Must, &q.Must},
			{n.Bool.Should, &q.Should},
			{n.Bool.MustNot, &q.MustNot},
		} {
			for i := range group.nodes {
				sub, err := group.nodes[i].toQuery()
				if err != nil {
					return nil, err
				}
				*group.dst = append(*group.dst, sub)
			}
		}
		return q, nil
	default:
		return nil, fmt.Errorf("query must set exactly one of match_all, match_none, term, constant_score, bool")
	}
}

type sortNode struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

func toSortSpec(nodes []sortNode) *models.SortSpec {
	if len(nodes) == 0 {
		return nil
	}
	spec := &models.SortSpec{}
	for _, n := range nodes {
		dir := models.SortAsc
		if n.Desc {
			dir = models.SortDesc
		}
		spec.Fields = append(spec.Fields, models.SortField{Field: n.Field, Direction: dir})
	}
	return spec
}

// searchPayload is the JSON body of search and scroll-open requests.
type searchPayload struct {
	Query          queryNode  `json:"query"`
	PostFilter     *queryNode `json:"post_filter,omitempty"`
	Size           *int       `json:"size,omitempty"`
	MinScore       *float64   `json:"min_score,omitempty"`
	TerminateAfter int        `json:"terminate_after,omitempty"`
	TrackTotalHits *bool      `json:"track_total_hits,omitempty"`
	Sort           []sortNode `json:"sort,omitempty"`
	Scroll         bool       `json:"scroll,omitempty"`
}

type totalHitsBody struct {
	Value    int64  `json:"value"`
	Relation string `json:"relation"`
}

type searchResponse struct {
	ScrollID        string        `json:"scroll_id,omitempty"`
	TotalHits       totalHitsBody `json:"total_hits"`
	MaxScore        *float64      `json:"max_score,omitempty"`
	Hits            []models.Hit  `json:"hits"`
	TerminatedEarly *bool         `json:"terminated_early,omitempty"`
	TookMS          int64         `json:"took_ms"`
}

func toResponse(result *models.Result, scrollID string, tookMS int64) *searchResponse {
	relation := "eq"
	if result.TopDocs.TotalHits.Relation == models.HitsLowerBound {
		relation = "gte"
	}
	resp := &searchResponse{
		ScrollID: scrollID,
		TotalHits: totalHitsBody{
			Value:    result.TopDocs.TotalHits.Value,
			Relation: relation,
		},
		Hits:            result.TopDocs.Hits,
		TerminatedEarly: result.TerminatedEarly,
		TookMS:          tookMS,
	}
	if resp.Hits == nil {
		resp.Hits = []models.Hit{}
	}
	if !math.IsNaN(result.TopDocs.MaxScore) {
		score := result.TopDocs.MaxScore
		resp.MaxScore = &score
	}
	return resp
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
