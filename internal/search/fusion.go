// Package search holds the rank fusion used to order hybrid search results and the
// prefix query builder for the as-you-type candidate list.
package search

import (
	"sort"
	"strings"
	"unicode"

	"github.com/metakgp/iqps-backend/internal/models"
)

const (
	// FusionK damps the weight of top ranks so one list cannot dominate.
	FusionK = 50
	// CandidateCap bounds each candidate list before fusion.
	CandidateCap = 30
)

// FusedScore sums 1/(FusionK+rank) over the lists a result appeared in. Ranks are
// 1-based; non-positive ranks mean the result was absent from that list.
func FusedScore(ranks ...int64) float64 {
	var score float64
	for _, rank := range ranks {
		if rank <= 0 {
			continue
		}
		score += 1.0 / float64(FusionK+rank)
	}
	return score
}

// Rank recomputes each hit's fused score from its per-list ranks and sorts the
// hits best first.
func Rank(hits []models.SearchHit) []models.SearchHit {
	for i := range hits {
		hits[i].Score = FusedScore(deref(hits[i].FuzzyRank), deref(hits[i].FullTextRank), deref(hits[i].PartialRank))
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	return hits
}

// PrefixQuery converts free text into a tsquery in which every token must
// prefix-match, e.g. "prog data" becomes "prog:* & data:*". Characters that carry
// meaning in tsquery syntax are dropped.
func PrefixQuery(raw string) string {
	tokens := strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		return ""
	}
	for i, tok := range tokens {
		tokens[i] = tok + ":*"
	}
	return strings.Join(tokens, " & ")
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
