package repository

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/metakgp/iqps-backend/internal/models"
	"github.com/metakgp/iqps-backend/internal/search"
)

// buildSearchQuery assembles the hybrid ranking statement. Three candidate lists are
// computed over the visible papers, each capped and ranked independently, then fused
// with reciprocal rank scoring:
//
//	fuzzy      trigram strict word similarity, tolerant of typos
//	full_text  english full-text match, ranked by cover density
//	partial    every query token prefix-matches a word, for as-you-type search
//
// $1 is the raw query and $2 its prefix tsquery; $3 binds exact exam values when the
// filter names any.
func buildSearchQuery(text string, filter models.ExamFilter) (string, []interface{}) {
	args := []interface{}{text, search.PrefixQuery(text)}

	visible := []string{"approve_status = true", "is_deleted = false"}
	if !filter.Unrestricted() {
		exams := []string{"exam = ''"}
		if len(filter.Exams) > 0 {
			args = append(args, pq.Array(filter.Values()))
			exams = append(exams, fmt.Sprintf("exam = ANY($%d)", len(args)))
		}
		if filter.AnyClassTest {
			exams = append(exams, "exam LIKE 'ct%'")
		}
		visible = append(visible, "("+strings.Join(exams, " OR ")+")")
	}

	prefixed := make([]string, 0, 13)
	for _, col := range strings.Split(paperColumns, ",") {
		prefixed = append(prefixed, "p."+strings.TrimSpace(col))
	}

	query := fmt.Sprintf(`WITH filtered AS (
	SELECT * FROM iqps WHERE %[1]s
),
fuzzy AS (
	SELECT id, row_number() OVER (
		ORDER BY strict_word_similarity($1, course_code || ' ' || course_name) DESC
	) AS rank
	FROM filtered
	WHERE (course_code || ' ' || course_name) %%>> $1
	ORDER BY rank
	LIMIT %[2]d
),
full_text AS (
	SELECT id, row_number() OVER (
		ORDER BY ts_rank_cd(fts_course_details, websearch_to_tsquery('english', $1)) DESC
	) AS rank
	FROM filtered
	WHERE fts_course_details @@ websearch_to_tsquery('english', $1)
	ORDER BY rank
	LIMIT %[2]d
),
partial AS (
	SELECT id, row_number() OVER (
		ORDER BY ts_rank_cd(fts_course_details_simple, to_tsquery('simple', $2)) DESC
	) AS rank
	FROM filtered
	WHERE $2 <> '' AND fts_course_details_simple @@ to_tsquery('simple', $2)
	ORDER BY rank
	LIMIT %[2]d
)
SELECT %[3]s,
	fuzzy.rank AS fuzzy_rank,
	full_text.rank AS full_text_rank,
	partial.rank AS partial_rank,
	(coalesce(1.0 / (%[4]d + fuzzy.rank), 0.0)
		+ coalesce(1.0 / (%[4]d + full_text.rank), 0.0)
		+ coalesce(1.0 / (%[4]d + partial.rank), 0.0))::float8 AS score
FROM fuzzy
FULL OUTER JOIN full_text ON full_text.id = fuzzy.id
FULL OUTER JOIN partial ON partial.id = coalesce(fuzzy.id, full_text.id)
JOIN filtered p ON p.id = coalesce(fuzzy.id, full_text.id, partial.id)
ORDER BY score DESC, p.id ASC`,
		strings.Join(visible, " AND "),
		search.CandidateCap,
		strings.Join(prefixed, ", "),
		search.FusionK,
	)

	return query, args
}
