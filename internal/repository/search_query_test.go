package repository

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metakgp/iqps-backend/internal/models"
)

func TestBuildSearchQueryUnrestricted(t *testing.T) {
	query, args := buildSearchQuery("programming", models.ExamFilter{})

	require.Len(t, args, 2)
	assert.Equal(t, "programming", args[0])
	assert.Equal(t, "programming:*", args[1])
	assert.Contains(t, query, "approve_status = true AND is_deleted = false\n")
	assert.NotContains(t, query, "exam = ''")
	assert.Equal(t, 3, strings.Count(query, "LIMIT 30"))
	assert.Equal(t, 3, strings.Count(query, "1.0 / (50 + "))
	assert.Contains(t, query, "%>> $1")
	assert.Contains(t, query, "FULL OUTER JOIN full_text")
	assert.Contains(t, query, "ORDER BY score DESC")
}

func TestBuildSearchQueryExamFilters(t *testing.T) {
	exact, err := models.ParseExamFilter("midsem,endsem")
	require.NoError(t, err)
	query, args := buildSearchQuery("maths", exact)
	require.Len(t, args, 3)
	assert.Contains(t, query, "(exam = '' OR exam = ANY($3))")
	assert.NotContains(t, query, "LIKE 'ct%'")

	anyCT, err := models.ParseExamFilter("ct")
	require.NoError(t, err)
	query, args = buildSearchQuery("maths", anyCT)
	require.Len(t, args, 2)
	assert.Contains(t, query, "(exam = '' OR exam LIKE 'ct%')")

	mixed, err := models.ParseExamFilter("ct,endsem")
	require.NoError(t, err)
	query, _ = buildSearchQuery("maths", mixed)
	assert.Contains(t, query, "(exam = '' OR exam = ANY($3) OR exam LIKE 'ct%')")
}
