package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metakgp/iqps-backend/internal/dto"
	"github.com/metakgp/iqps-backend/internal/models"
	appErrors "github.com/metakgp/iqps-backend/pkg/errors"
)

func rank(v int64) *int64 { return &v }

func newPaperServiceFixture(t *testing.T) (*PaperService, *catalogStub) {
	t.Helper()
	store := newCatalogStub()
	return NewPaperService(store, newTestResolver(t), NewMetricsService(), nil), store
}

func TestSearchOrdersByFusedScore(t *testing.T) {
	svc, store := newPaperServiceFixture(t)
	store.hits = []models.SearchHit{
		{Paper: models.Paper{ID: 2, CourseCode: "CS10001", Filelink: "iqps/uploaded/approved/2.pdf"}, FullTextRank: rank(1)},
		{Paper: models.Paper{ID: 1, CourseCode: "CS10002", Filelink: "iqps/uploaded/approved/1.pdf"}, FuzzyRank: rank(2), PartialRank: rank(2)},
		{Paper: models.Paper{ID: 3, CourseCode: "CS10003", Filelink: "../../etc/passwd"}, FuzzyRank: rank(1)},
	}

	results, err := svc.Search(context.Background(), "  programming  ", "midsem,ct")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].ID)
	assert.Equal(t, int64(2), results[1].ID)
	assert.InDelta(t, 2.0/52.0, results[0].Score, 1e-12)
	assert.InDelta(t, 1.0/51.0, results[1].Score, 1e-12)
	assert.Equal(t, "https://static.metakgp.org/iqps/uploaded/approved/1.pdf", results[0].Filelink)

	assert.True(t, store.searchFilter.AnyClassTest)
	assert.Equal(t, []string{"midsem"}, store.searchFilter.Values())
}

func TestSearchValidatesInput(t *testing.T) {
	svc, _ := newPaperServiceFixture(t)

	_, err := svc.Search(context.Background(), "   ", "")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.Status)

	_, err = svc.Search(context.Background(), "maths", "finals")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.Status)
}

func TestSimilarAppliesOnlyProvidedFields(t *testing.T) {
	svc, store := newPaperServiceFixture(t)
	store.seed(models.Paper{ID: 1, CourseCode: "CS10001", Year: 2023, Exam: models.ExamEndsem, Filelink: "iqps/uploaded/unapproved/1.pdf"})
	store.seed(models.Paper{ID: 2, CourseCode: "CS10001", Year: 2022, Exam: models.ExamEndsem, Filelink: "iqps/uploaded/unapproved/2.pdf"})
	store.seed(models.Paper{ID: 3, CourseCode: "CS10001", Year: 2023, Exam: models.ExamMidsem, Filelink: "iqps/uploaded/unapproved/3.pdf"})

	all, err := svc.Similar(context.Background(), dto.SimilarQuery{CourseCode: "CS10001"})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	narrowed, err := svc.Similar(context.Background(), dto.SimilarQuery{CourseCode: "CS10001", Year: "2023", Exam: "endsem"})
	require.NoError(t, err)
	require.Len(t, narrowed, 1)
	assert.Equal(t, int64(1), narrowed[0].ID)

	_, err = svc.Similar(context.Background(), dto.SimilarQuery{CourseCode: "CS10001", Year: "last year"})
	require.Error(t, err)
}

func TestReviewQueues(t *testing.T) {
	svc, store := newPaperServiceFixture(t)
	approvedBy := "admin"
	store.seed(models.Paper{ID: 1, CourseCode: "A", Filelink: "iqps/uploaded/unapproved/1.pdf"})
	store.seed(models.Paper{ID: 2, CourseCode: "B", ApproveStatus: true, ApprovedBy: &approvedBy, Filelink: "iqps/uploaded/approved/2.pdf"})
	store.seed(models.Paper{ID: 3, CourseCode: "C", IsDeleted: true, Filelink: "iqps/uploaded/unapproved/3.pdf"})

	queue, err := svc.Unapproved(context.Background())
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, int64(1), queue[0].ID)

	trash, err := svc.Trash(context.Background())
	require.NoError(t, err)
	require.Len(t, trash, 1)
	assert.True(t, trash[0].IsDeleted)

	paper, err := svc.Get(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "admin", paper.ApprovedBy)

	_, err = svc.Get(context.Background(), 3)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusNotFound, appErr.Status)
}
