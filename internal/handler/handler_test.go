package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metakgp/iqps-backend/internal/dto"
	"github.com/metakgp/iqps-backend/internal/middleware"
	"github.com/metakgp/iqps-backend/internal/models"
	appErrors "github.com/metakgp/iqps-backend/pkg/errors"
)

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func testContext(method, target string, body io.Reader) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, body)
	return c, rec
}

func asAdmin(c *gin.Context) {
	c.Set(middleware.ContextUserKey, &models.AdminClaims{Username: "octocat"})
	c.Set(middleware.ContextTokenKey, "token-123")
}

type fakeSearch struct {
	query, exam string
	result      []dto.PaperResponse
	err         error
}

func (f *fakeSearch) Search(_ context.Context, query, exam string) ([]dto.PaperResponse, error) {
	f.query, f.exam = query, exam
	return f.result, f.err
}

func TestSearchHandlerPassesQueryAndCounts(t *testing.T) {
	svc := &fakeSearch{result: []dto.PaperResponse{{ID: 1, CourseCode: "CS10001"}, {ID: 2, CourseCode: "CS10002"}}}
	c, rec := testContext(http.MethodGet, "/search?query=programming&exam=midsem,ct", nil)

	NewSearchHandler(svc).Search(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "programming", svc.query)
	assert.Equal(t, "midsem,ct", svc.exam)
	env := decode(t, rec)
	assert.EqualValues(t, 2, env.Meta["count"])
}

func TestSearchHandlerMapsValidationError(t *testing.T) {
	svc := &fakeSearch{err: appErrors.Clone(appErrors.ErrValidation, "query is required")}
	c, rec := testContext(http.MethodGet, "/search", nil)

	NewSearchHandler(svc).Search(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "query is required", decode(t, rec).Error.Message)
}

type fakeLifecycle struct {
	edited    dto.EditPaperRequest
	actor     *models.AdminClaims
	changed   bool
	deleteErr error
}

func (f *fakeLifecycle) Edit(_ context.Context, req dto.EditPaperRequest, actor *models.AdminClaims) (*dto.AdminPaperResponse, error) {
	f.edited, f.actor = req, actor
	return &dto.AdminPaperResponse{PaperResponse: dto.PaperResponse{ID: req.ID}}, nil
}

func (f *fakeLifecycle) SoftDelete(_ context.Context, id int64, actor *models.AdminClaims) (bool, error) {
	f.actor = actor
	return f.changed, nil
}

func (f *fakeLifecycle) PermanentDelete(_ context.Context, id int64, actor *models.AdminClaims) error {
	f.actor = actor
	return f.deleteErr
}

type fakeQueries struct{ similar dto.SimilarQuery }

func (f *fakeQueries) Similar(_ context.Context, q dto.SimilarQuery) ([]dto.AdminPaperResponse, error) {
	f.similar = q
	return []dto.AdminPaperResponse{}, nil
}

func (f *fakeQueries) Unapproved(context.Context) ([]dto.AdminPaperResponse, error) {
	return []dto.AdminPaperResponse{{ApproveStatus: false}}, nil
}

func (f *fakeQueries) Trash(context.Context) ([]dto.AdminPaperResponse, error) {
	return nil, nil
}

func TestEditHandlerPassesActor(t *testing.T) {
	lifecycle := &fakeLifecycle{}
	c, rec := testContext(http.MethodPost, "/edit", strings.NewReader(`{"id":7,"approve_status":true,"replace":[3]}`))
	c.Request.Header.Set("Content-Type", "application/json")
	asAdmin(c)

	NewPaperHandler(&fakeQueries{}, lifecycle).Edit(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(7), lifecycle.edited.ID)
	require.NotNil(t, lifecycle.edited.ApproveStatus)
	assert.True(t, *lifecycle.edited.ApproveStatus)
	assert.Equal(t, []int64{3}, lifecycle.edited.Replace)
	assert.Equal(t, "octocat", lifecycle.actor.Username)
}

func TestEditHandlerRequiresAdmin(t *testing.T) {
	c, rec := testContext(http.MethodPost, "/edit", strings.NewReader(`{"id":7}`))
	c.Request.Header.Set("Content-Type", "application/json")

	NewPaperHandler(&fakeQueries{}, &fakeLifecycle{}).Edit(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeleteHandlerReportsUnchangedPaper(t *testing.T) {
	c, rec := testContext(http.MethodPost, "/delete", strings.NewReader(`{"id":9}`))
	c.Request.Header.Set("Content-Type", "application/json")
	asAdmin(c)

	NewPaperHandler(&fakeQueries{}, &fakeLifecycle{changed: false}).Delete(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPermanentDeleteHandler(t *testing.T) {
	c, rec := testContext(http.MethodPost, "/permanent-delete", strings.NewReader(`{"id":9}`))
	c.Request.Header.Set("Content-Type", "application/json")
	asAdmin(c)
	NewPaperHandler(&fakeQueries{}, &fakeLifecycle{}).PermanentDelete(c)
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Empty(t, rec.Body.String())

	c, rec = testContext(http.MethodPost, "/permanent-delete", strings.NewReader(`{"id":0}`))
	c.Request.Header.Set("Content-Type", "application/json")
	asAdmin(c)
	NewPaperHandler(&fakeQueries{}, &fakeLifecycle{}).PermanentDelete(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSimilarHandlerBindsQuery(t *testing.T) {
	queries := &fakeQueries{}
	c, rec := testContext(http.MethodGet, "/similar?course_code=CS10001&year=2023&exam=endsem", nil)
	asAdmin(c)

	NewPaperHandler(queries, &fakeLifecycle{}).Similar(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.SimilarQuery{CourseCode: "CS10001", Year: "2023", Exam: "endsem"}, queries.similar)
}

type fakeUploads struct{ received []dto.UploadFile }

func (f *fakeUploads) Upload(_ context.Context, uploads []dto.UploadFile) ([]dto.UploadStatus, error) {
	f.received = uploads
	out := make([]dto.UploadStatus, len(uploads))
	for i, u := range uploads {
		data, _ := io.ReadAll(u.Content)
		out[i] = dto.UploadStatus{Filename: u.Filename, Status: dto.UploadStatusSuccess, Message: string(data)}
	}
	return out, nil
}

func multipartBody(t *testing.T, details string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if details != "" {
		require.NoError(t, w.WriteField("file_details", details))
	}
	for name, content := range files {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
		h.Set("Content-Type", "application/pdf")
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestUploadHandlerPairsFilesWithDetails(t *testing.T) {
	svc := &fakeUploads{}
	body, contentType := multipartBody(t, `[{"course_code":"CS10001","year":2023,"exam":"endsem","semester":"autumn"}]`,
		map[string]string{"pds.pdf": "%PDF-1.4 body"})
	c, rec := testContext(http.MethodPost, "/upload", body)
	c.Request.Header.Set("Content-Type", contentType)

	NewUploadHandler(svc, 1<<20).Upload(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.received, 1)
	assert.Equal(t, "pds.pdf", svc.received[0].Filename)
	assert.Equal(t, "application/pdf", svc.received[0].ContentType)
	assert.Equal(t, "CS10001", svc.received[0].Details.CourseCode)

	var statuses []dto.UploadStatus
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &statuses))
	assert.Equal(t, "%PDF-1.4 body", statuses[0].Message)
}

func TestUploadHandlerRejectsMismatchedDetails(t *testing.T) {
	body, contentType := multipartBody(t, `[]`, map[string]string{"pds.pdf": "%PDF-1.4"})
	c, rec := testContext(http.MethodPost, "/upload", body)
	c.Request.Header.Set("Content-Type", contentType)

	NewUploadHandler(&fakeUploads{}, 1<<20).Upload(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, contentType = multipartBody(t, "", map[string]string{"pds.pdf": "%PDF-1.4"})
	c, rec = testContext(http.MethodPost, "/upload", body)
	c.Request.Header.Set("Content-Type", contentType)

	NewUploadHandler(&fakeUploads{}, 1<<20).Upload(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfileEchoesTokenAndUsername(t *testing.T) {
	c, rec := testContext(http.MethodGet, "/profile", nil)
	asAdmin(c)

	NewAuthHandler(nil).Profile(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var profile dto.ProfileResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &profile))
	assert.Equal(t, dto.ProfileResponse{Token: "token-123", Username: "octocat"}, profile)
}

type pingStub struct{ err error }

func (p pingStub) PingContext(context.Context) error { return p.err }

func TestHealthReportsDatabase(t *testing.T) {
	c, rec := testContext(http.MethodGet, "/health", nil)
	NewMetricsHandler(nil, pingStub{}).Health(c)
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = testContext(http.MethodGet, "/health", nil)
	NewMetricsHandler(nil, pingStub{err: context.DeadlineExceeded}).Health(c)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
