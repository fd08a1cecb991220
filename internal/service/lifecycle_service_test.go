package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metakgp/iqps-backend/internal/dto"
	"github.com/metakgp/iqps-backend/internal/models"
	"github.com/metakgp/iqps-backend/internal/paths"
	"github.com/metakgp/iqps-backend/internal/repository"
	appErrors "github.com/metakgp/iqps-backend/pkg/errors"
)

type lifecycleFixture struct {
	svc      *LifecycleService
	store    *catalogStub
	files    *faultyFiles
	paths    *paths.Resolver
	notifier *notifierSpy
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()
	resolver := newTestResolver(t)
	store := newCatalogStub()
	files := newTestFiles(t, resolver)
	notifier := &notifierSpy{}
	svc := NewLifecycleService(store, files, resolver, notifier, NewMetricsService(), nil, nil, LifecycleConfig{MaxFiles: 3, MaxFileSize: 1 << 20})
	return &lifecycleFixture{svc: svc, store: store, files: files, paths: resolver, notifier: notifier}
}

var admin = &models.AdminClaims{Username: "harshkhandeparkar"}

func validDetails() dto.UploadDetails {
	return dto.UploadDetails{CourseCode: "CS10001", CourseName: "Programming and Data Structures", Year: 2023, Exam: "endsem", Semester: "autumn"}
}

func TestUploadStoresUnapprovedPaper(t *testing.T) {
	f := newLifecycleFixture(t)
	data := pdfFixture(t, "CS10001 endsem")

	statuses, err := f.svc.Upload(context.Background(), []dto.UploadFile{uploadOf("pds.pdf", data, validDetails())})
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, dto.UploadStatusSuccess, statuses[0].Status)
	assert.Equal(t, int64(1), statuses[0].PaperID)

	stored, ok := f.store.paper(1)
	require.True(t, ok)
	assert.Equal(t, "iqps/uploaded/unapproved/1.pdf", stored.Filelink)
	assert.False(t, stored.ApproveStatus)
	assert.False(t, stored.FromLibrary)
	assert.Equal(t, models.Exam("endsem"), stored.Exam)

	written, err := os.ReadFile(f.paths.PathFromSlug(stored.Filelink))
	require.NoError(t, err)
	assert.Equal(t, data, written)
	assert.Equal(t, [][2]int{{1, 1}}, f.notifier.uploads)
}

func TestUploadFailuresDoNotAbortBatch(t *testing.T) {
	f := newLifecycleFixture(t)
	data := pdfFixture(t, "paper")

	notPDF := uploadOf("notes.txt", []byte("plain text"), validDetails())
	notPDF.ContentType = "text/plain"
	spoofed := uploadOf("spoofed.pdf", []byte("definitely not a pdf"), validDetails())
	badDetails := validDetails()
	badDetails.Exam = "quiz"

	statuses, err := f.svc.Upload(context.Background(), []dto.UploadFile{
		notPDF,
		spoofed,
		uploadOf("bad-exam.pdf", data, badDetails),
	})
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	for _, s := range statuses {
		assert.Equal(t, dto.UploadStatusError, s.Status, s.Filename)
	}
	assert.Equal(t, "only PDF files are accepted", statuses[0].Message)
	assert.Equal(t, "file content is not a PDF", statuses[1].Message)
	assert.Zero(t, f.store.count())
	assert.Empty(t, f.notifier.uploads)

	statuses, err = f.svc.Upload(context.Background(), []dto.UploadFile{
		notPDF,
		uploadOf("good.pdf", data, validDetails()),
	})
	require.NoError(t, err)
	assert.Equal(t, dto.UploadStatusError, statuses[0].Status)
	assert.Equal(t, dto.UploadStatusSuccess, statuses[1].Status)
	assert.Equal(t, 1, f.store.count())

	statuses, err = f.svc.Upload(context.Background(), []dto.UploadFile{
		uploadOf("same.pdf", data, validDetails()),
		uploadOf("same.pdf", data, validDetails()),
	})
	require.NoError(t, err)
	for _, s := range statuses {
		assert.Equal(t, dto.UploadStatusSuccess, s.Status)
	}
	assert.Equal(t, 3, f.store.count())
	requireDistinct(t, f.store.filelinks())
}

func TestUploadStatusHidesStoreErrors(t *testing.T) {
	f := newLifecycleFixture(t)
	data := pdfFixture(t, "paper")
	f.store.beginErr = errors.New(`acquire connection: pq: password authentication failed for user "iqps" host 10.0.0.5`)

	statuses, err := f.svc.Upload(context.Background(), []dto.UploadFile{uploadOf("pds.pdf", data, validDetails())})
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, dto.UploadStatusError, statuses[0].Status)
	assert.Equal(t, "failed to store paper", statuses[0].Message)
	assert.NotContains(t, statuses[0].Message, "pq:")

	f.store.beginErr = fmt.Errorf("acquire connection: %w", repository.ErrStoreBusy)
	statuses, err = f.svc.Upload(context.Background(), []dto.UploadFile{uploadOf("pds.pdf", data, validDetails())})
	require.NoError(t, err)
	assert.Equal(t, appErrors.ErrStoreBusy.Message, statuses[0].Message)
}

func TestUploadRejectsBatchBounds(t *testing.T) {
	f := newLifecycleFixture(t)

	_, err := f.svc.Upload(context.Background(), nil)
	require.Error(t, err)

	data := pdfFixture(t, "x")
	batch := make([]dto.UploadFile, 4)
	for i := range batch {
		batch[i] = uploadOf("p.pdf", data, validDetails())
	}
	_, err = f.svc.Upload(context.Background(), batch)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.Status)
}

func TestUploadRollsBackWhenWriteFails(t *testing.T) {
	f := newLifecycleFixture(t)
	f.files.writeErr = errors.New("disk full")

	statuses, err := f.svc.Upload(context.Background(), []dto.UploadFile{uploadOf("pds.pdf", pdfFixture(t, "x"), validDetails())})
	require.NoError(t, err)
	assert.Equal(t, dto.UploadStatusError, statuses[0].Status)
	assert.Equal(t, "failed to save the file", statuses[0].Message)
	assert.Zero(t, f.store.count())
	assert.Equal(t, 1, f.store.rollbacks)
}

func TestUploadRemovesFileWhenCommitFails(t *testing.T) {
	f := newLifecycleFixture(t)
	f.store.commitErr = errors.New("connection reset")

	statuses, err := f.svc.Upload(context.Background(), []dto.UploadFile{uploadOf("pds.pdf", pdfFixture(t, "x"), validDetails())})
	require.NoError(t, err)
	assert.Equal(t, dto.UploadStatusError, statuses[0].Status)
	assert.Zero(t, f.store.count())
	assert.NoFileExists(t, f.paths.AbsolutePath("1.pdf", paths.Unapproved))
}

func TestPairUploadsRequiresMatchingCounts(t *testing.T) {
	files := []dto.UploadFile{{Filename: "a.pdf"}, {Filename: "b.pdf"}}
	_, err := PairUploads(files, []dto.UploadDetails{validDetails()})
	require.Error(t, err)

	second := validDetails()
	second.CourseCode = "MA10002"
	paired, err := PairUploads(files, []dto.UploadDetails{validDetails(), second})
	require.NoError(t, err)
	assert.Equal(t, "MA10002", paired[1].Details.CourseCode)
}

func seedUploaded(t *testing.T, f *lifecycleFixture, p models.Paper, data []byte) models.Paper {
	t.Helper()
	p = f.store.seed(p)
	writeFile(t, f.paths.PathFromSlug(p.Filelink), data)
	return p
}

func TestEditApproveCopiesFileAndRecordsApprover(t *testing.T) {
	f := newLifecycleFixture(t)
	data := pdfFixture(t, "to approve")
	seedUploaded(t, f, models.Paper{
		ID: 7, CourseCode: "CS10001", CourseName: "PDS", Year: 2023,
		Semester: models.SemesterAutumn, Exam: models.ExamEndsem,
		Filelink: "iqps/uploaded/unapproved/7.pdf",
	}, data)

	approve, name := true, "Data Structures"
	resp, err := f.svc.Edit(context.Background(), dto.EditPaperRequest{ID: 7, CourseName: &name, ApproveStatus: &approve}, admin)
	require.NoError(t, err)

	wantSlug := "iqps/uploaded/approved/7_CS10001_Data-Structures_2023_autumn_endsem.pdf"
	assert.Equal(t, "https://static.metakgp.org/"+wantSlug, resp.Filelink)
	assert.Equal(t, admin.Username, resp.ApprovedBy)

	stored, _ := f.store.paper(7)
	assert.Equal(t, wantSlug, stored.Filelink)
	assert.True(t, stored.ApproveStatus)
	copied, err := os.ReadFile(f.paths.PathFromSlug(wantSlug))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, copied))
	assert.FileExists(t, f.paths.PathFromSlug("iqps/uploaded/unapproved/7.pdf"))
}

func TestEditCopyFailureLeavesRowUntouched(t *testing.T) {
	f := newLifecycleFixture(t)
	seedUploaded(t, f, models.Paper{ID: 3, CourseCode: "CS10001", Year: 2022, Filelink: "iqps/uploaded/unapproved/3.pdf"}, pdfFixture(t, "x"))
	f.files.copyErr = errors.New("permission denied")

	approve := true
	_, err := f.svc.Edit(context.Background(), dto.EditPaperRequest{ID: 3, ApproveStatus: &approve}, admin)
	require.Error(t, err)

	stored, _ := f.store.paper(3)
	assert.Equal(t, "iqps/uploaded/unapproved/3.pdf", stored.Filelink)
	assert.False(t, stored.ApproveStatus)
	assert.Nil(t, stored.ApprovedBy)
}

func TestEditCommitFailureRemovesCopiedFile(t *testing.T) {
	f := newLifecycleFixture(t)
	seedUploaded(t, f, models.Paper{ID: 4, CourseCode: "EE20001", Year: 2021, Filelink: "iqps/uploaded/unapproved/4.pdf"}, pdfFixture(t, "x"))
	f.store.commitErr = errors.New("serialization failure")

	approve := true
	_, err := f.svc.Edit(context.Background(), dto.EditPaperRequest{ID: 4, ApproveStatus: &approve}, admin)
	require.Error(t, err)
	entries, err := os.ReadDir(f.paths.Dir(paths.Approved))
	require.NoError(t, err)
	assert.Empty(t, entries)
	stored, _ := f.store.paper(4)
	assert.False(t, stored.ApproveStatus)
}

func TestEditKeepsLibraryFilelink(t *testing.T) {
	f := newLifecycleFixture(t)
	f.store.seed(models.Paper{ID: 9, CourseCode: "MA10001", Year: 2015, FromLibrary: true, Filelink: "peqp/qp/9_MA10001.pdf"})

	approve, year := true, 2016
	resp, err := f.svc.Edit(context.Background(), dto.EditPaperRequest{ID: 9, Year: &year, ApproveStatus: &approve}, admin)
	require.NoError(t, err)
	assert.Equal(t, "https://static.metakgp.org/peqp/qp/9_MA10001.pdf", resp.Filelink)
	assert.Equal(t, 2016, resp.Year)
}

func TestEditReplaceSoftDeletesOthersAtomically(t *testing.T) {
	f := newLifecycleFixture(t)
	seedUploaded(t, f, models.Paper{ID: 1, CourseCode: "CS10001", Year: 2023, Filelink: "iqps/uploaded/unapproved/1.pdf"}, pdfFixture(t, "a"))
	f.store.seed(models.Paper{ID: 2, CourseCode: "CS10001", Year: 2023, ApproveStatus: true, Filelink: "iqps/uploaded/approved/2.pdf"})
	f.store.seed(models.Paper{ID: 5, CourseCode: "CS10001", Year: 2023, FromLibrary: true, Filelink: "peqp/qp/5.pdf"})

	note := "clearer scan"
	_, err := f.svc.Edit(context.Background(), dto.EditPaperRequest{ID: 1, Note: &note, Replace: []int64{2, 5}}, admin)
	require.NoError(t, err)

	replaced, _ := f.store.paper(2)
	assert.True(t, replaced.IsDeleted)
	library, _ := f.store.paper(5)
	assert.False(t, library.IsDeleted)

	f.store.softDeleteErr = errors.New("deadlock detected")
	other := "another note"
	_, err = f.svc.Edit(context.Background(), dto.EditPaperRequest{ID: 1, Note: &other, Replace: []int64{5}}, admin)
	require.Error(t, err)
	stored, _ := f.store.paper(1)
	assert.Equal(t, "clearer scan", stored.Note)
}

func TestEditRejectsInvalidRequests(t *testing.T) {
	f := newLifecycleFixture(t)
	f.store.seed(models.Paper{ID: 1, CourseCode: "CS10001", Year: 2023, Filelink: "iqps/uploaded/unapproved/1.pdf"})

	_, err := f.svc.Edit(context.Background(), dto.EditPaperRequest{ID: 1, Replace: []int64{1}}, admin)
	require.Error(t, err)

	exam := "finals"
	_, err = f.svc.Edit(context.Background(), dto.EditPaperRequest{ID: 1, Exam: &exam}, admin)
	require.Error(t, err)

	approve := true
	_, err = f.svc.Edit(context.Background(), dto.EditPaperRequest{ID: 1, ApproveStatus: &approve}, nil)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusUnauthorized, appErr.Status)

	_, err = f.svc.Edit(context.Background(), dto.EditPaperRequest{ID: 404}, admin)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusNotFound, appErr.Status)
}

func TestSoftDeleteIsIdempotentAndSparesLibrary(t *testing.T) {
	f := newLifecycleFixture(t)
	f.store.seed(models.Paper{ID: 1, CourseCode: "CS10001", Year: 2023, ApproveStatus: true, Filelink: "iqps/uploaded/approved/1.pdf"})
	f.store.seed(models.Paper{ID: 2, CourseCode: "CS10001", Year: 2010, FromLibrary: true, Filelink: "peqp/qp/2.pdf"})

	changed, err := f.svc.SoftDelete(context.Background(), 1, admin)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = f.svc.SoftDelete(context.Background(), 1, admin)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = f.svc.SoftDelete(context.Background(), 2, admin)
	require.NoError(t, err)
	assert.False(t, changed)
	library, _ := f.store.paper(2)
	assert.False(t, library.IsDeleted)

	deleted, _ := f.store.paper(1)
	assert.True(t, deleted.IsDeleted)
	assert.False(t, deleted.ApproveStatus)
}

func TestPermanentDeleteRemovesRowThenFile(t *testing.T) {
	f := newLifecycleFixture(t)
	p := seedUploaded(t, f, models.Paper{ID: 6, CourseCode: "CS10001", Year: 2023, IsDeleted: true, Filelink: "iqps/uploaded/unapproved/6.pdf"}, pdfFixture(t, "x"))

	require.NoError(t, f.svc.PermanentDelete(context.Background(), 6, admin))
	_, ok := f.store.paper(6)
	assert.False(t, ok)
	assert.NoFileExists(t, f.paths.PathFromSlug(p.Filelink))

	err := f.svc.PermanentDelete(context.Background(), 6, admin)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusNotFound, appErr.Status)
}

func TestPermanentDeleteRemovesApprovedAndOriginalFiles(t *testing.T) {
	f := newLifecycleFixture(t)
	data := pdfFixture(t, "approved")
	p := seedUploaded(t, f, models.Paper{
		ID: 9, CourseCode: "CS10001", Year: 2023, ApproveStatus: true,
		Filelink: "iqps/uploaded/approved/9_CS10001_2023.pdf",
	}, data)
	original := f.paths.AbsolutePath("9.pdf", paths.Unapproved)
	writeFile(t, original, data)

	require.NoError(t, f.svc.PermanentDelete(context.Background(), 9, admin))
	assert.NoFileExists(t, f.paths.PathFromSlug(p.Filelink))
	assert.NoFileExists(t, original)
}

func TestPermanentDeleteSucceedsWhenFileRemovalFails(t *testing.T) {
	f := newLifecycleFixture(t)
	p := seedUploaded(t, f, models.Paper{ID: 8, CourseCode: "CS10001", Year: 2023, Filelink: "iqps/uploaded/unapproved/8.pdf"}, pdfFixture(t, "x"))
	f.files.removeErr = errors.New("read-only filesystem")

	require.NoError(t, f.svc.PermanentDelete(context.Background(), 8, admin))
	_, ok := f.store.paper(8)
	assert.False(t, ok)
	assert.FileExists(t, f.paths.PathFromSlug(p.Filelink))
}
