package service

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/require"

	"github.com/metakgp/iqps-backend/internal/dto"
	"github.com/metakgp/iqps-backend/internal/models"
	"github.com/metakgp/iqps-backend/internal/paths"
	"github.com/metakgp/iqps-backend/internal/repository"
	"github.com/metakgp/iqps-backend/pkg/config"
	"github.com/metakgp/iqps-backend/pkg/storage"
)

// catalogStub keeps committed rows separately from each transaction's staged rows so
// tests can observe what a rollback leaves behind.
type catalogStub struct {
	mu            sync.Mutex
	papers        map[int64]models.Paper
	nextID        int64
	beginErr      error
	commitErr     error
	softDeleteErr error
	hits          []models.SearchHit
	searchFilter  models.ExamFilter
	commits       int
	rollbacks     int
}

func newCatalogStub() *catalogStub {
	return &catalogStub{papers: make(map[int64]models.Paper), nextID: 1}
}

func (s *catalogStub) seed(p models.Paper) models.Paper {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.nextID
	}
	if p.ID >= s.nextID {
		s.nextID = p.ID + 1
	}
	if p.UploadTimestamp.IsZero() {
		p.UploadTimestamp = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(p.ID) * time.Minute)
	}
	s.papers[p.ID] = p
	return p
}

func (s *catalogStub) paper(id int64) (models.Paper, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.papers[id]
	return p, ok
}

func (s *catalogStub) filelinks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	links := make([]string, 0, len(s.papers))
	for _, p := range s.papers {
		links = append(links, p.Filelink)
	}
	return links
}

func requireDistinct(t *testing.T, values []string) {
	t.Helper()
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		require.False(t, seen[v], "duplicate filelink %q", v)
		seen[v] = true
	}
}

func (s *catalogStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.papers)
}

type stubTx struct {
	store  *catalogStub
	papers map[int64]models.Paper
	nextID int64
	done   bool
}

func (t *stubTx) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.commitErr != nil {
		t.store.rollbacks++
		return t.store.commitErr
	}
	t.store.papers = t.papers
	t.store.nextID = t.nextID
	t.store.commits++
	return nil
}

func (t *stubTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.mu.Lock()
	t.store.rollbacks++
	t.store.mu.Unlock()
	return nil
}

func staged(tx repository.Tx) *stubTx {
	return tx.(*stubTx)
}

func (s *catalogStub) BeginTx(ctx context.Context) (repository.Tx, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	papers := make(map[int64]models.Paper, len(s.papers))
	for id, p := range s.papers {
		papers[id] = p
	}
	return &stubTx{store: s, papers: papers, nextID: s.nextID}, nil
}

func (s *catalogStub) InsertPlaceholder(ctx context.Context, tx repository.Tx, paper *models.Paper) error {
	t := staged(tx)
	paper.ID = t.nextID
	t.nextID++
	paper.Filelink = fmt.Sprintf("placeholder/%d", paper.ID)
	paper.UploadTimestamp = time.Now().UTC()
	t.papers[paper.ID] = *paper
	return nil
}

func (s *catalogStub) UpdateFilelink(ctx context.Context, tx repository.Tx, id int64, slug string) error {
	t := staged(tx)
	p, ok := t.papers[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.Filelink = slug
	t.papers[id] = p
	return nil
}

func (s *catalogStub) UpdateDetails(ctx context.Context, tx repository.Tx, edit models.PaperEdit) (*models.Paper, error) {
	t := staged(tx)
	p, ok := t.papers[edit.ID]
	if !ok || p.IsDeleted {
		return nil, sql.ErrNoRows
	}
	p.CourseCode, p.CourseName, p.Year = edit.CourseCode, edit.CourseName, edit.Year
	p.Semester, p.Exam, p.Note = edit.Semester, edit.Exam, edit.Note
	p.Filelink, p.ApproveStatus = edit.Filelink, edit.ApproveStatus
	if edit.ApprovedBy != "" {
		by := edit.ApprovedBy
		p.ApprovedBy = &by
	}
	t.papers[edit.ID] = p
	return &p, nil
}

func (s *catalogStub) SoftDelete(ctx context.Context, tx repository.Tx, id int64) (bool, error) {
	if s.softDeleteErr != nil {
		return false, s.softDeleteErr
	}
	t := staged(tx)
	p, ok := t.papers[id]
	if !ok || p.FromLibrary || p.IsDeleted {
		return false, nil
	}
	p.IsDeleted, p.ApproveStatus = true, false
	t.papers[id] = p
	return true, nil
}

func (s *catalogStub) PermanentDelete(ctx context.Context, tx repository.Tx, id int64) (*models.Paper, error) {
	t := staged(tx)
	p, ok := t.papers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	delete(t.papers, id)
	return &p, nil
}

func (s *catalogStub) GetByID(ctx context.Context, id int64) (*models.Paper, error) {
	p, ok := s.paper(id)
	if !ok || p.IsDeleted {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (s *catalogStub) CountUnapproved(ctx context.Context) (int, error) {
	return len(s.filter(func(p models.Paper) bool { return !p.IsDeleted && !p.ApproveStatus })), nil
}

func (s *catalogStub) ListUnapproved(ctx context.Context) ([]models.Paper, error) {
	return s.filter(func(p models.Paper) bool { return !p.IsDeleted && !p.ApproveStatus }), nil
}

func (s *catalogStub) ListSoftDeleted(ctx context.Context) ([]models.Paper, error) {
	return s.filter(func(p models.Paper) bool { return p.IsDeleted }), nil
}

func (s *catalogStub) FindSimilar(ctx context.Context, f models.SimilarFilter) ([]models.Paper, error) {
	return s.filter(func(p models.Paper) bool {
		return !p.IsDeleted && p.CourseCode == f.CourseCode &&
			(f.Year == nil || *f.Year == p.Year) &&
			(f.Semester == nil || *f.Semester == p.Semester) &&
			(f.Exam == nil || *f.Exam == p.Exam)
	}), nil
}

func (s *catalogStub) Search(ctx context.Context, text string, filter models.ExamFilter) ([]models.SearchHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchFilter = filter
	return append([]models.SearchHit(nil), s.hits...), nil
}

func (s *catalogStub) filter(keep func(models.Paper) bool) []models.Paper {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Paper, 0)
	for _, p := range s.papers {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// faultyFiles is real disk storage with injectable failures.
type faultyFiles struct {
	*storage.LocalStorage
	writeErr  error
	copyErr   error
	removeErr error
}

func (f *faultyFiles) WriteStream(path string, r io.Reader) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	return f.LocalStorage.WriteStream(path, r)
}

func (f *faultyFiles) Copy(src, dst string) error {
	if f.copyErr != nil {
		return f.copyErr
	}
	return f.LocalStorage.Copy(src, dst)
}

func (f *faultyFiles) Remove(path string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	return f.LocalStorage.Remove(path)
}

type notifierSpy struct {
	mu       sync.Mutex
	uploads  [][2]int
	imported []dto.ImportReport
}

func (n *notifierSpy) PapersUploaded(ctx context.Context, count, pending int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.uploads = append(n.uploads, [2]int{count, pending})
}

func (n *notifierSpy) LibraryImported(ctx context.Context, report dto.ImportReport) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.imported = append(n.imported, report)
}

func newTestResolver(t *testing.T) *paths.Resolver {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "iqps", "uploaded"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "peqp", "qp"), 0o755))
	resolver, err := paths.New(config.StorageConfig{
		StaticFilesURL:  "https://static.metakgp.org",
		StorageRoot:     root,
		UploadedQPsPath: "/iqps/uploaded",
		LibraryQPsPath:  "/peqp/qp",
	})
	require.NoError(t, err)
	return resolver
}

func newTestFiles(t *testing.T, resolver *paths.Resolver) *faultyFiles {
	t.Helper()
	local, err := storage.NewLocalStorage(resolver.PathFromSlug(""))
	require.NoError(t, err)
	return &faultyFiles{LocalStorage: local}
}

func pdfFixture(t *testing.T, text string) []byte {
	t.Helper()
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, text)
	buf := &bytes.Buffer{}
	require.NoError(t, pdf.Output(buf))
	return buf.Bytes()
}

func uploadOf(name string, data []byte, details dto.UploadDetails) dto.UploadFile {
	return dto.UploadFile{
		Filename:    name,
		ContentType: "application/pdf",
		Size:        int64(len(data)),
		Content:     bytes.NewReader(data),
		Details:     details,
	}
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}
