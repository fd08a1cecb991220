package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/metakgp/iqps-backend/internal/dto"
	"github.com/metakgp/iqps-backend/internal/models"
	"github.com/metakgp/iqps-backend/internal/paths"
	"github.com/metakgp/iqps-backend/internal/search"
	appErrors "github.com/metakgp/iqps-backend/pkg/errors"
)

const maxQueryLength = 256

type paperReader interface {
	Search(ctx context.Context, text string, filter models.ExamFilter) ([]models.SearchHit, error)
	FindSimilar(ctx context.Context, filter models.SimilarFilter) ([]models.Paper, error)
	ListUnapproved(ctx context.Context) ([]models.Paper, error)
	ListSoftDeleted(ctx context.Context) ([]models.Paper, error)
	GetByID(ctx context.Context, id int64) (*models.Paper, error)
}

// PaperService serves the read side of the catalog: public search and the admin queues.
type PaperService struct {
	repo    paperReader
	paths   *paths.Resolver
	metrics *MetricsService
	logger  *zap.Logger
}

// NewPaperService constructs the read service.
func NewPaperService(repo paperReader, resolver *paths.Resolver, metrics *MetricsService, logger *zap.Logger) *PaperService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaperService{repo: repo, paths: resolver, metrics: metrics, logger: logger}
}

// Search ranks approved papers against a free-text query. exam is the comma separated
// exam filter; blank means unrestricted.
func (s *PaperService) Search(ctx context.Context, query, exam string) ([]dto.PaperResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "query is required")
	}
	if len(query) > maxQueryLength {
		return nil, appErrors.Clone(appErrors.ErrValidation, "query is too long")
	}
	filter, err := models.ParseExamFilter(exam)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	start := time.Now()
	hits, err := s.repo.Search(ctx, query, filter)
	if err != nil {
		return nil, catalogError(err, "failed to search papers")
	}
	hits = search.Rank(hits)
	s.metrics.ObserveSearch(time.Since(start), len(hits))

	out := make([]dto.PaperResponse, 0, len(hits))
	for _, hit := range hits {
		view, ok := s.publicView(hit.Paper)
		if !ok {
			continue
		}
		view.Score = hit.Score
		out = append(out, view)
	}
	return out, nil
}

// Similar lists live papers that may duplicate the described one.
func (s *PaperService) Similar(ctx context.Context, q dto.SimilarQuery) ([]dto.AdminPaperResponse, error) {
	filter := models.SimilarFilter{CourseCode: strings.TrimSpace(q.CourseCode)}
	if filter.CourseCode == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course_code is required")
	}
	if raw := strings.TrimSpace(q.Year); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "year must be a number")
		}
		filter.Year = &year
	}
	if raw := strings.TrimSpace(q.Semester); raw != "" {
		semester, err := models.ParseSemester(raw)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
		filter.Semester = &semester
	}
	if raw := strings.TrimSpace(q.Exam); raw != "" {
		exam, err := models.ParseExam(raw)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
		filter.Exam = &exam
	}

	papers, err := s.repo.FindSimilar(ctx, filter)
	if err != nil {
		return nil, catalogError(err, "failed to look up similar papers")
	}
	return s.adminViews(papers), nil
}

// Unapproved returns the review queue, oldest first.
func (s *PaperService) Unapproved(ctx context.Context) ([]dto.AdminPaperResponse, error) {
	papers, err := s.repo.ListUnapproved(ctx)
	if err != nil {
		return nil, catalogError(err, "failed to list unapproved papers")
	}
	return s.adminViews(papers), nil
}

// Trash returns soft-deleted papers.
func (s *PaperService) Trash(ctx context.Context) ([]dto.AdminPaperResponse, error) {
	papers, err := s.repo.ListSoftDeleted(ctx)
	if err != nil {
		return nil, catalogError(err, "failed to list deleted papers")
	}
	return s.adminViews(papers), nil
}

// Get returns a single live paper.
func (s *PaperService) Get(ctx context.Context, id int64) (*dto.AdminPaperResponse, error) {
	paper, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, catalogError(err, "failed to load paper")
	}
	view, err := adminView(s.paths, *paper)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "paper has an invalid file link")
	}
	return &view, nil
}

func (s *PaperService) publicView(p models.Paper) (dto.PaperResponse, bool) {
	view, err := publicView(s.paths, p)
	if err != nil {
		s.logger.Warn("skipping paper with invalid file link", zap.Int64("paper_id", p.ID), zap.String("filelink", p.Filelink), zap.Error(err))
		return dto.PaperResponse{}, false
	}
	return view, true
}

func (s *PaperService) adminViews(papers []models.Paper) []dto.AdminPaperResponse {
	out := make([]dto.AdminPaperResponse, 0, len(papers))
	for _, p := range papers {
		view, err := adminView(s.paths, p)
		if err != nil {
			s.logger.Warn("skipping paper with invalid file link", zap.Int64("paper_id", p.ID), zap.String("filelink", p.Filelink), zap.Error(err))
			continue
		}
		out = append(out, view)
	}
	return out
}

func publicView(resolver *paths.Resolver, p models.Paper) (dto.PaperResponse, error) {
	link, err := resolver.URLFromSlug(p.Filelink)
	if err != nil {
		return dto.PaperResponse{}, err
	}
	return dto.PaperResponse{
		ID:          p.ID,
		Filelink:    link,
		FromLibrary: p.FromLibrary,
		CourseCode:  p.CourseCode,
		CourseName:  p.CourseName,
		Year:        p.Year,
		Semester:    p.Semester,
		Exam:        p.Exam,
		Note:        p.Note,
	}, nil
}

func adminView(resolver *paths.Resolver, p models.Paper) (dto.AdminPaperResponse, error) {
	base, err := publicView(resolver, p)
	if err != nil {
		return dto.AdminPaperResponse{}, err
	}
	view := dto.AdminPaperResponse{
		PaperResponse:   base,
		UploadTimestamp: p.UploadTimestamp,
		ApproveStatus:   p.ApproveStatus,
		IsDeleted:       p.IsDeleted,
	}
	if p.ApprovedBy != nil {
		view.ApprovedBy = *p.ApprovedBy
	}
	return view, nil
}
