package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/metakgp/iqps-backend/internal/dto"
	"github.com/metakgp/iqps-backend/internal/models"
	"github.com/metakgp/iqps-backend/internal/paths"
	"github.com/metakgp/iqps-backend/internal/repository"
	appErrors "github.com/metakgp/iqps-backend/pkg/errors"
	"github.com/metakgp/iqps-backend/pkg/middleware/requestid"
)

const pdfMIME = "application/pdf"

type lifecycleStore interface {
	catalogWriter
	UpdateDetails(ctx context.Context, tx repository.Tx, edit models.PaperEdit) (*models.Paper, error)
	SoftDelete(ctx context.Context, tx repository.Tx, id int64) (bool, error)
	PermanentDelete(ctx context.Context, tx repository.Tx, id int64) (*models.Paper, error)
	GetByID(ctx context.Context, id int64) (*models.Paper, error)
	CountUnapproved(ctx context.Context) (int, error)
}

// LifecycleConfig bounds upload batches.
type LifecycleConfig struct {
	MaxFiles    int
	MaxFileSize int64
}

// LifecycleService moves papers through upload, review, approval and deletion while
// keeping each catalog row and its stored file consistent. Every transition writes
// or copies the file before committing the row; a failed file operation rolls the
// row back and a failed commit removes the file that was written.
type LifecycleService struct {
	store     lifecycleStore
	files     paperFileStorage
	paths     *paths.Resolver
	notifier  paperNotifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       LifecycleConfig
}

// NewLifecycleService constructs the service with defaults.
func NewLifecycleService(store lifecycleStore, files paperFileStorage, resolver *paths.Resolver, notifier paperNotifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg LifecycleConfig) *LifecycleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 10
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 * 1024 * 1024
	}
	return &LifecycleService{
		store:     store,
		files:     files,
		paths:     resolver,
		notifier:  notifier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// PairUploads matches uploaded files with their metadata entries by position.
func PairUploads(files []dto.UploadFile, details []dto.UploadDetails) ([]dto.UploadFile, error) {
	if len(files) != len(details) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("received %d files but %d file details", len(files), len(details)))
	}
	paired := make([]dto.UploadFile, len(files))
	for i := range files {
		paired[i] = files[i]
		paired[i].Details = details[i]
	}
	return paired, nil
}

// Upload stores each file as an unapproved paper. A failing file is reported in its
// status and never aborts the rest of the batch.
func (s *LifecycleService) Upload(ctx context.Context, uploads []dto.UploadFile) (statuses []dto.UploadStatus, err error) {
	ctx, span := tracer.Start(ctx, "PaperLifecycle.Upload")
	defer func() { endSpan(span, err) }()

	if len(uploads) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no files were uploaded")
	}
	if len(uploads) > s.cfg.MaxFiles {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d files can be uploaded at once", s.cfg.MaxFiles))
	}
	span.SetAttributes(attribute.Int("upload.files", len(uploads)))

	statuses = make([]dto.UploadStatus, 0, len(uploads))
	uploaded := 0
	for _, upload := range uploads {
		status := s.uploadOne(ctx, upload)
		if status.Status == dto.UploadStatusSuccess {
			uploaded++
		}
		statuses = append(statuses, status)
	}

	if uploaded > 0 {
		pending, countErr := s.store.CountUnapproved(ctx)
		if countErr != nil {
			s.logger.Warn("count unapproved papers for notification", zap.Error(countErr))
			pending = -1
		}
		s.notifier.PapersUploaded(ctx, uploaded, pending)
	}
	return statuses, nil
}

func (s *LifecycleService) uploadOne(ctx context.Context, upload dto.UploadFile) dto.UploadStatus {
	name := upload.Filename
	if name == "" {
		name = upload.Details.Filename
	}
	fail := func(outcome, message string) dto.UploadStatus {
		s.metrics.RecordLifecycle("upload", outcome)
		return dto.UploadStatus{Filename: name, Status: dto.UploadStatusError, Message: message}
	}

	paper, rejection := s.validateUpload(upload)
	if rejection != "" {
		return fail(OutcomeRejected, rejection)
	}

	log := s.logger.With(zap.String("filename", name), zap.String("request_id", requestid.FromContext(ctx)))

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		log.Warn("begin upload transaction", zap.Error(err))
		return fail(OutcomeFailed, publicMessage(catalogError(err, "failed to store paper")))
	}
	defer tx.Rollback() //nolint:errcheck

	if err := s.store.InsertPlaceholder(ctx, tx, paper); err != nil {
		log.Error("insert uploaded paper", zap.Error(err))
		return fail(OutcomeRolledBack, "failed to store paper")
	}
	slug := s.paths.Slug(fmt.Sprintf("%d.pdf", paper.ID), paths.Unapproved)
	if err := s.store.UpdateFilelink(ctx, tx, paper.ID, slug); err != nil {
		log.Error("finalize uploaded paper filelink", zap.Int64("paper_id", paper.ID), zap.Error(err))
		return fail(OutcomeRolledBack, "failed to store paper")
	}

	target := s.paths.PathFromSlug(slug)
	if err := s.files.WriteStream(target, upload.Content); err != nil {
		log.Error("write uploaded paper", zap.Int64("paper_id", paper.ID), zap.String("path", target), zap.Error(err))
		return fail(OutcomeRolledBack, "failed to save the file")
	}

	if err := tx.Commit(); err != nil {
		log.Error("commit uploaded paper", zap.Int64("paper_id", paper.ID), zap.Error(err))
		s.compensate("upload", target)
		return fail(OutcomeRolledBack, "failed to store paper")
	}

	s.metrics.RecordLifecycle("upload", OutcomeSuccess)
	log.Info("paper uploaded", zap.Int64("paper_id", paper.ID), zap.String("filelink", slug))
	return dto.UploadStatus{Filename: name, Status: dto.UploadStatusSuccess, Message: "file uploaded successfully", PaperID: paper.ID}
}

// validateUpload returns the paper to insert, or a message explaining the rejection.
func (s *LifecycleService) validateUpload(upload dto.UploadFile) (*models.Paper, string) {
	if upload.Content == nil || upload.Size <= 0 {
		return nil, "file is empty"
	}
	if upload.Size > s.cfg.MaxFileSize {
		return nil, fmt.Sprintf("file exceeds the %d MiB limit", s.cfg.MaxFileSize/(1024*1024))
	}
	if ct := strings.ToLower(strings.TrimSpace(upload.ContentType)); !strings.HasPrefix(ct, pdfMIME) {
		return nil, "only PDF files are accepted"
	}
	detected, err := mimetype.DetectReader(upload.Content)
	if err != nil || !detected.Is(pdfMIME) {
		return nil, "file content is not a PDF"
	}
	if _, err := upload.Content.Seek(0, io.SeekStart); err != nil {
		return nil, "file could not be read"
	}

	details := upload.Details
	if err := s.validator.Struct(details); err != nil {
		return nil, fmt.Sprintf("invalid file details: %v", err)
	}
	semester, err := models.ParseSemester(details.Semester)
	if err != nil {
		return nil, err.Error()
	}
	exam, err := models.ParseExam(details.Exam)
	if err != nil {
		return nil, err.Error()
	}

	return &models.Paper{
		CourseCode: strings.TrimSpace(details.CourseCode),
		CourseName: strings.TrimSpace(details.CourseName),
		Year:       details.Year,
		Semester:   semester,
		Exam:       exam,
		Note:       strings.TrimSpace(details.Note),
	}, ""
}

// Edit merges req into the stored paper, re-files it when its location changes and
// soft-deletes the papers it replaces, all in one transaction.
func (s *LifecycleService) Edit(ctx context.Context, req dto.EditPaperRequest, actor *models.AdminClaims) (resp *dto.AdminPaperResponse, err error) {
	ctx, span := tracer.Start(ctx, "PaperLifecycle.Edit")
	span.SetAttributes(attribute.Int64("paper.id", req.ID))
	defer func() { endSpan(span, err) }()

	if err := s.validator.Struct(req); err != nil {
		s.metrics.RecordLifecycle("edit", OutcomeRejected)
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid edit payload")
	}
	for _, id := range req.Replace {
		if id == req.ID {
			s.metrics.RecordLifecycle("edit", OutcomeRejected)
			return nil, appErrors.Clone(appErrors.ErrValidation, "a paper cannot replace itself")
		}
	}

	current, err := s.store.GetByID(ctx, req.ID)
	if err != nil {
		return nil, catalogError(err, "failed to load paper")
	}

	edit, err := mergeEdit(*current, req)
	if err != nil {
		s.metrics.RecordLifecycle("edit", OutcomeRejected)
		return nil, err
	}
	if edit.ApproveStatus != current.ApproveStatus && (actor == nil || actor.Username == "") {
		s.metrics.RecordLifecycle("edit", OutcomeRejected)
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "approval changes require an authenticated admin")
	}
	if edit.ApproveStatus && actor != nil {
		edit.ApprovedBy = actor.Username
	}
	edit.Filelink = s.editedFilelink(*current, edit)

	log := s.logger.With(zap.Int64("paper_id", req.ID), zap.String("request_id", requestid.FromContext(ctx)))

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, catalogError(err, "failed to edit paper")
	}
	defer tx.Rollback() //nolint:errcheck

	updated, err := s.store.UpdateDetails(ctx, tx, edit)
	if err != nil {
		s.metrics.RecordLifecycle("edit", OutcomeRolledBack)
		return nil, catalogError(err, "failed to edit paper")
	}
	for _, id := range req.Replace {
		changed, err := s.store.SoftDelete(ctx, tx, id)
		if err != nil {
			s.metrics.RecordLifecycle("edit", OutcomeRolledBack)
			log.Error("soft delete replaced paper", zap.Int64("replaced_id", id), zap.Error(err))
			return nil, catalogError(err, "failed to remove replaced paper")
		}
		if !changed {
			log.Info("replaced paper was not deleted", zap.Int64("replaced_id", id))
		}
	}

	copied := ""
	if edit.Filelink != current.Filelink {
		src := s.paths.PathFromSlug(current.Filelink)
		dst := s.paths.PathFromSlug(edit.Filelink)
		if err := s.files.Copy(src, dst); err != nil {
			s.metrics.RecordLifecycle("edit", OutcomeRolledBack)
			log.Error("copy paper file", zap.String("from", src), zap.String("to", dst), zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to move paper file")
		}
		copied = dst
	}

	if err := tx.Commit(); err != nil {
		s.metrics.RecordLifecycle("edit", OutcomeRolledBack)
		log.Error("commit paper edit", zap.Error(err))
		if copied != "" {
			s.compensate("edit", copied)
		}
		return nil, catalogError(err, "failed to edit paper")
	}

	s.metrics.RecordLifecycle("edit", OutcomeSuccess)
	log.Info("paper edited", zap.Bool("approved", updated.ApproveStatus), zap.String("filelink", updated.Filelink), zap.Int("replaced", len(req.Replace)))

	view, err := adminView(s.paths, *updated)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "paper has an invalid file link")
	}
	return &view, nil
}

func mergeEdit(current models.Paper, req dto.EditPaperRequest) (models.PaperEdit, error) {
	edit := models.PaperEdit{
		ID:            current.ID,
		CourseCode:    current.CourseCode,
		CourseName:    current.CourseName,
		Year:          current.Year,
		Semester:      current.Semester,
		Exam:          current.Exam,
		Note:          current.Note,
		ApproveStatus: current.ApproveStatus,
	}
	if req.CourseCode != nil {
		edit.CourseCode = strings.TrimSpace(*req.CourseCode)
	}
	if req.CourseName != nil {
		edit.CourseName = strings.TrimSpace(*req.CourseName)
	}
	if req.Year != nil {
		edit.Year = *req.Year
	}
	if req.Note != nil {
		edit.Note = strings.TrimSpace(*req.Note)
	}
	if req.ApproveStatus != nil {
		edit.ApproveStatus = *req.ApproveStatus
	}
	if req.Semester != nil {
		semester, err := models.ParseSemester(*req.Semester)
		if err != nil {
			return models.PaperEdit{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
		edit.Semester = semester
	}
	if req.Exam != nil {
		exam, err := models.ParseExam(*req.Exam)
		if err != nil {
			return models.PaperEdit{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
		edit.Exam = exam
	}
	return edit, nil
}

// editedFilelink decides where the paper's file lives after the edit. Library files
// never move; approved papers get a descriptive name; the rest stay keyed by id.
func (s *LifecycleService) editedFilelink(current models.Paper, edit models.PaperEdit) string {
	if current.FromLibrary {
		return current.Filelink
	}
	if edit.ApproveStatus {
		name := paths.Sanitize(fmt.Sprintf("%d_%s_%s_%d_%s_%s",
			edit.ID, edit.CourseCode, edit.CourseName, edit.Year, edit.Semester, edit.Exam))
		return s.paths.Slug(name+".pdf", paths.Approved)
	}
	return s.paths.Slug(fmt.Sprintf("%d.pdf", edit.ID), paths.Unapproved)
}

// SoftDelete hides a non-library paper. It reports false when nothing changed.
func (s *LifecycleService) SoftDelete(ctx context.Context, id int64, actor *models.AdminClaims) (changed bool, err error) {
	ctx, span := tracer.Start(ctx, "PaperLifecycle.SoftDelete")
	span.SetAttributes(attribute.Int64("paper.id", id))
	defer func() { endSpan(span, err) }()

	if actor == nil {
		return false, appErrors.ErrUnauthorized
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return false, catalogError(err, "failed to delete paper")
	}
	defer tx.Rollback() //nolint:errcheck

	changed, err = s.store.SoftDelete(ctx, tx, id)
	if err != nil {
		s.metrics.RecordLifecycle("soft_delete", OutcomeRolledBack)
		return false, catalogError(err, "failed to delete paper")
	}
	if err := tx.Commit(); err != nil {
		s.metrics.RecordLifecycle("soft_delete", OutcomeRolledBack)
		return false, catalogError(err, "failed to delete paper")
	}

	outcome := OutcomeSuccess
	if !changed {
		outcome = OutcomeSkipped
	}
	s.metrics.RecordLifecycle("soft_delete", outcome)
	s.logger.Info("paper soft delete", zap.Int64("paper_id", id), zap.Bool("changed", changed), zap.String("admin", actor.Username))
	return changed, nil
}

// PermanentDelete removes the row and then its files: the current filelink and,
// for uploaded papers, the unapproved copy left behind by an approval. The row
// goes first so the catalog never points at a missing file; a failed file removal
// only leaves an orphan, which is logged and counted.
func (s *LifecycleService) PermanentDelete(ctx context.Context, id int64, actor *models.AdminClaims) (err error) {
	ctx, span := tracer.Start(ctx, "PaperLifecycle.PermanentDelete")
	span.SetAttributes(attribute.Int64("paper.id", id))
	defer func() { endSpan(span, err) }()

	if actor == nil {
		return appErrors.ErrUnauthorized
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return catalogError(err, "failed to delete paper")
	}
	defer tx.Rollback() //nolint:errcheck

	removed, err := s.store.PermanentDelete(ctx, tx, id)
	if err != nil {
		s.metrics.RecordLifecycle("permanent_delete", OutcomeRolledBack)
		return catalogError(err, "failed to delete paper")
	}
	if err := tx.Commit(); err != nil {
		s.metrics.RecordLifecycle("permanent_delete", OutcomeRolledBack)
		return catalogError(err, "failed to delete paper")
	}
	s.metrics.RecordLifecycle("permanent_delete", OutcomeSuccess)

	for _, path := range s.storedPaths(*removed) {
		if err := s.files.Remove(path); err != nil {
			s.metrics.RecordCompensation("permanent_delete", false)
			s.logger.Warn("paper row deleted but file remains", zap.Int64("paper_id", id), zap.String("path", path), zap.Error(err))
		}
	}
	s.logger.Info("paper permanently deleted", zap.Int64("paper_id", id), zap.String("admin", actor.Username), zap.Bool("from_library", removed.FromLibrary))
	return nil
}

// storedPaths lists every file a paper may own. Edits copy rather than move, so an
// approved upload still has its original unapproved file.
func (s *LifecycleService) storedPaths(p models.Paper) []string {
	current := s.paths.PathFromSlug(p.Filelink)
	out := []string{current}
	if !p.FromLibrary {
		if original := s.paths.AbsolutePath(fmt.Sprintf("%d.pdf", p.ID), paths.Unapproved); original != current {
			out = append(out, original)
		}
	}
	return out
}

// compensate removes a file written for a transaction that failed to commit.
func (s *LifecycleService) compensate(operation, path string) {
	removeWritten(s.files, s.metrics, s.logger, operation, path)
}

func removeWritten(files paperFileStorage, metrics *MetricsService, logger *zap.Logger, operation, path string) {
	if err := files.Remove(path); err != nil {
		metrics.RecordCompensation(operation, false)
		logger.Error("orphan file left after failed commit", zap.String("operation", operation), zap.String("path", path), zap.Error(err))
		return
	}
	metrics.RecordCompensation(operation, true)
}
