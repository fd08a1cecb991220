package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/metakgp/iqps-backend/internal/dto"
	"github.com/metakgp/iqps-backend/internal/models"
	"github.com/metakgp/iqps-backend/internal/paths"
)

type importStore interface {
	catalogWriter
	FindSimilar(ctx context.Context, filter models.SimilarFilter) ([]models.Paper, error)
}

// ImportOptions tunes a library import run.
type ImportOptions struct {
	// SourceDir holds the files named by the manifest entries.
	SourceDir string
	// DryRun classifies every entry without touching the catalog or storage.
	DryRun bool
}

// LibraryImportService ingests papers from a scraped library archive.
type LibraryImportService struct {
	store     importStore
	files     paperFileStorage
	paths     *paths.Resolver
	notifier  paperNotifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLibraryImportService constructs the importer.
func NewLibraryImportService(store importStore, files paperFileStorage, resolver *paths.Resolver, notifier paperNotifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *LibraryImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &LibraryImportService{
		store:     store,
		files:     files,
		paths:     resolver,
		notifier:  notifier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// LoadManifest reads import entries from a YAML or JSON file.
func LoadManifest(path string) ([]dto.LibraryPaper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var entries []dto.LibraryPaper
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return entries, nil
}

type importDecision int

const (
	importInsert importDecision = iota
	importSkip
	importFlag
)

// Import ingests entries one at a time, in order. The first failure aborts the run;
// the returned report still describes what was done before it.
func (s *LibraryImportService) Import(ctx context.Context, entries []dto.LibraryPaper, opts ImportOptions) (report *dto.ImportReport, err error) {
	ctx, span := tracer.Start(ctx, "LibraryImport.Import")
	defer func() { endSpan(span, err) }()

	report = &dto.ImportReport{
		RunID:   uuid.NewString(),
		Total:   len(entries),
		DryRun:  opts.DryRun,
		Entries: make([]dto.ImportEntryResult, 0, len(entries)),
	}
	log := s.logger.With(zap.String("run_id", report.RunID), zap.Bool("dry_run", opts.DryRun))
	span.SetAttributes(attribute.String("import.run_id", report.RunID), attribute.Int("import.total", len(entries)))

	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := s.importOne(ctx, entry, opts, report, log); err != nil {
			log.Error("library import aborted", zap.Int("entry", i), zap.String("filename", entry.Filename), zap.Error(err))
			return report, fmt.Errorf("import %q: %w", entry.Filename, err)
		}
	}

	log.Info("library import finished",
		zap.Int("total", report.Total),
		zap.Int("imported", report.Imported),
		zap.Int("skipped", report.Skipped),
		zap.Int("flagged", report.Flagged))
	if !opts.DryRun && report.Imported > 0 {
		s.notifier.LibraryImported(ctx, *report)
	}
	return report, nil
}

func (s *LibraryImportService) importOne(ctx context.Context, entry dto.LibraryPaper, opts ImportOptions, report *dto.ImportReport, log *zap.Logger) error {
	if err := s.validator.Struct(entry); err != nil {
		s.metrics.RecordLifecycle("library_import", OutcomeRejected)
		return fmt.Errorf("invalid entry: %w", err)
	}
	name := filepath.FromSlash(entry.Filename)
	if !filepath.IsLocal(name) {
		s.metrics.RecordLifecycle("library_import", OutcomeRejected)
		return fmt.Errorf("filename %q escapes the source directory", entry.Filename)
	}
	source := filepath.Join(opts.SourceDir, name)

	decision, err := s.classify(ctx, entry, source)
	if err != nil {
		s.metrics.RecordLifecycle("library_import", OutcomeFailed)
		return err
	}
	result := dto.ImportEntryResult{Filename: entry.Filename, Decision: dto.ImportImported}
	switch decision {
	case importSkip:
		report.Skipped++
		result.Decision = dto.ImportSkipped
		report.Entries = append(report.Entries, result)
		s.metrics.RecordLifecycle("library_import", OutcomeSkipped)
		log.Info("library paper already imported", zap.String("filename", entry.Filename))
		return nil
	case importFlag:
		result.Decision = dto.ImportFlagged
		entry.ApproveStatus = false
		log.Info("library paper collides with an existing paper, queued for review", zap.String("filename", entry.Filename))
	}

	if !opts.DryRun {
		paper, err := s.insert(ctx, entry, source, log)
		if err != nil {
			return err
		}
		result.PaperID = paper.ID
		result.Filelink = paper.Filelink
	}
	if decision == importFlag {
		report.Flagged++
	}
	report.Imported++
	report.Entries = append(report.Entries, result)
	return nil
}

// classify compares the entry against live papers with the same metadata. An
// identical library file means the entry is already present; any other match needs
// a human to resolve it.
func (s *LibraryImportService) classify(ctx context.Context, entry dto.LibraryPaper, source string) (importDecision, error) {
	hash, err := s.files.Hash(source)
	if err != nil {
		return importInsert, err
	}
	year, semester, exam := entry.Year, entry.Semester, entry.Exam
	similar, err := s.store.FindSimilar(ctx, models.SimilarFilter{
		CourseCode: strings.TrimSpace(entry.CourseCode),
		Year:       &year,
		Semester:   &semester,
		Exam:       &exam,
	})
	if err != nil {
		return importInsert, err
	}

	decision := importInsert
	for _, paper := range similar {
		if !paper.FromLibrary {
			decision = importFlag
			continue
		}
		other, err := s.files.Hash(s.paths.PathFromSlug(paper.Filelink))
		if err != nil {
			s.logger.Warn("hash existing library paper", zap.Int64("paper_id", paper.ID), zap.Error(err))
			decision = importFlag
			continue
		}
		if other == hash {
			return importSkip, nil
		}
		decision = importFlag
	}
	return decision, nil
}

func (s *LibraryImportService) insert(ctx context.Context, entry dto.LibraryPaper, source string, log *zap.Logger) (*models.Paper, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		s.metrics.RecordLifecycle("library_import", OutcomeFailed)
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	paper := &models.Paper{
		CourseCode:    strings.TrimSpace(entry.CourseCode),
		CourseName:    strings.TrimSpace(entry.CourseName),
		Year:          entry.Year,
		Semester:      entry.Semester,
		Exam:          entry.Exam,
		FromLibrary:   true,
		ApproveStatus: entry.ApproveStatus,
	}
	if err := s.store.InsertPlaceholder(ctx, tx, paper); err != nil {
		s.metrics.RecordLifecycle("library_import", OutcomeRolledBack)
		return nil, err
	}
	slug := s.paths.Slug(libraryFilename(paper.ID, entry.Filename), paths.Library)
	if err := s.store.UpdateFilelink(ctx, tx, paper.ID, slug); err != nil {
		s.metrics.RecordLifecycle("library_import", OutcomeRolledBack)
		return nil, err
	}
	target := s.paths.PathFromSlug(slug)
	if err := s.files.Copy(source, target); err != nil {
		s.metrics.RecordLifecycle("library_import", OutcomeRolledBack)
		return nil, fmt.Errorf("copy library file: %w", err)
	}
	if err := tx.Commit(); err != nil {
		s.metrics.RecordLifecycle("library_import", OutcomeRolledBack)
		removeWritten(s.files, s.metrics, s.logger, "library_import", target)
		return nil, err
	}

	s.metrics.RecordLifecycle("library_import", OutcomeSuccess)
	paper.Filelink = slug
	log.Info("library paper imported", zap.Int64("paper_id", paper.ID), zap.String("filelink", slug), zap.Bool("approved", paper.ApproveStatus))
	return paper, nil
}

// libraryFilename names an imported file after its id and a sanitized source name.
func libraryFilename(id int64, source string) string {
	base := filepath.Base(filepath.FromSlash(source))
	ext := strings.ToLower(filepath.Ext(base))
	stem := paths.Sanitize(strings.TrimSuffix(base, filepath.Ext(base)))
	if stem == "" {
		return fmt.Sprintf("%d%s", id, ext)
	}
	return fmt.Sprintf("%d_%s%s", id, stem, ext)
}
