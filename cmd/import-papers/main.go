package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/metakgp/iqps-backend/internal/dto"
	"github.com/metakgp/iqps-backend/internal/paths"
	"github.com/metakgp/iqps-backend/internal/repository"
	"github.com/metakgp/iqps-backend/internal/service"
	"github.com/metakgp/iqps-backend/pkg/config"
	"github.com/metakgp/iqps-backend/pkg/database"
	"github.com/metakgp/iqps-backend/pkg/export"
	"github.com/metakgp/iqps-backend/pkg/logger"
	"github.com/metakgp/iqps-backend/pkg/observability"
	"github.com/metakgp/iqps-backend/pkg/storage"
)

type options struct {
	manifest string
	source   string
	archive  string
	report   string
	dryRun   bool
}

func main() {
	var opts options
	flag.StringVar(&opts.manifest, "manifest", "", "YAML or JSON manifest listing the library papers")
	flag.StringVar(&opts.source, "source", ".", "Directory holding the files named in the manifest")
	flag.StringVar(&opts.archive, "archive", "", "Optional .tar.gz of papers; extracted and used instead of -source")
	flag.StringVar(&opts.report, "report", "", "Write a per-entry report to this .csv or .pdf file")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "Classify entries without writing files or rows")
	flag.Parse()

	if opts.manifest == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr, opts); err != nil {
		logr.Error("library import failed", zap.Error(err))
		_ = logr.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logr *zap.Logger, opts options) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	entries, err := service.LoadManifest(opts.manifest)
	if err != nil {
		return err
	}

	sourceDir := opts.source
	if opts.archive != "" {
		tmp, err := os.MkdirTemp("", "iqps-import-")
		if err != nil {
			return fmt.Errorf("create extraction dir: %w", err)
		}
		defer os.RemoveAll(tmp) //nolint:errcheck
		if err := storage.ExtractTarGz(opts.archive, tmp); err != nil {
			return fmt.Errorf("extract %s: %w", opts.archive, err)
		}
		sourceDir = tmp
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	resolver, err := paths.New(cfg.Storage)
	if err != nil {
		return fmt.Errorf("resolve storage paths: %w", err)
	}
	files, err := storage.NewLocalStorage(cfg.Storage.StorageRoot)
	if err != nil {
		return fmt.Errorf("open storage root: %w", err)
	}

	notifier := service.NewNotificationService(cfg.Notify, logr)
	notifier.Start(ctx)
	defer notifier.Stop()

	importer := service.NewLibraryImportService(
		repository.NewPaperRepository(db, cfg.Database.AcquireTimeout),
		files,
		resolver,
		notifier,
		service.NewMetricsService(),
		validator.New(),
		logr,
	)

	report, importErr := importer.Import(ctx, entries, service.ImportOptions{SourceDir: sourceDir, DryRun: opts.dryRun})
	if report != nil && opts.report != "" {
		if err := writeReport(opts.report, report); err != nil {
			logr.Error("failed to write import report", zap.String("path", opts.report), zap.Error(err))
		}
	}
	if importErr != nil {
		return importErr
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Notify.Timeout*time.Duration(cfg.Notify.Retries+1))
	defer cancel()
	if err := notifier.Flush(flushCtx); err != nil {
		logr.Warn("notification not delivered", zap.Error(err))
	}

	fmt.Printf("run %s: %d entries, %d imported, %d skipped, %d flagged (dry run: %t)\n",
		report.RunID, report.Total, report.Imported, report.Skipped, report.Flagged, report.DryRun)
	return nil
}

func writeReport(path string, report *dto.ImportReport) error {
	title := fmt.Sprintf("Library import %s", report.RunID)
	if report.DryRun {
		title += " (dry run)"
	}
	table := export.Table{
		Title:   title,
		Headers: []string{"Filename", "Decision", "Paper ID", "File"},
		Rows:    make([][]string, 0, len(report.Entries)),
	}
	for _, entry := range report.Entries {
		id := ""
		if entry.PaperID > 0 {
			id = strconv.FormatInt(entry.PaperID, 10)
		}
		table.Rows = append(table.Rows, []string{entry.Filename, entry.Decision, id, entry.Filelink})
	}

	data, err := export.Render(path, table)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
