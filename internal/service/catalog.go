package service

import (
	"context"
	"database/sql"
	"errors"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/metakgp/iqps-backend/internal/dto"
	"github.com/metakgp/iqps-backend/internal/models"
	"github.com/metakgp/iqps-backend/internal/repository"
	appErrors "github.com/metakgp/iqps-backend/pkg/errors"
)

var tracer = otel.Tracer("github.com/metakgp/iqps-backend/internal/service")

// catalogWriter is the transactional side of the catalog store.
type catalogWriter interface {
	BeginTx(ctx context.Context) (repository.Tx, error)
	InsertPlaceholder(ctx context.Context, tx repository.Tx, paper *models.Paper) error
	UpdateFilelink(ctx context.Context, tx repository.Tx, id int64, slug string) error
}

// paperFileStorage is the raw byte store papers are written to.
type paperFileStorage interface {
	WriteStream(path string, r io.Reader) error
	Copy(src, dst string) error
	Remove(path string) error
	Hash(path string) (string, error)
}

// paperNotifier receives fire-and-forget admin notifications.
type paperNotifier interface {
	PapersUploaded(ctx context.Context, count, pending int)
	LibraryImported(ctx context.Context, report dto.ImportReport)
}

type noopNotifier struct{}

func (noopNotifier) PapersUploaded(context.Context, int, int)         {}
func (noopNotifier) LibraryImported(context.Context, dto.ImportReport) {}

// catalogError maps store failures onto API errors.
func catalogError(err error, message string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "paper not found")
	case errors.Is(err, repository.ErrStoreBusy):
		return appErrors.Wrap(err, appErrors.ErrStoreBusy.Code, appErrors.ErrStoreBusy.Status, appErrors.ErrStoreBusy.Message)
	case errors.Is(err, repository.ErrConsistency):
		return appErrors.Wrap(err, appErrors.ErrConsistency.Code, appErrors.ErrConsistency.Status, message)
	default:
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return appErr
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
	}
}

// publicMessage is the client-facing text of err. Wrapped causes stay in the logs.
func publicMessage(err error) string {
	return appErrors.FromError(err).Message
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
