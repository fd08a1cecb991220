package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/metakgp/iqps-backend/internal/models"
)

const paperColumns = `id, course_code, course_name, year, semester, exam, note, filelink,
	from_library, upload_timestamp, approve_status, approved_by, is_deleted`

// PaperRepository persists question paper rows. Mutations run inside a caller-owned
// Tx; the repository never commits a multi-step change on its own.
type PaperRepository struct {
	db             *sqlx.DB
	acquireTimeout time.Duration
}

// NewPaperRepository constructs the repository. acquireTimeout bounds how long a call
// waits for a pooled connection; zero selects the default.
func NewPaperRepository(db *sqlx.DB, acquireTimeout time.Duration) *PaperRepository {
	if acquireTimeout <= 0 {
		acquireTimeout = defaultAcquireTimeout
	}
	return &PaperRepository{db: db, acquireTimeout: acquireTimeout}
}

// InsertPlaceholder stores a new paper with a unique placeholder filelink and fills in
// the assigned id. The caller must finalize the filelink in the same transaction.
func (r *PaperRepository) InsertPlaceholder(ctx context.Context, tx Tx, paper *models.Paper) error {
	sqlTx, err := unwrapTx(tx)
	if err != nil {
		return err
	}
	paper.Filelink = "placeholder/" + uuid.NewString()
	const query = `INSERT INTO iqps
	(course_code, course_name, year, semester, exam, note, filelink, from_library, approve_status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING id, upload_timestamp`
	row := sqlTx.QueryRowxContext(ctx, query,
		paper.CourseCode, paper.CourseName, paper.Year, paper.Semester, paper.Exam,
		paper.Note, paper.Filelink, paper.FromLibrary, paper.ApproveStatus)
	if err := row.Scan(&paper.ID, &paper.UploadTimestamp); err != nil {
		return fmt.Errorf("insert paper: %w", err)
	}
	return nil
}

// UpdateFilelink replaces the placeholder filelink of a freshly inserted paper.
func (r *PaperRepository) UpdateFilelink(ctx context.Context, tx Tx, id int64, slug string) error {
	sqlTx, err := unwrapTx(tx)
	if err != nil {
		return err
	}
	const query = `UPDATE iqps SET filelink = $2 WHERE id = $1`
	res, err := sqlTx.ExecContext(ctx, query, id, slug)
	if err != nil {
		return fmt.Errorf("update filelink: %w", err)
	}
	return expectOneRow(res, "update filelink")
}

// UpdateDetails applies an edit to a live paper and returns the stored row.
// approved_by only changes when edit.ApprovedBy is set.
func (r *PaperRepository) UpdateDetails(ctx context.Context, tx Tx, edit models.PaperEdit) (*models.Paper, error) {
	sqlTx, err := unwrapTx(tx)
	if err != nil {
		return nil, err
	}
	query := `UPDATE iqps SET
		course_code = $2, course_name = $3, year = $4, semester = $5, exam = $6, note = $7,
		filelink = $8, approve_status = $9, approved_by = COALESCE(NULLIF($10, ''), approved_by)
	WHERE id = $1 AND is_deleted = false
	RETURNING ` + paperColumns
	var paper models.Paper
	if err := sqlTx.GetContext(ctx, &paper, query,
		edit.ID, edit.CourseCode, edit.CourseName, edit.Year, edit.Semester, edit.Exam, edit.Note,
		edit.Filelink, edit.ApproveStatus, edit.ApprovedBy); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("update paper details: %w", err)
	}
	return &paper, nil
}

// SoftDelete hides a live, non-library paper. It reports false when nothing changed
// because the paper is missing, already deleted or from the library.
func (r *PaperRepository) SoftDelete(ctx context.Context, tx Tx, id int64) (bool, error) {
	sqlTx, err := unwrapTx(tx)
	if err != nil {
		return false, err
	}
	const query = `UPDATE iqps SET approve_status = false, is_deleted = true
	WHERE id = $1 AND from_library = false AND is_deleted = false`
	res, err := sqlTx.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("soft delete paper: %w", err)
	}
	if err := expectOneRow(res, "soft delete"); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// PermanentDelete removes the row outright and returns it so the caller can purge the file.
func (r *PaperRepository) PermanentDelete(ctx context.Context, tx Tx, id int64) (*models.Paper, error) {
	sqlTx, err := unwrapTx(tx)
	if err != nil {
		return nil, err
	}
	query := `DELETE FROM iqps WHERE id = $1 RETURNING ` + paperColumns
	var removed []models.Paper
	if err := sqlTx.SelectContext(ctx, &removed, query, id); err != nil {
		return nil, fmt.Errorf("permanently delete paper: %w", err)
	}
	switch len(removed) {
	case 0:
		return nil, sql.ErrNoRows
	case 1:
		return &removed[0], nil
	default:
		return nil, fmt.Errorf("permanent delete touched %d rows: %w", len(removed), ErrConsistency)
	}
}

// GetByID returns a live paper.
func (r *PaperRepository) GetByID(ctx context.Context, id int64) (*models.Paper, error) {
	var paper models.Paper
	err := r.withConn(ctx, func(conn *sqlx.Conn) error {
		query := `SELECT ` + paperColumns + ` FROM iqps WHERE id = $1 AND is_deleted = false`
		return conn.GetContext(ctx, &paper, query, id)
	})
	if err != nil {
		return nil, err
	}
	return &paper, nil
}

// ListUnapproved returns the review queue, oldest upload first.
func (r *PaperRepository) ListUnapproved(ctx context.Context) ([]models.Paper, error) {
	query := `SELECT ` + paperColumns + ` FROM iqps
	WHERE approve_status = false AND is_deleted = false
	ORDER BY upload_timestamp ASC`
	return r.selectPapers(ctx, "list unapproved papers", query)
}

// CountUnapproved returns the length of the review queue.
func (r *PaperRepository) CountUnapproved(ctx context.Context) (int, error) {
	var count int
	err := r.withConn(ctx, func(conn *sqlx.Conn) error {
		const query = `SELECT COUNT(*) FROM iqps WHERE approve_status = false AND is_deleted = false`
		return conn.GetContext(ctx, &count, query)
	})
	if err != nil {
		return 0, fmt.Errorf("count unapproved papers: %w", err)
	}
	return count, nil
}

// ListSoftDeleted returns the trash, most recent upload first.
func (r *PaperRepository) ListSoftDeleted(ctx context.Context) ([]models.Paper, error) {
	query := `SELECT ` + paperColumns + ` FROM iqps WHERE is_deleted = true ORDER BY upload_timestamp DESC`
	return r.selectPapers(ctx, "list deleted papers", query)
}

// FindSimilar returns live papers for the same course, optionally narrowed by year,
// semester and exam. Used to flag duplicates before upload and during import.
func (r *PaperRepository) FindSimilar(ctx context.Context, filter models.SimilarFilter) ([]models.Paper, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + paperColumns + ` FROM iqps`)
	args := []interface{}{filter.CourseCode}
	conditions := []string{"is_deleted = false", "course_code = $1"}

	if filter.Year != nil {
		args = append(args, *filter.Year)
		conditions = append(conditions, fmt.Sprintf("year = $%d", len(args)))
	}
	if filter.Semester != nil {
		args = append(args, *filter.Semester)
		conditions = append(conditions, fmt.Sprintf("semester = $%d", len(args)))
	}
	if filter.Exam != nil {
		args = append(args, *filter.Exam)
		conditions = append(conditions, fmt.Sprintf("exam = $%d", len(args)))
	}

	builder.WriteString(" WHERE ")
	builder.WriteString(strings.Join(conditions, " AND "))
	builder.WriteString(" ORDER BY upload_timestamp ASC")

	return r.selectPapers(ctx, "find similar papers", builder.String(), args...)
}

// Search runs the hybrid ranked query. Only approved, live papers are returned.
func (r *PaperRepository) Search(ctx context.Context, text string, filter models.ExamFilter) ([]models.SearchHit, error) {
	query, args := buildSearchQuery(text, filter)
	var hits []models.SearchHit
	err := r.withConn(ctx, func(conn *sqlx.Conn) error {
		return conn.SelectContext(ctx, &hits, query, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("search papers: %w", err)
	}
	return hits, nil
}

func (r *PaperRepository) selectPapers(ctx context.Context, op, query string, args ...interface{}) ([]models.Paper, error) {
	papers := make([]models.Paper, 0)
	err := r.withConn(ctx, func(conn *sqlx.Conn) error {
		return conn.SelectContext(ctx, &papers, query, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return papers, nil
}
