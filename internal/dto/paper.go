package dto

import (
	"io"
	"time"

	"github.com/metakgp/iqps-backend/internal/models"
)

// UploadDetails is the metadata submitted for one uploaded file.
type UploadDetails struct {
	CourseCode string `json:"course_code" validate:"required,max=32"`
	CourseName string `json:"course_name" validate:"max=256"`
	Year       int    `json:"year" validate:"required,gte=1950,lte=2100"`
	Exam       string `json:"exam" validate:"max=8"`
	Semester   string `json:"semester" validate:"max=8"`
	Note       string `json:"note" validate:"max=512"`
	Filename   string `json:"filename"`
}

// UploadFile pairs an uploaded file body with its metadata.
type UploadFile struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.ReadSeeker
	Details     UploadDetails
}

// Upload outcomes reported per file.
const (
	UploadStatusSuccess = "success"
	UploadStatusError   = "error"
)

// UploadStatus reports the outcome for one file of an upload batch.
type UploadStatus struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	PaperID  int64  `json:"paper_id,omitempty"`
}

// EditPaperRequest changes metadata and approval of a paper. Nil fields keep their
// stored values. Replace lists papers this one supersedes; they are soft-deleted.
type EditPaperRequest struct {
	ID            int64   `json:"id" validate:"required,gt=0"`
	CourseCode    *string `json:"course_code" validate:"omitempty,max=32"`
	CourseName    *string `json:"course_name" validate:"omitempty,max=256"`
	Year          *int    `json:"year" validate:"omitempty,gte=1950,lte=2100"`
	Semester      *string `json:"semester"`
	Exam          *string `json:"exam"`
	Note          *string `json:"note" validate:"omitempty,max=512"`
	ApproveStatus *bool   `json:"approve_status"`
	Replace       []int64 `json:"replace" validate:"omitempty,dive,gt=0"`
}

// PaperIDRequest identifies a paper for delete operations.
type PaperIDRequest struct {
	ID int64 `json:"id" validate:"required,gt=0"`
}

// SimilarQuery captures the duplicate lookup parameters.
type SimilarQuery struct {
	CourseCode string `form:"course_code" validate:"required"`
	Year       string `form:"year"`
	Semester   string `form:"semester"`
	Exam       string `form:"exam"`
}

// PaperResponse is the public view of a paper with its download URL.
type PaperResponse struct {
	ID          int64           `json:"id"`
	Filelink    string          `json:"filelink"`
	FromLibrary bool            `json:"from_library"`
	CourseCode  string          `json:"course_code"`
	CourseName  string          `json:"course_name"`
	Year        int             `json:"year"`
	Semester    models.Semester `json:"semester"`
	Exam        models.Exam     `json:"exam"`
	Note        string          `json:"note,omitempty"`
	Score       float64         `json:"score,omitempty"`
}

// AdminPaperResponse adds review state to the public view.
type AdminPaperResponse struct {
	PaperResponse
	UploadTimestamp time.Time `json:"upload_timestamp"`
	ApproveStatus   bool      `json:"approve_status"`
	ApprovedBy      string    `json:"approved_by,omitempty"`
	IsDeleted       bool      `json:"is_deleted"`
}

// LibraryPaper is one entry of a library import manifest.
type LibraryPaper struct {
	CourseCode    string          `json:"course_code" yaml:"course_code" validate:"required"`
	CourseName    string          `json:"course_name" yaml:"course_name"`
	Year          int             `json:"year" yaml:"year" validate:"required,gte=1950,lte=2100"`
	Exam          models.Exam     `json:"exam" yaml:"exam"`
	Semester      models.Semester `json:"semester" yaml:"semester"`
	Filename      string          `json:"filename" yaml:"filename" validate:"required"`
	ApproveStatus bool            `json:"approve_status" yaml:"approve_status"`
}

// Import decisions recorded per manifest entry.
const (
	ImportImported = "imported"
	ImportSkipped  = "skipped"
	ImportFlagged  = "flagged"
)

// ImportEntryResult records what happened to one manifest entry.
type ImportEntryResult struct {
	Filename string `json:"filename"`
	Decision string `json:"decision"`
	PaperID  int64  `json:"paper_id,omitempty"`
	Filelink string `json:"filelink,omitempty"`
}

// ImportReport summarises a library import run.
type ImportReport struct {
	RunID    string              `json:"run_id"`
	Total    int                 `json:"total"`
	Imported int                 `json:"imported"`
	Skipped  int                 `json:"skipped"`
	Flagged  int                 `json:"flagged"`
	DryRun   bool                `json:"dry_run"`
	Entries  []ImportEntryResult `json:"entries"`
}
