package models

import (
	"strconv"
	"strings"
	"time"
)

// Semester is the academic half a paper was set in.
type Semester string

const (
	SemesterAutumn  Semester = "autumn"
	SemesterSpring  Semester = "spring"
	SemesterUnknown Semester = ""
)

// ParseSemester accepts "autumn", "spring" or an empty string for unknown.
func ParseSemester(raw string) (Semester, error) {
	return parseEnum[Semester]("semester", raw, func(v string) bool {
		return v == string(SemesterAutumn) || v == string(SemesterSpring) || v == string(SemesterUnknown)
	})
}

func (s Semester) String() string { return string(s) }

// UnmarshalText validates semesters arriving in JSON or YAML payloads.
func (s *Semester) UnmarshalText(text []byte) error {
	v, err := ParseSemester(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Exam is the kind of examination. Class tests may carry a number ("ct2").
type Exam string

const (
	ExamMidsem    Exam = "midsem"
	ExamEndsem    Exam = "endsem"
	ExamClassTest Exam = "ct"
	ExamUnknown   Exam = ""
)

// ClassTest returns the exam value for the numbered class test n.
func ClassTest(n int) Exam {
	return Exam(string(ExamClassTest) + strconv.Itoa(n))
}

// ParseExam accepts midsem, endsem, ct, ctN or an empty string for unknown.
func ParseExam(raw string) (Exam, error) {
	return parseEnum[Exam]("exam", raw, validExam)
}

func validExam(v string) bool {
	switch Exam(v) {
	case ExamMidsem, ExamEndsem, ExamClassTest, ExamUnknown:
		return true
	}
	num, ok := strings.CutPrefix(v, string(ExamClassTest))
	if !ok {
		return false
	}
	n, err := strconv.Atoi(num)
	return err == nil && n >= 0 && strconv.Itoa(n) == num
}

func (e Exam) String() string { return string(e) }

// IsClassTest reports whether e is any class test, numbered or not.
func (e Exam) IsClassTest() bool {
	return strings.HasPrefix(string(e), string(ExamClassTest))
}

// UnmarshalText validates exams arriving in JSON or YAML payloads.
func (e *Exam) UnmarshalText(text []byte) error {
	v, err := ParseExam(string(text))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// Paper is one catalogued question paper row.
type Paper struct {
	ID              int64     `db:"id" json:"id"`
	CourseCode      string    `db:"course_code" json:"course_code"`
	CourseName      string    `db:"course_name" json:"course_name"`
	Year            int       `db:"year" json:"year"`
	Semester        Semester  `db:"semester" json:"semester"`
	Exam            Exam      `db:"exam" json:"exam"`
	Note            string    `db:"note" json:"note"`
	Filelink        string    `db:"filelink" json:"filelink"`
	FromLibrary     bool      `db:"from_library" json:"from_library"`
	UploadTimestamp time.Time `db:"upload_timestamp" json:"upload_timestamp"`
	ApproveStatus   bool      `db:"approve_status" json:"approve_status"`
	ApprovedBy      *string   `db:"approved_by" json:"approved_by,omitempty"`
	IsDeleted       bool      `db:"is_deleted" json:"is_deleted"`
}

// SearchHit is a paper with the ranks it earned in each candidate list and the fused score.
type SearchHit struct {
	Paper
	FuzzyRank    *int64  `db:"fuzzy_rank" json:"-"`
	FullTextRank *int64  `db:"full_text_rank" json:"-"`
	PartialRank  *int64  `db:"partial_rank" json:"-"`
	Score        float64 `db:"score" json:"score"`
}

// SimilarFilter narrows a duplicate lookup. Nil fields are not constrained.
type SimilarFilter struct {
	CourseCode string
	Year       *int
	Semester   *Semester
	Exam       *Exam
}

// PaperEdit carries the merged field values for an edit transition.
type PaperEdit struct {
	ID            int64
	CourseCode    string
	CourseName    string
	Year          int
	Semester      Semester
	Exam          Exam
	Note          string
	Filelink      string
	ApproveStatus bool
	ApprovedBy    string
}
