package models

import (
	"fmt"
	"strings"
)

// ExamFilter restricts search results by exam kind. The zero value is unrestricted.
// Papers with an unknown exam always pass a restricted filter.
type ExamFilter struct {
	Exams        []Exam
	AnyClassTest bool
}

// ParseExamFilter reads the comma separated exam list sent by the search page,
// e.g. "midsem,endsem" or "ct". Blank input means unrestricted.
func ParseExamFilter(raw string) (ExamFilter, error) {
	var f ExamFilter
	seen := make(map[Exam]struct{})
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		exam, err := ParseExam(part)
		if err != nil {
			return ExamFilter{}, fmt.Errorf("exam filter: %w", err)
		}
		if exam == ExamClassTest {
			f.AnyClassTest = true
			continue
		}
		if _, dup := seen[exam]; dup {
			continue
		}
		seen[exam] = struct{}{}
		f.Exams = append(f.Exams, exam)
	}
	return f, nil
}

// Unrestricted reports whether every exam kind passes.
func (f ExamFilter) Unrestricted() bool {
	return len(f.Exams) == 0 && !f.AnyClassTest
}

// Matches reports whether a paper with the given exam passes the filter.
func (f ExamFilter) Matches(exam Exam) bool {
	if f.Unrestricted() || exam == ExamUnknown {
		return true
	}
	if f.AnyClassTest && exam.IsClassTest() {
		return true
	}
	for _, e := range f.Exams {
		if e == exam {
			return true
		}
	}
	return false
}

// Values returns the exact exam values as strings for SQL array binding.
func (f ExamFilter) Values() []string {
	out := make([]string, 0, len(f.Exams))
	for _, e := range f.Exams {
		out = append(out, string(e))
	}
	return out
}
