package models

import (
	"fmt"
	"strings"
)

// parseEnum normalises raw and accepts it when valid reports true. Semester and Exam
// share this so both reject unknown text the same way.
func parseEnum[T ~string](kind, raw string, valid func(string) bool) (T, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if !valid(v) {
		return "", fmt.Errorf("invalid %s %q", kind, raw)
	}
	return T(v), nil
}
