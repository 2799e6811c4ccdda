package mealie

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/isdelr/mealie-backup/internal/models"
)

// TransportError is returned when a request could not be completed or the
// server answered with a non-2xx status.
type TransportError struct {
	Op         string
	Method     string
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s %s: unexpected status %d %s", e.Op, e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s: %s %s: %v", e.Op, e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsNotFound reports whether the server answered 404.
func (e *TransportError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// DecodeError is returned when a response body does not match the expected schema.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: malformed server response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ValidationError carries the field violations reported by a failed download.
type ValidationError struct {
	StatusCode int
	Details    []models.FieldViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, fmt.Sprintf("%s: %s (%s)", strings.Join(d.Loc, "."), d.Msg, d.Type))
	}
	return fmt.Sprintf("download rejected with status %d: %s", e.StatusCode, strings.Join(parts, "; "))
}
