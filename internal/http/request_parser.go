package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/vickym250/jnschool/internal/core"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// decodeJSON reads a single JSON object from the request body into dst and
// validates it. Malformed bodies are reported as invalid input.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: empty request body", core.ErrInvalidInput)
		case errors.As(err, &maxErr):
			return fmt.Errorf("%w: request body larger than %d bytes", core.ErrInvalidInput, maxErr.Limit)
		case errors.Is(err, core.ErrInvalidInput):
			return err
		default:
			return fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
		}
	}
	if dec.More() {
		return fmt.Errorf("%w: request body must hold a single JSON object", core.ErrInvalidInput)
	}
	return s.validator.Struct(dst)
}

// sessionParam reads the session query parameter, defaulting to the session
// running at now.
func sessionParam(query url.Values, now func() string) string {
	if s := strings.TrimSpace(query.Get("session")); s != "" {
		return s
	}
	return now()
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
