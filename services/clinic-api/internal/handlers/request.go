package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/clinicapi/libs/auth"
	"github.com/md-rashed-zaman/clinicapi/libs/httpx"
)

// fieldErrors collects request validation failures.
type fieldErrors []httpx.FieldError

func (f *fieldErrors) add(field, message string, value any) {
	*f = append(*f, httpx.FieldError{Field: field, Message: message, Value: value})
}

func (f fieldErrors) empty() bool { return len(f) == 0 }

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body required")
		}
		return err
	}
	return nil
}

func validUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(s))
}

// pathID parses the {id} segment as a positive integer.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// queryInt reads an optional integer query parameter within [lo, hi]; hi
// of 0 means unbounded.
func queryInt(r *http.Request, errs *fieldErrors, name string, lo, hi int64, message string) int64 {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < lo || (hi > 0 && v > hi) {
		errs.add(name, message, raw)
		return 0
	}
	return v
}

func queryTime(r *http.Request, errs *fieldErrors, name string) time.Time {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}
	}
	t, err := parseTime(raw)
	if err != nil {
		errs.add(name, "Valid ISO 8601 date required", raw)
		return time.Time{}
	}
	return t
}

func queryUUID(r *http.Request, errs *fieldErrors, name, message string) string {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw != "" && !validUUID(raw) {
		errs.add(name, message, raw)
		return ""
	}
	return raw
}

// requirePrincipal answers 401 when the route was mounted without authn.
func requirePrincipal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "Authentication required")
	}
	return p, ok
}

// pathUUID reads the {id} segment as a UUID.
func pathUUID(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	return id, validUUID(id)
}

// pageParams reads page and limit; zero means the store default.
func pageParams(r *http.Request, errs *fieldErrors, maxLimit int64) (page, limit int) {
	p := queryInt(r, errs, "page", 1, 0, "Page must be a positive integer")
	l := queryInt(r, errs, "limit", 1, maxLimit, "Limit must be between 1 and "+strconv.FormatInt(maxLimit, 10))
	return int(p), int(l)
}

func pages(total, limit int) int {
	if limit < 1 {
		return 0
	}
	return (total + limit - 1) / limit
}
