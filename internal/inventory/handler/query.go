package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
)

// pagination reads the page window of a list request.
func pagination(r *http.Request) domain.Pagination {
	page, perPage := httputil.Pagination(r)
	return domain.Pagination{Page: page, PerPage: perPage}
}

// queryTime parses an RFC 3339 timestamp or a plain YYYY-MM-DD date.
func queryTime(r *http.Request, key string) (*time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, errors.BadRequest(key + " must be an RFC 3339 timestamp or a YYYY-MM-DD date")
	}
	return &t, nil
}

func queryBool(r *http.Request, key string) (*bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errors.BadRequest(key + " must be true or false")
	}
	return &b, nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.BadRequest(key + " must be a non-negative integer")
	}
	return n, nil
}

// decode reads and validates a JSON request body.
func decode(r *http.Request, v interface{}) error {
	if err := httputil.DecodeJSON(r, v); err != nil {
		return err
	}
	return httputil.Validate(v)
}
