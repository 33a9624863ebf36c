package http

// Request decoding and query parsing shared by the handlers.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"budgetapp/internal/aggregate"
	"budgetapp/internal/core"
	"budgetapp/internal/services"
)

const (
	// HeaderUserID carries the caller identity set by the authenticating proxy.
	HeaderUserID = "X-User-ID"

	maxBodyBytes = 1 << 20
)

var errMissingUser = core.NewValidationError("user", errors.New("missing "+HeaderUserID+" header"))

func userID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		return "", errMissingUser
	}
	return id, nil
}

// decodeJSON reads a single JSON object into dst. Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return core.NewValidationError("body", fmt.Errorf("request body exceeds %d bytes", maxErr.Limit))
		case errors.Is(err, io.EOF):
			return core.NewValidationError("body", errors.New("request body is empty"))
		default:
			return core.NewValidationError("body", fmt.Errorf("malformed JSON: %v", err))
		}
	}
	if dec.More() {
		return core.NewValidationError("body", errors.New("request body must hold a single object"))
	}
	return nil
}

// parseDate accepts RFC 3339 timestamps and bare 2006-01-02 dates (UTC midnight).
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, core.NewValidationError("date", core.ErrMissingDate)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, core.NewValidationError("date", fmt.Errorf("unparsable date %q", s))
}

// parseViewQuery reads the chart range plus the table filter and order.
// Empty parameters fall back to the service defaults.
func parseViewQuery(q url.Values) (services.ViewQuery, error) {
	var out services.ViewQuery
	if key := strings.ToUpper(strings.TrimSpace(q.Get("range"))); key != "" {
		r, ok := aggregate.RangeByKey(key)
		if !ok {
			return out, core.NewValidationError("range", fmt.Errorf("unknown range %q", key))
		}
		out.Range = r
	}
	out.SortField = aggregate.SortField(strings.ToLower(strings.TrimSpace(q.Get("sort"))))
	out.Direction = aggregate.Direction(strings.ToLower(strings.TrimSpace(q.Get("dir"))))

	out.Filter.Search = q.Get("search")
	if t := strings.TrimSpace(q.Get("type")); t != "" {
		typ, err := core.ParseTransactionType(t)
		if err != nil {
			return out, err
		}
		out.Filter.Type = typ
	}
	switch rec := aggregate.RecurringFilter(strings.ToLower(strings.TrimSpace(q.Get("recurring")))); rec {
	case "", aggregate.RecurringOnly, aggregate.NonRecurringOnly:
		out.Filter.Recurring = rec
	default:
		return out, core.NewValidationError("recurring", fmt.Errorf("unknown recurring filter %q", rec))
	}
	return out, nil
}
