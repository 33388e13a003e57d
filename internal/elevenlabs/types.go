package elevenlabs

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Page is one decoded page of a list endpoint. The vendor is not
// consistent about the envelope: some deployments return a bare JSON
// array, others an object keyed by the resource name with optional
// pagination metadata.
type Page struct {
	Items      []json.RawMessage
	HasMore    *bool
	NextCursor string
	NextPage   *int
	Total      *int
}

// Paginated reports whether the page carried any pagination metadata at
// all. A bare array has none, so a single fetch is the whole list.
func (p *Page) Paginated() bool {
	return p.HasMore != nil || p.NextCursor != "" || p.NextPage != nil || p.Total != nil
}

// PageRequest selects one page of a list endpoint. Cursor wins over Page
// when both are set; a zero Page means the vendor default.
type PageRequest struct {
	PageSize int
	Cursor   string
	Page     int
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("elevenlabs api request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("elevenlabs api request failed with status %d: %s", e.StatusCode, e.Body)
}

// NotFound reports whether the error is a vendor 404.
func (e *HTTPError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// Transient reports whether the failure is worth retrying: server-side
// errors and 429s only. Other 4xx responses are application errors and
// retrying them just burns quota.
func (e *HTTPError) Transient() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}
