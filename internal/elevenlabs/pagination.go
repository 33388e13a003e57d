package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
)

const (
	// DefaultPageSize matches the vendor's documented list default.
	DefaultPageSize = 100
	// DefaultMaxPages caps a list walk so a misbehaving pagination signal
	// can never loop forever.
	DefaultMaxPages = 200
)

type listFetch func(context.Context, PageRequest) (*Page, error)

// AllConversations walks conversation list pages until the vendor signals
// the end. Partial results are returned alongside the error that stopped
// the walk.
func (c *Client) AllConversations(ctx context.Context, pageSize, maxPages int) ([]json.RawMessage, error) {
	return collectPages(ctx, c.ListConversations, pageSize, maxPages)
}

// AllAgents walks agent list pages the same way.
func (c *Client) AllAgents(ctx context.Context, pageSize, maxPages int) ([]json.RawMessage, error) {
	return collectPages(ctx, c.ListAgents, pageSize, maxPages)
}

// collectPages drives whichever pagination shape the vendor exposes:
// explicit has_more/next_cursor, page numbers, or none at all. It stops on
// an explicit no-more signal, after two consecutive empty-or-undersized
// pages, at the page cap, or on the first unrecoverable fetch error. A 404
// mid-walk means we ran off the end of page-number pagination and is not
// an error.
func collectPages(ctx context.Context, fetch listFetch, pageSize, maxPages int) ([]json.RawMessage, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	var (
		items       []json.RawMessage
		cursor      string
		pageNumber  int // 0 until the vendor reveals page-number pagination
		undersized  int
		currentPage = 1
	)

	for request := 1; request <= maxPages; request++ {
		page, err := fetch(ctx, PageRequest{PageSize: pageSize, Cursor: cursor, Page: pageNumber})
		if err != nil {
			var httpErr *HTTPError
			if errors.As(err, &httpErr) && httpErr.NotFound() && request > 1 {
				return items, nil
			}
			return items, err
		}

		items = append(items, page.Items...)

		if len(page.Items) == 0 || len(page.Items) < pageSize {
			undersized++
		} else {
			undersized = 0
		}

		if page.HasMore != nil && !*page.HasMore {
			return items, nil
		}
		if undersized >= 2 {
			return items, nil
		}

		switch {
		case page.NextCursor != "":
			cursor = page.NextCursor
			pageNumber = 0
		case page.NextPage != nil:
			cursor = ""
			pageNumber = *page.NextPage
			currentPage = *page.NextPage
		case !page.Paginated():
			// Bare array with no metadata: one fetch is the whole list.
			return items, nil
		default:
			// Metadata present but no cursor offered; fall back to
			// incrementing page numbers.
			cursor = ""
			currentPage++
			pageNumber = currentPage
		}

		if err := ctx.Err(); err != nil {
			return items, err
		}
	}

	return items, nil
}
