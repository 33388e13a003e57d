// Package elevenlabs is a thin client for the ConvAI endpoints the
// dashboard mirrors. It normalizes the vendor's inconsistent list
// envelopes and retries transient failures with bounded backoff.
package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/voicebotai/dashboard/internal/syncmetrics"
)

const (
	DefaultBaseURL = "https://api.elevenlabs.io/v1"

	defaultRequestTimeout = 30 * time.Second
	defaultMaxAttempts    = 3
	defaultRetryBackoff   = 500 * time.Millisecond
)

type Option func(*Client)

type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	apiKey      string
	maxAttempts int
	backoff     time.Duration
	sleep       func(context.Context, time.Duration) error
}

func NewClient(baseURL, apiKey string, options ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	parsedBaseURL, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse elevenlabs base url: %w", err)
	}
	if parsedBaseURL.Scheme == "" || parsedBaseURL.Host == "" {
		return nil, fmt.Errorf("elevenlabs base url must include scheme and host")
	}

	client := &Client{
		httpClient:  &http.Client{Timeout: defaultRequestTimeout},
		baseURL:     parsedBaseURL,
		apiKey:      strings.TrimSpace(apiKey),
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultRetryBackoff,
		sleep:       sleepWithContext,
	}

	for _, option := range options {
		option(client)
	}

	return client, nil
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(client *Client) {
		if httpClient != nil {
			client.httpClient = httpClient
		}
	}
}

// WithMaxAttempts bounds how often a single request is retried on
// transient failures. Values below one are ignored.
func WithMaxAttempts(attempts int) Option {
	return func(client *Client) {
		if attempts >= 1 {
			client.maxAttempts = attempts
		}
	}
}

func WithRetryBackoff(backoff time.Duration) Option {
	return func(client *Client) {
		if backoff > 0 {
			client.backoff = backoff
		}
	}
}

// ListConversations fetches one page of the conversation list.
func (c *Client) ListConversations(ctx context.Context, req PageRequest) (*Page, error) {
	body, err := c.getJSON(ctx, listEndpoint("/convai/conversations", req))
	if err != nil {
		return nil, err
	}
	return decodePage(body, "conversations")
}

// GetConversation fetches the full detail payload for one conversation.
func (c *Client) GetConversation(ctx context.Context, conversationID string) (json.RawMessage, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, errors.New("conversation id is required")
	}
	return c.getJSON(ctx, "/convai/conversations/"+url.PathEscape(conversationID))
}

// ListAgents fetches one page of the agent list.
func (c *Client) ListAgents(ctx context.Context, req PageRequest) (*Page, error) {
	body, err := c.getJSON(ctx, listEndpoint("/convai/agents", req))
	if err != nil {
		return nil, err
	}
	return decodePage(body, "agents")
}

// GetAgent fetches the full detail payload for one agent.
func (c *Client) GetAgent(ctx context.Context, agentID string) (json.RawMessage, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, errors.New("agent id is required")
	}
	return c.getJSON(ctx, "/convai/agents/"+url.PathEscape(agentID))
}

// GetTranscript returns the transcript text for a conversation. It tries
// the dedicated transcript endpoint first and falls back to assembling the
// role/message turns embedded in the conversation detail payload.
func (c *Client) GetTranscript(ctx context.Context, conversationID string) (string, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return "", errors.New("conversation id is required")
	}

	body, err := c.getJSON(ctx, "/convai/conversations/"+url.PathEscape(conversationID)+"/transcript")
	if err == nil {
		if text := decodeTranscriptText(body); text != "" {
			return text, nil
		}
	}

	detail, err := c.GetConversation(ctx, conversationID)
	if err != nil {
		return "", err
	}
	return assembleTranscript(detail), nil
}

// HasAudio reports whether the vendor claims recorded audio exists for
// the conversation.
func (c *Client) HasAudio(ctx context.Context, conversationID string) (bool, error) {
	detail, err := c.GetConversation(ctx, conversationID)
	if err != nil {
		return false, err
	}
	var payload struct {
		HasAudio bool `json:"has_audio"`
	}
	if err := json.Unmarshal(detail, &payload); err != nil {
		return false, nil
	}
	return payload.HasAudio, nil
}

// StreamAudio opens the vendor audio stream for proxying. The caller owns
// the returned body. Audio is fetched without the retry loop: a broken
// stream is the proxy caller's problem to re-request.
func (c *Client) StreamAudio(ctx context.Context, conversationID string) (io.ReadCloser, string, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, "", errors.New("conversation id is required")
	}

	endpoint := "/convai/conversations/" + url.PathEscape(conversationID) + "/audio"
	req, err := c.newRequest(ctx, http.MethodGet, endpoint)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	syncmetrics.RecordVendorRequest()
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, "", &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return resp.Body, contentType, nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string) (*http.Request, error) {
	relative, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return nil, fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	requestURL := c.baseURL.ResolveReference(relative).String()

	req, err := http.NewRequestWithContext(ctx, method, requestURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("xi-api-key", c.apiKey)
	}
	return req, nil
}

// getJSON performs a GET with bounded retries on transient failures.
// Application-level 4xx responses are returned immediately.
func (c *Client) getJSON(ctx context.Context, endpoint string) (json.RawMessage, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		req, err := c.newRequest(ctx, http.MethodGet, endpoint)
		if err != nil {
			return nil, err
		}

		body, err := c.doOnce(req)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var httpErr *HTTPError
		if errors.As(err, &httpErr) && !httpErr.Transient() {
			return nil, err
		}
		if attempt == c.maxAttempts {
			break
		}
		if err := c.sleep(ctx, c.backoff*time.Duration(attempt)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(req *http.Request) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	syncmetrics.RecordVendorRequest()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func listEndpoint(path string, req PageRequest) string {
	values := url.Values{}
	if req.PageSize > 0 {
		values.Set("page_size", strconv.Itoa(req.PageSize))
	}
	if cursor := strings.TrimSpace(req.Cursor); cursor != "" {
		values.Set("cursor", cursor)
	} else if req.Page > 0 {
		values.Set("page", strconv.Itoa(req.Page))
	}
	if len(values) == 0 {
		return path
	}
	return path + "?" + values.Encode()
}

func decodePage(body json.RawMessage, resourceKey string) (*Page, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("decode %s list: %w", resourceKey, err)
		}
		return &Page{Items: items}, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode %s envelope: %w", resourceKey, err)
	}

	page := &Page{}
	if raw, ok := envelope[resourceKey]; ok {
		if err := json.Unmarshal(raw, &page.Items); err != nil {
			return nil, fmt.Errorf("decode %s items: %w", resourceKey, err)
		}
	}
	if raw, ok := envelope["has_more"]; ok {
		_ = json.Unmarshal(raw, &page.HasMore)
	}
	if raw, ok := envelope["next_cursor"]; ok {
		_ = json.Unmarshal(raw, &page.NextCursor)
	}
	if raw, ok := envelope["next_page"]; ok {
		_ = json.Unmarshal(raw, &page.NextPage)
	}
	if raw, ok := envelope["total"]; ok {
		_ = json.Unmarshal(raw, &page.Total)
	}
	return page, nil
}

func decodeTranscriptText(body json.RawMessage) string {
	var payload struct {
		Text       string `json:"text"`
		Transcript string `json:"transcript"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if strings.TrimSpace(payload.Text) != "" {
		return payload.Text
	}
	return payload.Transcript
}

// assembleTranscript builds readable text from the detail payload's turn
// list. Empty and "..." placeholder messages are dropped.
func assembleTranscript(detail json.RawMessage) string {
	var payload struct {
		Transcript []struct {
			Role    string `json:"role"`
			Message string `json:"message"`
		} `json:"transcript"`
	}
	if err := json.Unmarshal(detail, &payload); err != nil {
		return ""
	}

	parts := make([]string, 0, len(payload.Transcript))
	for _, turn := range payload.Transcript {
		message := strings.TrimSpace(turn.Message)
		if message == "" || message == "..." {
			continue
		}
		parts = append(parts, capitalizeRole(turn.Role)+": "+message)
	}
	return strings.Join(parts, "\n\n")
}

func capitalizeRole(role string) string {
	role = strings.TrimSpace(role)
	if role == "" {
		return "Unknown"
	}
	return strings.ToUpper(role[:1]) + role[1:]
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
