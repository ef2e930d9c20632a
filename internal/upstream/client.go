package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Endpoint paths on the upstream aggregation API.
const (
	chatPath       = "/chat"
	streamChatPath = "/streamChat"
)

// maxErrorBody bounds how much of an upstream error body is read back.
const maxErrorBody = 4 * 1024

// StatusError is returned when the upstream answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the single configured upstream. It carries no business
// logic; translation and reassembly happen in the relay and translator.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates an upstream client for the given base URL.
// Compression is disabled so streamed bytes pass through unbuffered.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Transport: &http.Transport{
				DisableCompression: true,
			},
		},
	}
}

// Chat performs the unary upstream call and parses the single payload.
func (c *Client) Chat(ctx context.Context, payload *Payload) (*UnaryResponse, error) {
	resp, err := c.post(ctx, chatPath, payload, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, readStatusError(resp)
	}

	var out UnaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode upstream response: %w", err)
	}
	return &out, nil
}

// StreamChat opens the streaming upstream call and returns the raw body.
// The caller owns the returned ReadCloser and must close it; cancelling ctx
// aborts the connection mid-read.
func (c *Client) StreamChat(ctx context.Context, payload *Payload) (io.ReadCloser, error) {
	resp, err := c.post(ctx, streamChatPath, payload, "text/event-stream")
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, readStatusError(resp)
	}

	return resp.Body, nil
}

func (c *Client) post(ctx context.Context, path string, payload *Payload, accept string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upstream payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	return resp, nil
}

func readStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}
