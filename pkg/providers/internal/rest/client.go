// Package rest is the small JSON client shared by adapters whose vendors
// ship no Go SDK.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hookswitch/pkg/webhook"
)

const maxErrorBody = 4096

// Client issues bearer-authenticated JSON requests for one provider.
type Client struct {
	Provider string
	BaseURL  string
	Token    string
	Header   http.Header
	HTTP     *http.Client
}

// New returns a client with a bounded default timeout.
func New(provider, baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		Provider: provider,
		BaseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Token:    token,
		Header:   http.Header{},
		HTTP:     httpClient,
	}
}

// Do sends payload as JSON to BaseURL+path and decodes the response into
// out when out is non-nil. An absolute path, such as a pagination link, is
// used as is. The raw response body is returned for callers
// that keep it. Non-2xx answers become *webhook.UpstreamError.
func (c *Client) Do(ctx context.Context, method, path string, payload, out interface{}) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}
	target := path
	if !strings.HasPrefix(path, "https://") && !strings.HasPrefix(path, "http://") {
		target = c.BaseURL + path
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	for key, values := range c.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &webhook.UpstreamError{Provider: c.Provider, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &webhook.UpstreamError{
			Provider:   c.Provider,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return raw, fmt.Errorf("%s response: %w", c.Provider, err)
		}
	}
	return raw, nil
}
