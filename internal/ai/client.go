// Package ai talks to the Gemini generateContent API for the research
// assistant features.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnavailable is returned when the upstream model cannot be reached or
// keeps failing after retries. Handlers map it to a 502.
var ErrUnavailable = errors.New("ai service unavailable")

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("ai service not configured")

// Turn is one entry of a conversation history.
type Turn struct {
	Role    string // "user" or "model"
	Content string
}

// Client calls the Gemini REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	retryLimit int
}

func NewClient(baseURL, apiKey, model string, retryLimit int) *Client {
	if retryLimit < 1 {
		retryLimit = 1
	}
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		retryLimit: retryLimit,
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Model returns the configured model name, recorded on stored messages.
func (c *Client) Model() string {
	return c.model
}

type generateRequest struct {
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
	Contents          []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate sends the system instruction plus conversation turns and returns
// the model's text reply. Transient failures are retried with backoff.
func (c *Client) Generate(ctx context.Context, system string, turns []Turn) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	req := generateRequest{}
	if system != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: system}}}
	}
	for _, turn := range turns {
		req.Contents = append(req.Contents, content{
			Role:  turn.Role,
			Parts: []part{{Text: turn.Content}},
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)

	var lastErr error
	for attempt := 0; attempt < c.retryLimit; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		text, retryable, err := c.doGenerate(ctx, url, body)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) doGenerate(ctx context.Context, url string, body []byte) (text string, retryable bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", true, fmt.Errorf("call gemini: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", true, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return "", true, fmt.Errorf("gemini status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("%w: gemini status %d: %s", ErrUnavailable, resp.StatusCode, string(respBody))
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", false, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if parsed.Error != nil {
		return "", false, fmt.Errorf("%w: %s", ErrUnavailable, parsed.Error.Message)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", false, fmt.Errorf("%w: empty response", ErrUnavailable)
	}
	return parsed.Candidates[0].Content.Parts[0].Text, false, nil
}
