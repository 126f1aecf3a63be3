// Package llamacpp talks to llama.cpp server and other OpenAI-compatible
// chat completion endpoints.
package llamacpp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a single model call when the caller's context has no
// deadline of its own.
const DefaultTimeout = 300 * time.Second

// completionsPath is the OpenAI-compatible chat endpoint llama.cpp serves
const completionsPath = "/v1/chat/completions"

// Client speaks the chat completions protocol over plain HTTP
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Wire format. Message content is either a plain string or a list of typed
// parts; replies come back in either shape, so chatMessage keeps it loose.
type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
	Stream      bool          `json:"stream"`
}

// chatResponse keeps only what Query reads; the rest of the reply is ignored
type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewClient creates a client for a server that needs no authentication.
// An empty URL targets a local llama.cpp on its default port.
func NewClient(serverURL string) (*Client, error) {
	return NewClientWithKey(serverURL, "")
}

// NewClientWithKey creates a client that sends a bearer token, for hosted
// OpenAI-compatible servers that require one.
func NewClientWithKey(serverURL, apiKey string) (*Client, error) {
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}
	return &Client{
		baseURL:    strings.TrimSuffix(serverURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

// Query sends one prompt plus one base64-encoded image and returns the
// model's raw reply text. Implements client.VisionClient.
func (c *Client) Query(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	parts := []contentPart{{Type: "text", Text: prompt}}
	if imgB64 != "" {
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageRef{URL: "data:image/jpeg;base64," + imgB64},
		})
	}

	body, err := c.postJSON(ctx, completionsPath, chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: parts}},
		Temperature: 0.7,
		MaxTokens:   2048,
		TopP:        0.9,
	})
	if err != nil {
		return "", err
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decoding completion reply: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion reply has no choices")
	}

	text := replyText(resp.Choices[0].Message)
	if text == "" {
		return "", fmt.Errorf("completion reply has no text content")
	}
	return text, nil
}

// replyText unwraps the assistant message, which servers return either as a
// plain string or as a list of typed content parts.
func replyText(msg chatMessage) string {
	switch content := msg.Content.(type) {
	case string:
		return content
	case []interface{}:
		for _, item := range content {
			part, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if text, ok := part["text"].(string); ok && text != "" {
				return text
			}
		}
	}
	return ""
}

func (c *Client) postJSON(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading reply: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server status %d: %s", resp.StatusCode, firstLine(body))
	}
	return body, nil
}

// firstLine trims a server error body down to something log-friendly
func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
