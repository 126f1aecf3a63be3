package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// DefaultTimeout bounds a single model call when the caller's context has no
// deadline of its own. Vision models on CPU can take minutes.
const DefaultTimeout = 300 * time.Second

// Client talks to an Ollama server through its native chat API.
type Client struct {
	client *api.Client
}

// NewClient creates a new Ollama client. Any path on the URL (like
// /api/chat) is ignored; only scheme and host are used.
func NewClient(ollamaURL string) (*Client, error) {
	parsed, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
	return &Client{client: api.NewClient(base, http.DefaultClient)}, nil
}

// Query sends one prompt plus one base64-encoded image and returns the
// model's raw reply text. Implements client.VisionClient.
func (c *Client) Query(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	imgBytes, err := base64.StdEncoding.DecodeString(imgB64)
	if err != nil {
		return "", fmt.Errorf("decoding image payload: %w", err)
	}

	stream := false
	req := &api.ChatRequest{
		Model: model,
		Messages: []api.Message{{
			Role:    "user",
			Content: prompt,
			Images:  []api.ImageData{api.ImageData(imgBytes)},
		}},
		Stream: &stream,
		// The prompt pins the output format; Format stays unset so the
		// model is free to wrap JSON in prose that parsing strips later.
		Options: modelOptions(model),
	}

	var reply string
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		reply += resp.Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("calling ollama: %w", err)
	}
	if reply == "" {
		return "", fmt.Errorf("ollama reply was empty")
	}
	return reply, nil
}

// modelOptions returns tuned sampling parameters for known model families.
// MiniCPM-V 4.x follows coordinate instructions better at these settings.
func modelOptions(model string) map[string]any {
	opts := map[string]any{}
	norm := strings.ReplaceAll(strings.ToLower(model), "-", "")
	if strings.Contains(norm, "minicpmv4") {
		opts["temperature"] = 0.7
		opts["top_p"] = 0.8
		opts["num_ctx"] = 4096
	}
	return opts
}
