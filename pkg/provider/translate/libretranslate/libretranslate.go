// Package libretranslate provides a LibreTranslate-backed translation
// provider using the instance's HTTP API. It implements the
// translate.Backend interface.
package libretranslate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lingocast/lingocast/pkg/provider/translate"
)

// Option is a functional option for configuring the LibreTranslate Backend.
type Option func(*Backend)

// WithAPIKey sets the API key sent with every request. Public instances
// usually require one.
func WithAPIKey(key string) Option {
	return func(b *Backend) {
		b.apiKey = key
	}
}

// WithHTTPClient replaces the default http.Client, e.g. to set transport
// timeouts or inject a test round-tripper.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Backend) {
		b.httpClient = c
	}
}

// Backend implements translate.Backend against a LibreTranslate instance.
type Backend struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Backend for the LibreTranslate instance at baseURL
// (e.g., "https://libretranslate.example.com").
func New(baseURL string, opts ...Option) (*Backend, error) {
	if baseURL == "" {
		return nil, errors.New("libretranslate: baseURL must not be empty")
	}
	b := &Backend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

// translateRequest is the JSON payload for POST /translate.
type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

// translateResponse mirrors the LibreTranslate response body.
type translateResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error,omitempty"`
}

// Translate calls POST /translate and returns the translated text.
func (b *Backend) Translate(ctx context.Context, source, target, text string) (string, error) {
	payload, err := json.Marshal(translateRequest{
		Q:      text,
		Source: source,
		Target: target,
		Format: "text",
		APIKey: b.apiKey,
	})
	if err != nil {
		return "", fmt.Errorf("libretranslate: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/translate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("libretranslate: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("libretranslate: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("libretranslate: read response: %w", err)
	}

	var out translateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("libretranslate: decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := out.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("libretranslate: %s (status %d)", msg, resp.StatusCode)
	}
	if out.TranslatedText == "" {
		return "", errors.New("libretranslate: empty translation in response")
	}
	return out.TranslatedText, nil
}

// Name identifies the backend in logs and degradation reports.
func (b *Backend) Name() string { return "libretranslate" }

// Ensure Backend implements translate.Backend at compile time.
var _ translate.Backend = (*Backend)(nil)
