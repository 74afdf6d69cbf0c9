package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rmaia/sitesmith/internal/logging"
)

const (
	geminiDefaultBaseURL = "https://generativelanguage.googleapis.com"
	geminiDefaultModel   = "gemini-2.5-pro"
)

// GeminiClient calls the Gemini generateContent API. Unlike the Anthropic
// backend it is not streamed; the whole document arrives in one response.
type GeminiClient struct {
	cfg    Config
	client *http.Client
	logger logging.Logger
}

// NewGeminiClient builds a Gemini-backed generator. httpClient may be nil.
func NewGeminiClient(cfg Config, logger logging.Logger, httpClient *http.Client) (*GeminiClient, error) {
	cfg = cfg.withDefaults()
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = geminiDefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}
	if cfg.System == "" {
		cfg.System = defaultSystem
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	componentLogger := logger.With(logging.Field{Key: "component", Value: "generator.gemini"})
	componentLogger.Info("created gemini generator", logging.Field{Key: "model", Value: cfg.Model})

	return &GeminiClient{cfg: cfg, client: httpClient, logger: componentLogger}, nil
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate sends the prompt prefixed by the system instruction and
// concatenates the candidate parts.
func (gc *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: gc.cfg.System + "\n\n" + prompt}}}},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", gc.cfg.BaseURL, gc.cfg.Model, gc.cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("gemini: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := gc.client.Do(httpReq)
	if err != nil {
		gc.logger.Warn("generation request failed", logging.Field{Key: "error", Value: err.Error()})
		return "", fmt.Errorf("gemini: http do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gemini: read body: %w", err)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := parsed.Error.Message
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return "", fmt.Errorf("gemini: unexpected status %d: %s", resp.StatusCode, msg)
	}
	if len(parsed.Candidates) == 0 {
		return "", errors.New("gemini: response contained no candidates")
	}

	var out strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		out.WriteString(part.Text)
	}

	gc.logger.Info("generation completed", logging.Field{Key: "chars", Value: out.Len()})
	return out.String(), nil
}

func (gc *GeminiClient) Close() error {
	gc.logger.Info("closing gemini generator")
	return nil
}
