package generator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rmaia/sitesmith/internal/logging"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicDefaultModel   = "claude-haiku-4-5-20251001"
	anthropicVersion        = "2023-06-01"

	// defaultSystem is sent with every request unless Config.System overrides it.
	defaultSystem = "You are an expert assistant for building modern, responsive websites. Always return pure HTML, CSS and JS with no commentary."
)

// AnthropicClient streams completions from the Anthropic Messages API.
type AnthropicClient struct {
	cfg    Config
	client *http.Client
	logger logging.Logger
}

// NewAnthropicClient builds a streaming client. httpClient may be nil, in
// which case a default client bounded by cfg.Timeout is used.
func NewAnthropicClient(cfg Config, logger logging.Logger, httpClient *http.Client) (*AnthropicClient, error) {
	cfg = cfg.withDefaults()
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = anthropicDefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = anthropicDefaultModel
	}
	if cfg.System == "" {
		cfg.System = defaultSystem
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	componentLogger := logger.With(logging.Field{Key: "component", Value: "generator.anthropic"})
	componentLogger.Info("created anthropic generator",
		logging.Field{Key: "model", Value: cfg.Model},
		logging.Field{Key: "max_tokens", Value: cfg.MaxTokens})

	return &AnthropicClient{cfg: cfg, client: httpClient, logger: componentLogger}, nil
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Stream    bool               `json:"stream"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicEvent is the subset of stream event fields we care about.
type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate sends the prompt and accumulates streamed text deltas.
func (ac *AnthropicClient) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := anthropicRequest{
		Model:     ac.cfg.Model,
		MaxTokens: ac.cfg.MaxTokens,
		Stream:    true,
		System:    ac.cfg.System,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ac.cfg.BaseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("anthropic: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", ac.cfg.APIKey)
	httpReq.Header.Set("Anthropic-Version", anthropicVersion)
	httpReq.Header.Set("Accept", "text/event-stream")

	started := time.Now()
	resp, err := ac.client.Do(httpReq)
	if err != nil {
		ac.logger.Warn("generation request failed", logging.Field{Key: "error", Value: err.Error()})
		return "", fmt.Errorf("anthropic: http do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		ac.logger.Warn("generation request rejected",
			logging.Field{Key: "status", Value: resp.StatusCode},
			logging.Field{Key: "body", Value: string(body)})
		return "", fmt.Errorf("anthropic: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	// Generated documents arrive in large deltas; give the scanner headroom.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var ev anthropicEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			ac.logger.Debug("skipping unparseable stream event", logging.Field{Key: "error", Value: err.Error()})
			continue
		}

		switch ev.Type {
		case "content_block_delta":
			if ev.Delta.Type == "text_delta" {
				out.WriteString(ev.Delta.Text)
			}
		case "error":
			return "", fmt.Errorf("anthropic: stream error: %s", ev.Error.Message)
		case "message_stop":
			// End of stream; remaining lines (if any) carry no content.
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("anthropic: read stream: %w", err)
	}

	ac.logger.Info("generation completed",
		logging.Field{Key: "chars", Value: out.Len()},
		logging.Field{Key: "elapsed", Value: time.Since(started).String()})

	return out.String(), nil
}

func (ac *AnthropicClient) Close() error {
	ac.logger.Info("closing anthropic generator")
	return nil
}
