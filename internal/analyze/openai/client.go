// Package openai implements the analysis engine on the OpenAI
// chat/completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/docparse/docparse/internal/parser"
)

// Config for the OpenAI client.
type Config struct {
	// APIKey authenticates against the API.
	APIKey string
	// BaseURL defaults to https://api.openai.com/v1.
	BaseURL string
	// Model names the chat model, e.g. "gpt-4o-mini".
	Model string
	// MaxTokens caps the completion size.
	MaxTokens int
	// Temperature in 0..2.
	Temperature float32
	// Timeout bounds a single API call.
	Timeout time.Duration
	// MaxInputChars truncates document text before it is sent.
	MaxInputChars int
}

// Client implements parser.Analyzer using text-only chat/completions
// with a json_object response format.
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
	schema *jsonschema.Schema
}

// NewClient creates an OpenAI analysis client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 3000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = 5000
	}
	schema, err := compileDocumentSchema()
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		schema: schema,
	}, nil
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type documentEnvelope struct {
	DocumentLanguage string `json:"document_language"`
}

// Analyze sends the document text through chat/completions and returns
// the validated JSON result.
func (c *Client) Analyze(ctx context.Context, text string, mode parser.ParseMode) (parser.AnalysisResult, error) {
	start := time.Now()

	if len(text) > c.cfg.MaxInputChars {
		text = text[:c.cfg.MaxInputChars]
	}

	c.logger.Info("analysis started",
		zap.String("mode", string(mode)),
		zap.String("model", c.cfg.Model),
		zap.Int("text_len", len(text)),
	)

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"max_tokens":      c.cfg.MaxTokens,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt(mode)},
			{"role": "user", "content": text},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.logger.Error("analysis request failed",
			zap.Error(err),
			zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
		)
		return parser.AnalysisResult{}, err
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return parser.AnalysisResult{}, fmt.Errorf("decode openai response: %w: %w", err, parser.ErrInvalidResponse)
	}
	if len(cc.Choices) == 0 {
		return parser.AnalysisResult{}, fmt.Errorf("no choices in openai response: %w", parser.ErrInvalidResponse)
	}

	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	if content == "" {
		return parser.AnalysisResult{}, fmt.Errorf("empty completion content: %w", parser.ErrInvalidResponse)
	}
	payload := []byte(content)

	if !json.Valid(payload) {
		return parser.AnalysisResult{}, fmt.Errorf("completion is not valid JSON: %w", parser.ErrInvalidResponse)
	}
	if err := validateAgainstSchema(c.schema, payload); err != nil {
		c.logger.Error("schema validation failed",
			zap.Error(err),
			zap.Int("content_len", len(content)),
		)
		return parser.AnalysisResult{}, fmt.Errorf("%w: %w", parser.ErrInvalidResponse, err)
	}

	var envelope documentEnvelope
	_ = json.Unmarshal(payload, &envelope)

	model := cc.Model
	if model == "" {
		model = c.cfg.Model
	}

	c.logger.Info("analysis completed",
		zap.String("mode", string(mode)),
		zap.String("language", envelope.DocumentLanguage),
		zap.Int("tokens_used", cc.Usage.TotalTokens),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)

	return parser.AnalysisResult{
		Payload:    payload,
		Language:   envelope.DocumentLanguage,
		Model:      model,
		TokensUsed: cc.Usage.TotalTokens,
	}, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai http error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read openai response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("openai status 429: %w", parser.ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openai status %d: %s", resp.StatusCode, truncate(respBody, 500))
	}
	return respBody, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
