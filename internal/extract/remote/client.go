// Package remote calls an external document extraction service to turn
// binary formats (PDF, DOCX) into plain text.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/docparse/docparse/internal/parser"
)

// Config captures the parameters for the extraction service client.
type Config struct {
	// ServiceURL is the base URL of the extraction service.
	ServiceURL string `mapstructure:"service_url" yaml:"service_url"`
	// Timeout bounds a single extraction request.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Client implements parser.Extractor against the extraction service's
// POST /extract endpoint.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient creates an extraction service client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.ServiceURL == "" {
		return nil, fmt.Errorf("extraction service URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.ServiceURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

type extractResponse struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Extract uploads the document and returns the extracted plain text.
func (c *Client) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "document")
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write form file: %w", err)
	}
	if err := writer.WriteField("mime_type", mimeType); err != nil {
		return "", fmt.Errorf("failed to write mime field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("extraction request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read extraction response: %w", err)
	}

	c.logger.Debug("extraction service call",
		zap.String("mime_type", mimeType),
		zap.Int("status", resp.StatusCode),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnsupportedMediaType:
		return "", fmt.Errorf("mime type %q: %w", mimeType, parser.ErrUnsupportedFormat)
	case http.StatusUnprocessableEntity:
		return "", fmt.Errorf("%s: %w", serviceError(respBody), parser.ErrCorruptDocument)
	default:
		return "", fmt.Errorf("extraction service returned status %d: %s",
			resp.StatusCode, serviceError(respBody))
	}

	var parsed extractResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode extraction response: %w", err)
	}
	return parsed.Text, nil
}

func serviceError(body []byte) string {
	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		return parsed.Error
	}
	const maxErrLen = 200
	if len(body) > maxErrLen {
		body = body[:maxErrLen]
	}
	return string(body)
}
