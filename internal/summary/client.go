package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/skypro1111/meetscribe/internal/config"
)

const anthropicVersion = "2023-06-01"

var (
	ErrNoAPIKey      = errors.New("summary API key not set")
	ErrEmptyResponse = errors.New("empty response from summary API")
)

// Client calls an Anthropic-style messages endpoint to summarize a transcript
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	maxTokens  int
	prompt     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a summary client
func NewClient(cfg config.SummaryConfig, logger *slog.Logger) *Client {
	return &Client{
		endpoint:  cfg.Endpoint,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		prompt:    cfg.Prompt,
		httpClient: &http.Client{
			Timeout: cfg.GetTimeoutDuration(),
		},
		logger: logger,
	}
}

// Summarize returns a summary of the transcript
func (c *Client) Summarize(ctx context.Context, transcript string) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}

	reqBody := messagesRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    c.prompt,
		Messages: []message{
			{
				Role:    "user",
				Content: "Here is the meeting transcript to summarize:\n\n" + transcript,
			},
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to encode summary request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create summary request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling summary API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading summary response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("summary API error (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var apiResp messagesResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("parsing summary response: %w", err)
	}

	var b strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	summary := strings.TrimSpace(b.String())
	if summary == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Debug("Summary generated",
		slog.String("model", c.model),
		slog.Int("transcript_length", len(transcript)),
		slog.Int("summary_length", len(summary)),
		slog.Duration("duration", time.Since(start)))

	return summary, nil
}

// Markdown renders a summary as the summary.md document
func Markdown(summary string) string {
	return "# Meeting Summary\n\n" + summary + "\n"
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}
