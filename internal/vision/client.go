// Package vision wraps the Anthropic messages API as the bill extraction
// oracle: it sends a bill image and returns the structured fields the model
// read off it, strictly validated against a fixed schema.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-haiku-4-5"
	defaultMaxTokens = 1024
	defaultTimeout   = 60 * time.Second

	anthropicVersion = "2023-06-01"
)

var (
	// ErrExtraction means the model replied but the reply was unusable:
	// non-JSON, schema-violating, or missing required fields.
	ErrExtraction = errors.New("bill extraction failed")
	// ErrUnavailable means the API could not be reached or answered with an
	// error; the caller should try again later.
	ErrUnavailable = errors.New("AI service unavailable")
)

// Extraction is the oracle's structured guess for one bill image.
type Extraction struct {
	BillType    string          `json:"billType"`
	Period      string          `json:"period"`
	Cost        decimal.Decimal `json:"cost"`
	Consumption decimal.Decimal `json:"consumption"`
	Unit        string          `json:"unit"`
	Confidence  float64         `json:"confidence"`
	Notes       string          `json:"notes,omitempty"`
}

type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger,
	}
}

// Models may wrap the JSON reply in a markdown code fence despite instructions.
var codeFence = regexp.MustCompile("(?s)^```(?:json)?\n?|\n?```$")

// Parse sends the bill image to the model and returns the validated extraction.
// One attempt, no retries; the configured timeout bounds the call.
func (c *Client) Parse(ctx context.Context, image []byte, fileName string) (Extraction, error) {
	start := time.Now()
	encoded := base64.StdEncoding.EncodeToString(image)
	mediaType := detectMediaType(encoded, fileName)

	c.log.Info("vision.parse.start",
		"model", c.cfg.Model,
		"file_name", fileName,
		"media_type", mediaType,
		"image_bytes", len(image))

	body := map[string]any{
		"model":      c.cfg.Model,
		"max_tokens": c.cfg.MaxTokens,
		"system":     systemPrompt,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{
						"type": "image",
						"source": map[string]any{
							"type":       "base64",
							"media_type": mediaType,
							"data":       encoded,
						},
					},
					{
						"type": "text",
						"text": userPrompt(fileName),
					},
				},
			},
		},
	}

	raw, err := c.post(ctx, strings.TrimRight(c.cfg.BaseURL, "/")+"/v1/messages", body)
	if err != nil {
		c.log.Error("vision.parse.api_error",
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return Extraction{}, err
	}

	var reply struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return Extraction{}, fmt.Errorf("%w: decode API reply: %v", ErrExtraction, err)
	}

	text := ""
	for _, block := range reply.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return Extraction{}, fmt.Errorf("%w: no text response from AI", ErrExtraction)
	}

	clean := strings.TrimSpace(codeFence.ReplaceAllString(strings.TrimSpace(text), ""))

	if err := validateExtraction([]byte(clean)); err != nil {
		c.log.Error("vision.parse.schema_violation",
			"error", err,
			"content", clean,
			"elapsed_ms", time.Since(start).Milliseconds())
		return Extraction{}, fmt.Errorf(
			"%w: the reply did not match the expected bill structure (%v); "+
				"make sure the image is a clear, readable utility bill", ErrExtraction, err)
	}

	var out Extraction
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return Extraction{}, fmt.Errorf("%w: decode fields: %v", ErrExtraction, err)
	}

	c.log.Info("vision.parse.ok",
		"bill_type", out.BillType,
		"period", out.Period,
		"confidence", out.Confidence,
		"elapsed_ms", time.Since(start).Milliseconds())

	return out, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf(
			"%w: the language model could not be reached, please try again in a few moments (%v)",
			ErrUnavailable, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log.Warn("vision response body close error", "error", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read reply: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// The API rejects media types it cannot analyze with a validation error
		// naming the media_type field; surface that as remediation rather than
		// an availability problem.
		if strings.Contains(string(raw), "media_type") {
			return nil, fmt.Errorf(
				"%w: unsupported file format for AI analysis; please use JPG or PNG image files. "+
					"If you have a PDF, convert it to an image first using an online converter "+
					"or by taking a screenshot", ErrExtraction)
		}
		return nil, fmt.Errorf(
			"%w: AI service error (status %d), the language model is temporarily unavailable; "+
				"please try again in a few moments", ErrUnavailable, resp.StatusCode)
	}

	return raw, nil
}
