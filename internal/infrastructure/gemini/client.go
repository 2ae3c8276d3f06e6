// Package gemini classifies product images with the Gemini generateContent API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
)

const classifyPrompt = `You are shown %d images from a web page, in order.
For each image decide whether it shows a single purchasable consumer product.
Answer with only a JSON array of exactly %d objects, one per image in the same order:
[{"isProduct": true, "name": "specific product name", "brand": "brand or null"}]
Use {"isProduct": false, "name": null, "brand": null} for anything that is not a product photo.`

const verifyPrompt = `Say "API key is valid" in exactly those words.`

// Client calls the generateContent endpoint
type Client struct {
	httpClient *http.Client
	endpoint   string
	model      string
	logger     *zap.Logger
}

// NewClient creates a Gemini client. endpoint is the versioned API root,
// e.g. https://generativelanguage.googleapis.com/v1beta.
func NewClient(endpoint, model string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		endpoint:   strings.TrimRight(endpoint, "/"),
		model:      model,
		logger:     logger.Named("gemini"),
	}
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// classification is the per-image answer the model is asked for
type classification struct {
	IsProduct bool    `json:"isProduct"`
	Name      *string `json:"name"`
	Brand     *string `json:"brand"`
}

// ClassifyBatch returns one entry per image in input order; nil means "not a product".
// A malformed answer marks every image as not a product. Transport and status
// failures are returned as errors.
func (c *Client) ClassifyBatch(ctx context.Context, apiKey string, images []domain.VisionImage) ([]*domain.Classification, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: vision API key", domain.ErrConfiguration)
	}
	if len(images) == 0 {
		return nil, nil
	}

	parts := []part{{Text: fmt.Sprintf(classifyPrompt, len(images), len(images))}}
	for _, img := range images {
		parts = append(parts, part{InlineData: &inlineData{MimeType: mimeTypeOf(img), Data: img.Base64}})
	}

	text, err := c.generate(ctx, apiKey, parts)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Classification, len(images))
	raw, ok := extractJSONArray(text)
	if !ok {
		c.logger.Warn("no JSON array in model answer", zap.Int("images", len(images)))
		return out, nil
	}

	var answers []classification
	if err := json.Unmarshal([]byte(raw), &answers); err != nil || len(answers) != len(images) {
		c.logger.Warn("malformed model answer",
			zap.Int("images", len(images)),
			zap.Int("answers", len(answers)),
			zap.Error(err))
		return out, nil
	}

	for i, a := range answers {
		if !a.IsProduct || a.Name == nil || strings.TrimSpace(*a.Name) == "" {
			continue
		}
		cl := &domain.Classification{IsProduct: true, Name: strings.TrimSpace(*a.Name)}
		if a.Brand != nil {
			cl.Brand = strings.TrimSpace(*a.Brand)
		}
		out[i] = cl
	}
	return out, nil
}

// Verify checks that apiKey is accepted with a text-only request
func (c *Client) Verify(ctx context.Context, apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("%w: vision API key", domain.ErrConfiguration)
	}
	_, err := c.generate(ctx, apiKey, []part{{Text: verifyPrompt}})
	return err
}

func (c *Client) generate(ctx context.Context, apiKey string, parts []part) (string, error) {
	body, err := json.Marshal(generateRequest{Contents: []content{{Parts: parts}}})
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}

	reqURL := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.endpoint, c.model, url.QueryEscape(apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: gemini: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("gemini: read body: %w", err)
	}

	var parsed generateResponse
	decodeErr := json.Unmarshal(respBody, &parsed)

	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return "", fmt.Errorf("%w: gemini returned %d: %s", domain.ErrBadStatus, resp.StatusCode, msg)
	}
	if decodeErr != nil {
		c.logger.Warn("undecodable response", zap.Error(decodeErr))
		return "", nil
	}

	var sb strings.Builder
	if len(parsed.Candidates) > 0 {
		for _, p := range parsed.Candidates[0].Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	return sb.String(), nil
}

// extractJSONArray returns the first balanced [...] in s, skipping brackets inside strings
func extractJSONArray(s string) (string, bool) {
	start := strings.IndexByte(s, '[')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func mimeTypeOf(img domain.VisionImage) string {
	if img.MimeType != "" {
		return img.MimeType
	}
	lower := strings.ToLower(img.SourceURL)
	switch {
	case strings.Contains(lower, ".png"):
		return "image/png"
	case strings.Contains(lower, ".webp"):
		return "image/webp"
	case strings.Contains(lower, ".gif"):
		return "image/gif"
	default:
		return "image/jpeg"
	}
}
