package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/genesilico/trf-intake/internal/common"
)

// Config for the HTTP OCR client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client calls an external OCR endpoint that accepts a document reference and
// returns page text. When the service reports no confidence, a heuristic
// score derived from the text itself is used instead.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger,
	}
}

func (c *Client) ExtractText(ctx context.Context, path, mimeType string) (Result, error) {
	start := time.Now()
	body := map[string]any{
		"document_path": path,
		"mime_type":     mimeType,
	}
	bs, err := json.Marshal(body)
	if err != nil {
		return Result{}, fmt.Errorf("encode ocr request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/ocr"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bs))
	if err != nil {
		return Result{}, fmt.Errorf("build ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("ocr.http_error", "path", path, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return Result{}, common.WrapError(common.ErrOCRUnavailable, err.Error())
	}
	defer func(body io.ReadCloser) {
		if cerr := body.Close(); cerr != nil {
			c.log.Warn("ocr.response_body_close_error", "error", cerr)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		c.log.Error("ocr.bad_status", "path", path, "status", resp.StatusCode)
		return Result{}, common.WrapError(common.ErrOCRUnavailable,
			fmt.Sprintf("ocr status %d", resp.StatusCode))
	}

	var out Result
	if err := json.Unmarshal(raw, &out); err != nil {
		c.log.Error("ocr.decode_error", "path", path, "error", err)
		return Result{}, common.WrapError(common.ErrOCRUnavailable, "decode ocr response")
	}
	if out.Confidence <= 0 {
		out.Confidence = TextConfidence(out.Text)
	}
	if out.Method == "" {
		out.Method = "remote"
	}

	c.log.Info("ocr.ok",
		"path", path,
		"pages", out.Pages,
		"confidence", out.Confidence,
		"text_len", len(out.Text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

var _ TextExtractor = (*Client)(nil)
