package openai

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/genesilico/trf-intake/internal/common"
	"github.com/genesilico/trf-intake/internal/llm"
)

// Infer implements llm.Inferencer against a chat/completions endpoint.
// When the request carries a JSON schema, the schema travels as a trailing
// system message and response_format is forced to a JSON object.
func (c *Client) Infer(ctx context.Context, req llm.Request) (llm.Response, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("llm.infer.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"user_len", len(req.User),
		"structured", req.JSONSchema != nil,
	)

	messages := []map[string]any{
		{"role": "system", "content": req.System},
		{"role": "user", "content": req.User},
	}
	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"messages":    messages,
	}
	if req.Temperature > 0 {
		body["temperature"] = req.Temperature
	}
	if req.JSONSchema != nil {
		body["response_format"] = map[string]any{"type": "json_object"}
		messages = append(messages, map[string]any{
			"role":    "system",
			"content": "JSON Schema:\n" + mustJSON(req.JSONSchema),
		})
		body["messages"] = messages
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, _, err := llm.SendJSON(ctx, c.httpClient, endpoint, body, map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
	}, c.log)
	if err != nil {
		c.log.Error("llm.infer.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Response{}, common.WrapError(common.ErrInferenceUnavailable, err.Error())
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Error("llm.infer.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Response{}, common.WrapError(common.ErrInferenceMalformed, "decode completion response")
	}
	if len(cc.Choices) == 0 {
		c.log.Error("llm.infer.no_choices",
			"req_id", rid,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Response{}, common.WrapError(common.ErrInferenceMalformed, "no choices in completion response")
	}

	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	c.log.Info("llm.infer.ok",
		"req_id", rid,
		"content_len", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return llm.Response{Content: content}, nil
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

var _ llm.Inferencer = (*Client)(nil)
