// Package ocr defines the OCR collaborator contract and text-quality
// heuristics. The OCR engine itself is external; the core only needs text out.
package ocr

import "context"

// Result is the outcome of running OCR on one document.
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Pages      int     `json:"pages"`
	Method     string  `json:"method"`
}

// TextExtractor is the OCR collaborator contract. Transport failures surface
// as common.ErrOCRUnavailable.
type TextExtractor interface {
	ExtractText(ctx context.Context, path, mimeType string) (Result, error)
}
