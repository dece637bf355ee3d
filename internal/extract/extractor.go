// Package extract turns raw OCR text into confidence-scored requisition
// fields. It runs a deterministic label-pattern pass over the text, asks the
// inference model for a structured extraction, and keeps the higher-confidence
// candidate per field.
package extract

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/genesilico/trf-intake/internal/common"
	"github.com/genesilico/trf-intake/internal/llm"
	"github.com/genesilico/trf-intake/internal/ocr"
	"github.com/genesilico/trf-intake/internal/schema"
	"github.com/genesilico/trf-intake/internal/trf"
)

// Input carries everything the extractor needs for one document.
type Input struct {
	DocumentID uuid.UUID
	RawText    string
	// Prior is the case record merged so far, if any. It is offered to the
	// model as context so repeated values stay consistent across documents.
	Prior *trf.CanonicalRecord
}

type Extractor struct {
	sch *schema.Schema
	inf llm.Inferencer
	log *slog.Logger
}

func New(sch *schema.Schema, inf llm.Inferencer, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{sch: sch, inf: inf, log: logger}
}

// Extract produces the field set for one document. Fields absent from the
// text are absent from the result, never defaulted.
//
// If the model transport fails the error is returned and no fields are
// produced. If the model responds but its output cannot be repaired into the
// expected shape, the pattern-pass fields are returned alone.
func (e *Extractor) Extract(ctx context.Context, in Input) (map[string]trf.ExtractedField, error) {
	source := in.DocumentID.String()
	fields := e.patternPass(in.RawText, source)

	req := llm.Request{
		System:     llm.BuildExtractionSystemPrompt(e.sch.Fields()),
		User:       llm.BuildExtractionUserPrompt(in.RawText, in.Prior),
		JSONSchema: llm.BuildExtractionJSONSchema(e.sch.Fields()),
	}
	resp, err := e.inf.Infer(ctx, req)
	if err != nil {
		if errors.Is(err, common.ErrInferenceMalformed) {
			e.log.Warn("extract.infer.malformed", "document_id", source, "error", err)
			return fields, nil
		}
		return nil, err
	}

	vals, ok := e.decodeModelOutput(resp.Content, source)
	if !ok {
		return fields, nil
	}
	compiled, err := llm.CompileSchema(req.JSONSchema)
	if err != nil {
		e.log.Warn("extract.schema_compile.failed", "document_id", source, "error", err)
		return fields, nil
	}

	for name, fv := range vals {
		spec, _ := e.sch.Lookup(name)
		fv.Value = normalizeValue(spec, fv.Value)
		if fv.Value == "" {
			continue
		}
		if err := llm.ValidateFieldObject(compiled, name, fv); err != nil {
			e.log.Debug("extract.field_rejected",
				"document_id", source, "field", name, "error", err)
			continue
		}
		value := fv.Value
		conf := e.scoreModelField(in.RawText, value, fv.Confidence)
		if prev, exists := fields[name]; exists && prev.Confidence >= conf {
			continue
		}
		fields[name] = trf.ExtractedField{
			Name:       name,
			Value:      value,
			Confidence: conf,
			Source:     source,
		}
	}

	e.log.Info("extract.done", "document_id", source, "fields", len(fields))
	return fields, nil
}

func (e *Extractor) patternPass(text, source string) map[string]trf.ExtractedField {
	fields := make(map[string]trf.ExtractedField)
	for name, pats := range fieldPatterns {
		spec, ok := e.sch.Lookup(name)
		if !ok {
			continue
		}
		for _, p := range pats {
			m := p.re.FindStringSubmatch(text)
			if m == nil || p.group >= len(m) {
				continue
			}
			value := normalizeValue(spec, m[p.group])
			if value == "" {
				continue
			}
			conf := p.conf - ocr.ArtifactPenalty(m[0])
			if conf < 0.05 {
				conf = 0.05
			}
			if prev, exists := fields[name]; !exists || conf > prev.Confidence {
				fields[name] = trf.ExtractedField{
					Name:       name,
					Value:      value,
					Confidence: conf,
					Source:     source,
				}
			}
		}
	}
	return fields
}

// decodeModelOutput sanitizes and parses the raw model completion. A payload
// that cannot be decoded at all downgrades the document to pattern-only
// fields; constraint checks happen per field, after normalization, so one bad
// value never discards the rest.
func (e *Extractor) decodeModelOutput(content, source string) (map[string]llm.FieldValue, bool) {
	sanitized, dropped, err := llm.NormalizeExtractionJSON([]byte(content), e.sch, e.log)
	if err != nil {
		e.log.Warn("extract.sanitize.failed", "document_id", source, "error", err)
		return nil, false
	}
	if len(dropped) > 0 {
		e.log.Debug("extract.sanitize.dropped", "document_id", source, "fields", dropped)
	}
	vals, err := llm.ParseExtraction(sanitized)
	if err != nil {
		e.log.Warn("extract.parse.failed", "document_id", source, "error", err)
		return nil, false
	}
	return vals, true
}

// scoreModelField trusts the model's own confidence when it reports one,
// otherwise scores by whether the value appears verbatim in the OCR text and
// how noisy its neighbourhood looks.
func (e *Extractor) scoreModelField(rawText, value string, reported *float64) float64 {
	if reported != nil {
		return clampConfidence(*reported)
	}
	conf := 0.7
	if strings.Contains(rawText, value) {
		conf += 0.1
		conf -= ocr.ArtifactPenalty(ocr.ContextAround(rawText, value, 12))
	} else {
		conf -= 0.2
	}
	return clampConfidence(conf)
}

func clampConfidence(c float64) float64 {
	if c < 0.05 {
		return 0.05
	}
	if c > 0.99 {
		return 0.99
	}
	return c
}

var genderNormalization = map[string]string{
	"m":      "Male",
	"male":   "Male",
	"f":      "Female",
	"female": "Female",
	"other":  "Other",
}

// normalizeValue trims the raw capture and, for enum fields, folds it onto
// the canonical casing of the allowed value when the match is only off by
// case or a common abbreviation.
func normalizeValue(spec *schema.FieldSpec, raw string) string {
	value := strings.TrimSpace(raw)
	value = strings.Trim(value, ",;")
	if spec == nil || len(spec.ValidValues) == 0 || value == "" {
		return value
	}
	if g, ok := genderNormalization[strings.ToLower(value)]; ok {
		for _, allowed := range spec.ValidValues {
			if allowed == g {
				return g
			}
		}
	}
	folded := strings.ToLower(strings.Join(strings.Fields(value), " "))
	for _, allowed := range spec.ValidValues {
		if strings.ToLower(allowed) == folded {
			return allowed
		}
	}
	return value
}
