package llm

import (
	"encoding/json"
	"strings"

	"github.com/genesilico/trf-intake/internal/schema"
	"github.com/genesilico/trf-intake/internal/trf"
)

const maxPromptText = 6000

// BuildExtractionSystemPrompt composes the system message for full-form
// extraction: the field inventory, value formats, and strict-but-practical
// formatting rules.
func BuildExtractionSystemPrompt(fields []schema.FieldSpec) string {
	var inv strings.Builder
	for i := range fields {
		f := &fields[i]
		inv.WriteString("- ")
		inv.WriteString(f.Name)
		if f.Description != "" {
			inv.WriteString(": ")
			inv.WriteString(f.Description)
		}
		if len(f.ValidValues) > 0 {
			inv.WriteString(" (one of: ")
			inv.WriteString(strings.Join(f.ValidValues, ", "))
			inv.WriteString(")")
		}
		if f.Required {
			inv.WriteString(" [required]")
		}
		inv.WriteString("\n")
	}

	parts := []string{
		"You are a medical Test Requisition Form parser. Return ONLY JSON that matches the provided JSON Schema.",
		"Keys are the dotted field paths listed below; each value is an object {\"value\": string, \"confidence\": number 0..1}.",
		"Use MM/DD/YYYY or YYYY-MM-DD for dates.",
		"Omit any field you cannot find in the text. Never output null and never invent values.",
		"Confidence reflects how certain you are the value is what the form says, not how plausible it sounds.",
		"Field inventory:\n" + inv.String(),
	}
	return strings.Join(parts, " ")
}

// BuildExtractionUserPrompt packages the OCR text plus, when known, prior
// patient data so extraction stays consistent with the rest of the case.
func BuildExtractionUserPrompt(rawText string, prior *trf.CanonicalRecord) string {
	var b strings.Builder
	if prior != nil && len(prior.Fields) > 0 {
		b.WriteString("Previously confirmed values for this patient (prefer consistency with these):\n")
		if js, err := json.MarshalIndent(prior.Nested(), "", "  "); err == nil {
			b.Write(js)
		}
		b.WriteString("\n\n")
	}
	b.WriteString("OCR text:\n")
	if len(rawText) > maxPromptText {
		b.WriteString(rawText[:maxPromptText])
		b.WriteString("\n…(truncated)")
	} else {
		b.WriteString(rawText)
	}
	return b.String()
}
