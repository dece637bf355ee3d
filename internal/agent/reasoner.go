// Package agent proposes values for missing or doubtful TRF fields. It reads
// a snapshot of the case, asks the reasoning model about one field at a time,
// and filters every answer through the schema before surfacing it.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/genesilico/trf-intake/internal/common"
	"github.com/genesilico/trf-intake/internal/llm"
	"github.com/genesilico/trf-intake/internal/schema"
	"github.com/genesilico/trf-intake/internal/trf"
	"github.com/genesilico/trf-intake/internal/validate"
)

// Suggestion is one advisory proposal for a field. Suggestions never change
// the record; a reviewer applies or discards them.
type Suggestion struct {
	FieldName     string  `json:"fieldName"`
	ProposedValue string  `json:"proposedValue"`
	Rationale     string  `json:"rationale"`
	Confidence    float64 `json:"confidence"`
}

type Reasoner struct {
	sch *schema.Schema
	inf llm.Inferencer
	cfg common.AgentConfig
	log *slog.Logger
}

func NewReasoner(sch *schema.Schema, inf llm.Inferencer, cfg common.AgentConfig, logger *slog.Logger) *Reasoner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	if cfg.MaxFields <= 0 {
		cfg.MaxFields = 10
	}
	return &Reasoner{sch: sch, inf: inf, cfg: cfg, log: logger}
}

const maxAgentText = 6000

// Suggest proposes values for the fields most in need of attention: schema
// violations first, ordered by severity, then present fields whose confidence
// sits below the review threshold. One field failing to produce an answer
// never discards the answers of the others.
func (r *Reasoner) Suggest(ctx context.Context, rec *trf.CanonicalRecord, violations []validate.Violation, rawText string) ([]Suggestion, error) {
	snapshot := rec.Clone()
	if snapshot == nil {
		snapshot = trf.NewCanonicalRecord(rec.CaseID)
	}
	targets := r.pickTargets(snapshot, violations)
	if len(targets) == 0 {
		return nil, nil
	}

	results := make([]*Suggestion, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxParallel)
	for i, name := range targets {
		i, name := i, name
		g.Go(func() error {
			s, err := r.suggestField(gctx, snapshot, name, rawText)
			if err != nil {
				r.log.Warn("agent.suggest.field_failed",
					"case_id", snapshot.CaseID, "field", name, "error", err)
				return nil
			}
			results[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Suggestion
	for _, s := range results {
		if s != nil {
			out = append(out, *s)
		}
	}
	r.log.Info("agent.suggest.done",
		"case_id", snapshot.CaseID, "targets", len(targets), "suggestions", len(out))
	return out, nil
}

// pickTargets orders candidate fields: violation fields by severity (stable
// within a tier), then low-confidence present fields in schema order, capped
// at the configured maximum.
func (r *Reasoner) pickTargets(rec *trf.CanonicalRecord, violations []validate.Violation) []string {
	seen := make(map[string]bool)
	var targets []string

	sorted := make([]validate.Violation, len(violations))
	copy(sorted, violations)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Kind.Severity() < sorted[j].Kind.Severity()
	})
	for _, v := range sorted {
		if seen[v.FieldName] {
			continue
		}
		seen[v.FieldName] = true
		targets = append(targets, v.FieldName)
	}

	for _, spec := range r.sch.Fields() {
		f, ok := rec.Fields[spec.Name]
		if !ok || seen[spec.Name] || f.Confidence >= r.cfg.ConfidenceThreshold {
			continue
		}
		seen[spec.Name] = true
		targets = append(targets, spec.Name)
	}

	if len(targets) > r.cfg.MaxFields {
		targets = targets[:r.cfg.MaxFields]
	}
	return targets
}

func (r *Reasoner) suggestField(ctx context.Context, rec *trf.CanonicalRecord, name, rawText string) (*Suggestion, error) {
	spec, ok := r.sch.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown field %q", name)
	}
	return r.askField(ctx, rec, spec, rawText, "")
}

// Query answers a reviewer's question about one field through the same
// prompt, parse, and schema-filter path as the suggestion sweep. A nil
// result means the model found nothing, or proposed a value the field's
// constraints reject.
func (r *Reasoner) Query(ctx context.Context, rec *trf.CanonicalRecord, name, question, rawText string) (*Suggestion, error) {
	spec, ok := r.sch.Lookup(name)
	if !ok {
		return nil, common.WrapError(common.ErrInvalidInput, fmt.Sprintf("unknown field %q", name))
	}
	snapshot := rec.Clone()
	if snapshot == nil {
		snapshot = trf.NewCanonicalRecord(rec.CaseID)
	}
	return r.askField(ctx, snapshot, spec, rawText, question)
}

// askField runs the single-field prompt and filters the answer through the
// field's schema constraints. Both the suggestion sweep and the targeted
// query go through here.
func (r *Reasoner) askField(ctx context.Context, rec *trf.CanonicalRecord, spec *schema.FieldSpec, rawText, question string) (*Suggestion, error) {
	resp, err := r.inf.Infer(ctx, llm.Request{
		System: suggestSystemPrompt(r.sch, spec),
		User:   suggestUserPrompt(rec, spec, rawText, question),
	})
	if err != nil {
		return nil, err
	}
	value, conf, reasoning := parseAgentAnswer(resp.Content)
	if value == "" {
		return nil, nil
	}
	if _, ok := validate.ValidateField(spec, value); !ok {
		r.log.Debug("agent.proposal_rejected",
			"field", spec.Name, "value", value)
		return nil, nil
	}
	return &Suggestion{
		FieldName:     spec.Name,
		ProposedValue: value,
		Rationale:     reasoning,
		Confidence:    conf,
	}, nil
}

func suggestSystemPrompt(sch *schema.Schema, spec *schema.FieldSpec) string {
	var b strings.Builder
	b.WriteString("You extract single field values from medical test requisition forms.\n")
	b.WriteString("Determine the value of exactly one field from the document text and the partial record.\n\n")
	b.WriteString("Field: " + spec.Name + "\n")
	b.WriteString("About this field: " + Describe(sch, spec.Name) + "\n")
	if len(spec.ValidValues) > 0 {
		b.WriteString("Allowed values: " + strings.Join(spec.ValidValues, ", ") + "\n")
	}
	b.WriteString("\nRespond in exactly this format:\n")
	b.WriteString("VALUE: <the value, or Not found>\n")
	b.WriteString("CONFIDENCE: <a number between 0 and 1>\n")
	b.WriteString("REASONING: <one or two sentences on where the value came from>\n")
	b.WriteString("\nIf the document does not contain the value, answer VALUE: Not found. Never invent a value.")
	return b.String()
}

func suggestUserPrompt(rec *trf.CanonicalRecord, spec *schema.FieldSpec, rawText, question string) string {
	text := rawText
	if len(text) > maxAgentText {
		text = text[:maxAgentText]
	}
	var b strings.Builder
	b.WriteString("Partial record so far:\n")
	b.WriteString(recordJSON(rec))
	if cur, ok := rec.Value(spec.Name); ok {
		b.WriteString("\n\nThe field currently holds " + strconv.Quote(cur) + " with low confidence; confirm or correct it.")
	}
	if question != "" {
		b.WriteString("\n\nReviewer question: " + question)
	}
	b.WriteString("\n\nDocument text:\n")
	b.WriteString(text)
	return b.String()
}

func recordJSON(rec *trf.CanonicalRecord) string {
	nested := rec.Nested()
	if len(nested) == 0 {
		return "{}"
	}
	b, err := json.MarshalIndent(nested, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

var (
	reAnswerValue      = regexp.MustCompile(`(?im)^\s*VALUE\s*:\s*(.+)$`)
	reAnswerConfidence = regexp.MustCompile(`(?im)^\s*CONFIDENCE\s*:\s*([0-9]*\.?[0-9]+)`)
	reAnswerReasoning  = regexp.MustCompile(`(?ims)^\s*REASONING\s*:\s*(.+)$`)
)

var notFoundAnswers = map[string]bool{
	"not found": true,
	"none":      true,
	"n/a":       true,
	"na":        true,
	"unknown":   true,
	"":          true,
}

// parseAgentAnswer pulls the VALUE/CONFIDENCE/REASONING triplet out of a
// model answer. A missing or not-found VALUE yields an empty value.
func parseAgentAnswer(content string) (value string, conf float64, reasoning string) {
	if m := reAnswerValue.FindStringSubmatch(content); m != nil {
		value = strings.TrimSpace(m[1])
		value = strings.Trim(value, `"'`)
	}
	if notFoundAnswers[strings.ToLower(value)] {
		value = ""
	}
	conf = 0.5
	if m := reAnswerConfidence.FindStringSubmatch(content); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			conf = f
			if conf < 0 {
				conf = 0
			}
			if conf > 1 {
				conf = 1
			}
		}
	}
	if m := reAnswerReasoning.FindStringSubmatch(content); m != nil {
		reasoning = strings.TrimSpace(m[1])
	}
	return value, conf, reasoning
}
