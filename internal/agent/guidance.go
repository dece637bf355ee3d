package agent

import (
	"fmt"
	"strings"

	"github.com/genesilico/trf-intake/internal/schema"
	"github.com/genesilico/trf-intake/internal/trf"
	"github.com/genesilico/trf-intake/internal/validate"
)

// Guidance summarizes how complete a case is and what a reviewer should do
// next.
type Guidance struct {
	CompletionPercent float64  `json:"completionPercent"`
	MissingRequired   []string `json:"missingRequired"`
	ViolationCount    int      `json:"violationCount"`
	Message           string   `json:"message"`
}

// BuildGuidance computes completion over the required fields and renders a
// next-step message for the reviewer.
func BuildGuidance(sch *schema.Schema, rec *trf.CanonicalRecord, violations []validate.Violation) Guidance {
	required := sch.RequiredFields()
	var missing []string
	filled := 0
	for _, name := range required {
		if f, ok := rec.Fields[name]; ok && strings.TrimSpace(f.Value) != "" {
			filled++
			continue
		}
		missing = append(missing, name)
	}

	pct := 100.0
	if len(required) > 0 {
		pct = float64(filled) / float64(len(required)) * 100
	}

	g := Guidance{
		CompletionPercent: pct,
		MissingRequired:   missing,
		ViolationCount:    len(violations),
	}
	switch {
	case len(missing) == 0 && len(violations) == 0:
		g.Message = "All required fields are filled and valid. The case is ready for final review."
	case len(missing) == 0:
		g.Message = fmt.Sprintf("All required fields are filled but %d validation issue(s) remain. Review the flagged values.", len(violations))
	case pct >= 75:
		g.Message = fmt.Sprintf("The case is nearly complete. Fill in: %s.", strings.Join(missing, ", "))
	case pct >= 40:
		g.Message = fmt.Sprintf("Several required fields are still missing: %s. Uploading additional case documents may fill them automatically.", strings.Join(missing, ", "))
	default:
		g.Message = "Most required information is missing. Upload the requisition form and any supporting documents for this case."
	}
	return g
}
