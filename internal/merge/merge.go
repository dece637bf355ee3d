// Package merge folds one document's extracted fields into a case's canonical
// record. The fold is deterministic for a fixed input pair: confidence decides
// every conflict, and on an exact tie the incoming document wins as the more
// recent observation.
package merge

import (
	"github.com/genesilico/trf-intake/internal/schema"
	"github.com/genesilico/trf-intake/internal/trf"
)

// Merge builds the next canonical record from the existing one and a newly
// processed document. Neither input is mutated. A field present in the
// canonical record but absent from the document is always kept; absence from
// one document never deletes information contributed by another. Field names
// the schema does not declare are dropped.
func Merge(sch *schema.Schema, existing *trf.CanonicalRecord, doc *trf.DocumentRecord) *trf.CanonicalRecord {
	next := trf.NewCanonicalRecord(doc.CaseID)
	if existing != nil {
		next.Revision = existing.Revision
		for name, f := range existing.Fields {
			if !sch.Has(name) {
				continue
			}
			next.Fields[name] = f
		}
	}
	for name, f := range doc.Fields {
		if !sch.Has(name) {
			continue
		}
		if prev, ok := next.Fields[name]; ok && prev.Confidence > f.Confidence {
			continue
		}
		next.Fields[name] = f
	}
	return next
}
