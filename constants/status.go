package constants

// DocumentStatus is the canonical pipeline status for a document.
type DocumentStatus string

// Stable values (store these exact strings in the document store).
const (
	StatusUploaded  DocumentStatus = "uploaded"  // registered, no text yet
	StatusOCRDone   DocumentStatus = "ocr_done"  // raw text captured
	StatusExtracted DocumentStatus = "extracted" // structured fields produced
	StatusValidated DocumentStatus = "validated" // document fields checked against the schema
	StatusMerged    DocumentStatus = "merged"    // folded into the case canonical record
	StatusReviewed  DocumentStatus = "reviewed"  // signed off by a human reviewer
	StatusFailed    DocumentStatus = "failed"    // terminal failure, reachable from any stage
)

var statusRank = map[DocumentStatus]int{
	StatusUploaded:  0,
	StatusOCRDone:   1,
	StatusExtracted: 2,
	StatusValidated: 3,
	StatusMerged:    4,
	StatusReviewed:  5,
}

// Rank returns the forward position of a status, or -1 for failed/unknown.
func (s DocumentStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// CanAdvance reports whether moving from s to next is a forward transition.
// Pipeline transitions never regress; failed is reachable from anywhere.
func (s DocumentStatus) CanAdvance(next DocumentStatus) bool {
	if next == StatusFailed {
		return true
	}
	return next.Rank() > s.Rank()
}
