package constants

// FieldType enumerates the value types a TRF field can declare.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldDate   FieldType = "date"
	FieldEnum   FieldType = "enum"
	FieldNumber FieldType = "number"
)

// ViolationKind classifies a schema rule broken by a record.
type ViolationKind string

const (
	ViolationMissingRequired ViolationKind = "missing-required"
	ViolationTypeMismatch    ViolationKind = "type-mismatch"
	ViolationOutOfRange      ViolationKind = "out-of-range"
	ViolationInvalidEnum     ViolationKind = "invalid-enum"
)

// Severity orders violation kinds for reviewer triage; lower sorts first.
func (k ViolationKind) Severity() int {
	switch k {
	case ViolationMissingRequired:
		return 0
	case ViolationInvalidEnum, ViolationTypeMismatch, ViolationOutOfRange:
		return 1
	default:
		return 2
	}
}

// SourceManualReview marks field values entered or accepted by a reviewer.
const SourceManualReview = "manual-review"
