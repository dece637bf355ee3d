package extract

import "regexp"

// labelPattern matches one labelled value in OCR text. The first pattern for a
// field is the exact label form; later entries are looser fallbacks and carry
// lower confidence.
type labelPattern struct {
	re    *regexp.Regexp
	conf  float64
	group int
}

func pat(conf float64, expr string) labelPattern {
	return labelPattern{re: regexp.MustCompile(expr), conf: conf, group: 1}
}

func patGroup(conf float64, group int, expr string) labelPattern {
	return labelPattern{re: regexp.MustCompile(expr), conf: conf, group: group}
}

// fieldPatterns maps schema field names to the label patterns commonly seen on
// scanned requisition forms.
var fieldPatterns = map[string][]labelPattern{
	"patientInformation.patientName.firstName": {
		pat(0.8, `(?i)(?:First\s+Name|Given\s+Name|Patient\s+First\s+Name)\s*:\s*([A-Za-z\-']+)`),
		patGroup(0.6, 1, `(?i)(?:Patient\s+Name|Patient|Name)\s*:\s*(?:Mrs\.|Mr\.|Ms\.|Dr\.)?\s*([A-Za-z\-']+)\s+[A-Za-z\-']+`),
	},
	"patientInformation.patientName.lastName": {
		pat(0.8, `(?i)(?:Last\s+Name|Family\s+Name|Surname|Patient\s+Last\s+Name)\s*:\s*([A-Za-z\-']+)`),
		patGroup(0.6, 2, `(?i)(?:Patient\s+Name|Patient|Name)\s*:\s*(?:Mrs\.|Mr\.|Ms\.|Dr\.)?\s*([A-Za-z\-']+)\s+([A-Za-z\-']+)`),
	},
	"patientInformation.gender": {
		pat(0.8, `(?i)(?:Gender|Sex)\s*:\s*(Male|Female|Other|M|F)\b`),
		pat(0.6, `(?i)Age/Gender\s*:\s*\d+\s*Years?/(M|F)\b`),
	},
	"patientInformation.dob": {
		pat(0.8, `(?i)(?:DOB|Date\s+of\s+Birth|Birth\s+Date)\s*:\s*(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4})`),
		pat(0.8, `(?i)(?:DOB|Date\s+of\s+Birth|Birth\s+Date)\s*:\s*(\d{4}[/\-.]\d{1,2}[/\-.]\d{1,2})`),
	},
	"patientInformation.age": {
		pat(0.8, `(?i)(?:Age|Patient\s+Age)\s*:\s*(\d{1,3})\s*(?:years|yrs|yr|y)?\b`),
		pat(0.7, `(?i)Age/Gender\s*:\s*(\d+)\s*Years?`),
	},
	"patientInformation.patientInformationPhoneNumber": {
		pat(0.8, `(?i)(?:Phone|Tel|Telephone|Contact|Mobile|Cell)(?:\s+Number)?\s*:\s*(\+?[0-9][0-9\-\(\)\s\.]{6,}[0-9])`),
	},
	"patientInformation.email": {
		pat(0.8, `(?i)(?:Email|E-mail)\s*:\s*([a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,})`),
		pat(0.6, `([a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,})`),
	},
	"patientInformation.patientInformationAddress": {
		pat(0.7, `(?i)(?:Address|Patient\s+Address)\s*:\s*([^\n\r]+)`),
	},
	"clinicalSummary.primaryDiagnosis": {
		pat(0.8, `(?i)(?:Primary\s+Diagnosis|Clinical\s+Diagnosis|Provisional\s+Diagnosis|Diagnosis)\s*:\s*([^\n\r]+)`),
	},
	"clinicalSummary.diagnosisDate": {
		pat(0.8, `(?i)(?:Diagnosis\s+Date|Date\s+of\s+Diagnosis)\s*:\s*(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4})`),
	},
	"clinicalSummary.Immunohistochemistry.er": {
		pat(0.8, `(?i)(?:ER|Estrogen\s+Receptor)\s*:\s*(\+{1,3}|\-|Positive|Negative|Pos|Neg|[0-9]{1,3}\s*%)`),
	},
	"clinicalSummary.Immunohistochemistry.pr": {
		pat(0.8, `(?i)(?:PR|Progesterone\s+Receptor)\s*:\s*(\+{1,3}|\-|Positive|Negative|Pos|Neg|[0-9]{1,3}\s*%)`),
	},
	"clinicalSummary.Immunohistochemistry.her2neu": {
		pat(0.8, `(?i)(?:HER2/neu|Her-2/neu|HER2)\s*:\s*(\+{1,3}|\-|Positive|Negative|Pos|Neg|[0-9]\+?)`),
	},
	"clinicalSummary.Immunohistochemistry.ki67": {
		pat(0.8, `(?i)Ki-?67\s*:\s*([0-9]{1,3}\s*%?)`),
	},
	"physician.physicianName": {
		pat(0.8, `(?i)(?:Treating\s+Doctor|Referring\s+Doctor|Attending\s+Physician|Ref\s+Doctor|Doctor|Physician|Oncologist)\s*:\s*([A-Za-z][A-Za-z\s\.\-']+)`),
	},
	"physician.physicianEmail": {
		pat(0.9, `(?i)(?:Doctor|Physician|Oncologist|Provider)(?:'s)?\s+Email\s*:\s*([a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,})`),
	},
	"hospital.hospitalName": {
		pat(0.8, `(?i)(?:Hospital|Facility|Medical\s+Center|Clinic|Institution|Client\s+Name)\s*:\s*([A-Za-z][A-Za-z\s\.\-'&,]+)`),
	},
	"Sample.0.sampleType": {
		pat(0.8, `(?i)(?:Sample\s+Type|Specimen\s+Type|Type\s+of\s+Sample|Type\s+of\s+Specimen)\s*:\s*(Blood|Tissue|Bone\s+Marrow|Swab|Saliva|Urine|CSF|Plasma|Serum)`),
		pat(0.7, `(?i)(?:Sample|Specimen)\s*[:\)]\s*[☐☑☒✓✔]\s*(Blood|Tissue|Bone\s+Marrow|Swab|Saliva|Urine|CSF|Plasma|Serum)`),
	},
	"Sample.0.sampleID": {
		pat(0.9, `(?i)(?:Sample\s+ID|Specimen\s+ID|Sample\s+Number|Specimen\s+Number|Case\s+Id)\s*:\s*([A-Za-z0-9\-/]+)`),
	},
	"Sample.0.sampleCollectionDate": {
		pat(0.8, `(?i)(?:Collection\s+Date|Date\s+of\s+Collection|Sample\s+Collection\s+Date|Collected)\s*:\s*(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4})`),
	},
}
