package agent

import "github.com/genesilico/trf-intake/internal/schema"

// fieldNotes gives the reasoning model context the schema's one-line
// descriptions leave out: where the value usually sits on a scanned form and
// what shapes it takes.
var fieldNotes = map[string]string{
	"patientID": "Laboratory or hospital identifier assigned to the patient. Usually printed near the top of the form as Patient ID, MRN, or UHID.",
	"patientInformation.patientName.firstName": "Patient's given name. Forms often print the full name on one line after 'Patient Name'; the first token is the first name. Honorifics like Mr. or Mrs. are not part of the name.",
	"patientInformation.patientName.middleName": "Patient's middle name, when the full name has three tokens. Many forms omit it entirely.",
	"patientInformation.patientName.lastName":   "Patient's family name, the last token of the printed full name.",
	"patientInformation.gender":                 "Patient's gender as printed, often abbreviated M or F, sometimes combined with age as 'Age/Gender: 54 Years/F'.",
	"patientInformation.dob":                    "Patient's date of birth, labelled DOB or Date of Birth. May use day-first or month-first ordering depending on the lab.",
	"patientInformation.age":                    "Patient's age in whole years. When only a birth date is printed the age is not derived here; it stays absent.",
	"patientInformation.patientInformationPhoneNumber": "Patient's contact number, labelled Phone, Mobile, or Contact. May include country code and separators.",
	"patientInformation.email":                         "Patient's email address if printed. Hospital and physician emails belong to other fields.",
	"patientInformation.patientInformationAddress":     "Patient's street address, usually a single printed line.",
	"patientInformation.patientCity":                   "City from the patient address block.",
	"patientInformation.patientState":                  "State or province from the patient address block.",
	"patientInformation.patientPincode":                "Postal code from the patient address block.",
	"clinicalSummary.primaryDiagnosis":                 "The diagnosis this test is ordered for, labelled Diagnosis, Clinical Diagnosis, or Provisional Diagnosis. Free text, often a cancer type with stage.",
	"clinicalSummary.diagnosisDate":                    "Date the primary diagnosis was made, when the form records it.",
	"clinicalSummary.Immunohistochemistry.er":          "Estrogen receptor IHC result, typically Positive, Negative, a plus grade, or a percentage.",
	"clinicalSummary.Immunohistochemistry.pr":          "Progesterone receptor IHC result, same shapes as ER.",
	"clinicalSummary.Immunohistochemistry.her2neu":     "HER2/neu IHC result, often graded 0 to 3+.",
	"clinicalSummary.Immunohistochemistry.ki67":        "Ki-67 proliferation index, usually a percentage.",
	"clinicalSummary.Immunohistochemistry.hasPatientFailedPriorTreatment": "Yes when the form indicates prior therapy that did not work, No otherwise. Checkbox or Yes/No answer.",
	"clinicalSummary.Immunohistochemistry.pastTherapy":                    "Description of previous treatment lines, expected whenever prior treatment failure is marked Yes.",
	"FamilyHistory.familyHistoryOfAnyCancer":           "Yes/No answer for cancer in the family. Checkbox on most forms.",
	"FamilyHistory.familyMember":                       "Which relative had cancer, expected whenever family history is marked Yes.",
	"physician.physicianName":                          "The ordering or treating doctor, labelled Referring Doctor, Treating Doctor, or Physician.",
	"physician.physicianSpecialty":                     "The doctor's specialty, for example Medical Oncology.",
	"physician.physicianPhoneNumber":                   "The doctor's contact number, distinct from the patient's.",
	"physician.physicianEmail":                         "The doctor's email address, distinct from the patient's.",
	"hospital.hospitalName":                            "The hospital, clinic, or lab client the form came from. Often printed in the letterhead.",
	"hospital.hospitalAddress":                         "Address of the hospital or clinic, usually under the letterhead.",
	"Sample.0.sampleType":                              "The specimen kind collected for this test. Forms use a checkbox row; exactly one of the allowed kinds should be marked.",
	"Sample.0.sampleID":                                "Identifier printed on the specimen container or barcode, labelled Sample ID or Specimen Number.",
	"Sample.0.sampleCollectionDate":                    "Date the specimen was drawn or excised, labelled Collection Date or Collected.",
}

// Describe returns the richest available description for a field: the
// curated note when one exists, otherwise the schema's own description.
func Describe(sch *schema.Schema, name string) string {
	if note, ok := fieldNotes[name]; ok {
		return note
	}
	if spec, ok := sch.Lookup(name); ok && spec.Description != "" {
		return spec.Description
	}
	return "No additional context is available for this field."
}
