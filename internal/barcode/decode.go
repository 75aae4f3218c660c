package barcode

import "strings"

const (
	prescriptionTag   = "RX"
	fieldDelimiter    = "-"
	prescriptionField = 4
)

// Prescription is the payload carried by an RX-<number>-<license>-<date> token
type Prescription struct {
	Number        string `json:"prescription_number"`
	DoctorLicense string `json:"doctor_license"`
	Date          string `json:"date"`
}

// PrescriptionResult is either a matched Prescription or a non-match.
// A non-match is not an error: the token is simply not a prescription code.
type PrescriptionResult struct {
	Matched      bool
	Prescription Prescription
}

// DecodePrescription parses token as RX-<number>-<license>-<date>[-...].
// Field contents are not validated and trailing fields are ignored.
func DecodePrescription(token string) PrescriptionResult {
	fields := strings.Split(token, fieldDelimiter)
	if len(fields) < prescriptionField || fields[0] != prescriptionTag {
		return PrescriptionResult{}
	}
	return PrescriptionResult{
		Matched: true,
		Prescription: Prescription{
			Number:        fields[1],
			DoctorLicense: fields[2],
			Date:          fields[3],
		},
	}
}

// Decoded is the advisory interpretation of a captured token
type Decoded struct {
	Token        string        `json:"token"`
	Kind         Kind          `json:"kind"`
	Valid        bool          `json:"valid"`
	Prescription *Prescription `json:"prescription,omitempty"`
}

// Decode classifies token. Valid is true when the token has the shape of a
// minted identifier or decodes as a prescription.
func Decode(token string) Decoded {
	d := Decoded{Token: token, Kind: KindOf(token)}
	if res := DecodePrescription(token); res.Matched {
		p := res.Prescription
		d.Prescription = &p
		d.Kind = KindPrescription
	}
	d.Valid = d.Kind != KindUnknown
	return d
}
