package appointment

import "strings"

// Fields is a partial form submission keyed by the client field name.
type Fields map[string]string

type fieldSpec struct {
	Key      string
	Column   string // empty for fields that are checked but not stored
	Required bool
	get      func(p *Profile) *string
}

const confirmPassportKey = "confirmPassportNumber"

var fieldSpecs = []fieldSpec{
	{"firstName", "first_name", true, func(p *Profile) *string { return &p.FirstName }},
	{"lastName", "last_name", true, func(p *Profile) *string { return &p.LastName }},
	{"email", "email", true, func(p *Profile) *string { return &p.Email }},
	{"phone", "phone", true, func(p *Profile) *string { return &p.Phone }},
	{"dateOfBirth", "date_of_birth", true, func(p *Profile) *string { return &p.DateOfBirth }},
	{"gender", "gender", true, func(p *Profile) *string { return &p.Gender }},
	{"nationality", "nationality", true, func(p *Profile) *string { return &p.Nationality }},
	{"maritalStatus", "marital_status", true, func(p *Profile) *string { return &p.MaritalStatus }},
	{"nationalId", "national_id", false, func(p *Profile) *string { return &p.NationalID }},
	{"passportNumber", "passport_number", true, func(p *Profile) *string { return &p.PassportNumber }},
	{confirmPassportKey, "", true, nil},
	{"passportIssueDate", "passport_issue_date", true, func(p *Profile) *string { return &p.PassportIssueDate }},
	{"passportIssuePlace", "passport_issue_place", true, func(p *Profile) *string { return &p.PassportIssuePlace }},
	{"passportExpiryDate", "passport_expiry_date", true, func(p *Profile) *string { return &p.PassportExpiryDate }},
	{"visaType", "visa_type", true, func(p *Profile) *string { return &p.VisaType }},
	{"position", "position", true, func(p *Profile) *string { return &p.Position }},
	{"country", "country", true, func(p *Profile) *string { return &p.Country }},
	{"city", "city", true, func(p *Profile) *string { return &p.City }},
	{"travelCountry", "travel_country", false, func(p *Profile) *string { return &p.TravelCountry }},
	{"appointmentType", "appointment_type", true, func(p *Profile) *string { return &p.AppointmentType }},
	{"appointmentDate", "appointment_date", false, func(p *Profile) *string { return &p.AppointmentDate }},
	{"medicalCenter", "medical_center", false, func(p *Profile) *string { return &p.MedicalCenter }},
}

// storedSpecs are the specs backed by a column, in column order.
var storedSpecs = func() []fieldSpec {
	var out []fieldSpec
	for _, s := range fieldSpecs {
		if s.Column != "" {
			out = append(out, s)
		}
	}
	return out
}()

// RequiredFields lists the keys finalize insists on, in form order.
func RequiredFields() []string {
	var out []string
	for _, s := range fieldSpecs {
		if s.Required {
			out = append(out, s.Key)
		}
	}
	return out
}

// Clean trims values and drops blanks and unknown keys, so a partial save
// never overwrites stored data with an empty string.
func (f Fields) Clean() Fields {
	out := make(Fields, len(f))
	for _, s := range fieldSpecs {
		if v := strings.TrimSpace(f[s.Key]); v != "" {
			out[s.Key] = v
		}
	}
	return out
}

// Meaningful reports whether f carries enough to open a draft: a name, an
// email or an appointment type.
func (f Fields) Meaningful() bool {
	return f["firstName"] != "" || f["lastName"] != "" || f["email"] != "" || f["appointmentType"] != ""
}

// Missing returns the required keys absent from f.
func (f Fields) Missing() []string {
	var missing []string
	for _, s := range fieldSpecs {
		if s.Required && f[s.Key] == "" {
			missing = append(missing, s.Key)
		}
	}
	return missing
}

// ApplyTo copies the stored fields present in f onto p.
func (f Fields) ApplyTo(p *Profile) {
	for _, s := range storedSpecs {
		if v, ok := f[s.Key]; ok {
			*s.get(p) = v
		}
	}
}

// columnValues returns the column names and values for the stored fields in f.
func (f Fields) columnValues() ([]string, []any) {
	var cols []string
	var vals []any
	for _, s := range storedSpecs {
		if v, ok := f[s.Key]; ok {
			cols = append(cols, s.Column)
			vals = append(vals, v)
		}
	}
	return cols, vals
}

// FieldsOf renders a profile back into form fields, skipping blanks.
func FieldsOf(p Profile) Fields {
	out := Fields{}
	for _, s := range storedSpecs {
		if v := *s.get(&p); v != "" {
			out[s.Key] = v
		}
	}
	return out
}
