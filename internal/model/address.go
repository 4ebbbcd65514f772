package model

import (
	"regexp"
	"strings"
)

// Postal codes are exactly six digits.
var rePostalCode = regexp.MustCompile(`^[0-9]{6}$`)

// Address is a shipping address. Landmark and Remark are optional.
type Address struct {
	FullName   string `json:"fullName"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Landmark   string `json:"landmark,omitempty"`
	Remark     string `json:"remark,omitempty"`
}

// Validate checks required fields and the postal code format.
// Returns nil or a VALIDATION_ERROR carrying one message per bad field.
func (a Address) Validate() *APIError {
	fields := map[string]string{}
	required := []struct {
		name, value string
	}{
		{"fullName", a.FullName},
		{"phone", a.Phone},
		{"line1", a.Line1},
		{"line2", a.Line2},
		{"city", a.City},
		{"state", a.State},
		{"postalCode", a.PostalCode},
		{"country", a.Country},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			fields[f.name] = "is required"
		}
	}
	if _, missing := fields["postalCode"]; !missing && !rePostalCode.MatchString(strings.TrimSpace(a.PostalCode)) {
		fields["postalCode"] = "must be 6 digits"
	}
	return NewFieldErrors(fields)
}
