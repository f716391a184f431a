package order

import "strings"

// Validate returns a *BillingFieldError for the first blank field.
func (b Billing) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"fullName", b.FullName},
		{"phone", b.Phone},
		{"email", b.Email},
		{"fullAddress", b.Address},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return &BillingFieldError{Field: f.name}
		}
	}
	return nil
}
