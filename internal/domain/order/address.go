package order

import "strings"

// Address is a billing or shipping address.
type Address struct {
	FirstName   string
	LastName    string
	Address1    string
	Address2    string
	City        string
	Zipcode     string
	Phone       string
	StateName   string
	CountryCode string
}

// MissingFields returns the names of required fields that are blank.
func (a Address) MissingFields() []string {
	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"firstname", a.FirstName},
		{"lastname", a.LastName},
		{"address1", a.Address1},
		{"city", a.City},
		{"zipcode", a.Zipcode},
		{"phone", a.Phone},
		{"country", a.CountryCode},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}
