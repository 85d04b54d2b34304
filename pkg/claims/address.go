package claims

import "strings"

// Address is the OIDC address claim
type Address struct {
	Formatted     string `json:"formatted,omitempty"`
	StreetAddress string `json:"street_address,omitempty"`
	Locality      string `json:"locality,omitempty"`
	Region        string `json:"region,omitempty"`
	PostalCode    string `json:"postal_code,omitempty"`
	Country       string `json:"country,omitempty"`
}

// FormatAddress renders "street locality, region country postal" with all
// whitespace runs collapsed to single spaces.
func FormatAddress(street, locality, region, country, postalCode string) string {
	raw := street + "\n" + locality + ", " + region + "\n" + country + "\n" + postalCode
	return strings.Join(strings.Fields(raw), " ")
}
