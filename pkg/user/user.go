package user

import (
	"slices"
	"time"

	"github.com/jinzhu/copier"
	"github.com/tendant/ezlogin/pkg/claims"
)

// User is an end user of the provider. Clients lists the OIDC client ids
// the user has signed in to.
type User struct {
	ID                  string
	Email               string
	PasswordHash        string
	EmailVerified       bool
	Name                string
	GivenName           string
	FamilyName          string
	MiddleName          string
	Nickname            string
	PreferredUsername   string
	Profile             string
	Picture             string
	Website             string
	Gender              string
	Birthdate           string
	Locale              string
	Zoneinfo            string
	PhoneNumber         string
	PhoneNumberVerified bool
	Address             *Address
	Clients             []string
	CreatedAt           time.Time
	UpdatedAt           *time.Time
}

// Address is a postal address attached to a user
type Address struct {
	StreetAddress string
	Locality      string
	Region        string
	PostalCode    string
	Country       string
}

// Formatted renders the address on a single line
func (a Address) Formatted() string {
	return claims.FormatAddress(a.StreetAddress, a.Locality, a.Region, a.Country, a.PostalCode)
}

// Claim converts the address to its OIDC claim form
func (a Address) Claim() *claims.Address {
	return &claims.Address{
		Formatted:     a.Formatted(),
		StreetAddress: a.StreetAddress,
		Locality:      a.Locality,
		Region:        a.Region,
		PostalCode:    a.PostalCode,
		Country:       a.Country,
	}
}

// HasClient reports whether the user is linked to clientID
func (u *User) HasClient(clientID string) bool {
	return slices.Contains(u.Clients, clientID)
}

// Clone returns a deep copy so stores never share mutable state with callers
func (u *User) Clone() *User {
	c := *u
	c.Clients = slices.Clone(u.Clients)
	if u.Address != nil {
		addr := *u.Address
		c.Address = &addr
	}
	if u.UpdatedAt != nil {
		updated := *u.UpdatedAt
		c.UpdatedAt = &updated
	}
	return &c
}

// PublicUser is the user representation returned over the API
type PublicUser struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	EmailVerified     bool      `json:"email_verified"`
	Name              string    `json:"name,omitempty"`
	GivenName         string    `json:"given_name,omitempty"`
	FamilyName        string    `json:"family_name,omitempty"`
	PreferredUsername string    `json:"preferred_username,omitempty"`
	Locale            string    `json:"locale,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// ToPublic strips credentials and relations from u
func ToPublic(u *User) PublicUser {
	var public PublicUser
	copier.Copy(&public, u)
	return public
}

// Claims maps the user onto the ID token claim schema. Token-level claims
// such as aud, iss and exp are left for the issuer to fill.
func (u *User) Claims() claims.IDTokenClaims {
	emailVerified := u.EmailVerified
	phoneVerified := u.PhoneNumberVerified
	created := u.CreatedAt.Unix()

	c := claims.IDTokenClaims{
		Subject:           u.ID,
		CreatedAt:         &created,
		Name:              u.Name,
		GivenName:         u.GivenName,
		FamilyName:        u.FamilyName,
		MiddleName:        u.MiddleName,
		Nickname:          u.Nickname,
		PreferredUsername: u.PreferredUsername,
		Profile:           u.Profile,
		Picture:           u.Picture,
		Website:           u.Website,
		Gender:            u.Gender,
		Birthdate:         u.Birthdate,
		Locale:            u.Locale,
		Zoneinfo:          u.Zoneinfo,
		Email:             u.Email,
		EmailVerified:     &emailVerified,
	}
	if u.PhoneNumber != "" {
		c.PhoneNumber = u.PhoneNumber
		c.PhoneNumberVerified = &phoneVerified
	}
	if u.UpdatedAt != nil {
		updated := u.UpdatedAt.Unix()
		c.UpdatedAt = &updated
	}
	if u.Address != nil {
		c.Address = u.Address.Claim()
	}
	return c
}
