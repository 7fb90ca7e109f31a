package customer

import "strings"

// CandidateKeys are the independent identifiers a Person may be known by.
// Each is unique within a tenant when present; none is required.
type CandidateKeys struct {
	SourceID   string
	ExternalID string
	Email      string
}

// Normalize trims all keys and lower-cases the email
func (k CandidateKeys) Normalize() CandidateKeys {
	return CandidateKeys{
		SourceID:   strings.TrimSpace(k.SourceID),
		ExternalID: strings.TrimSpace(k.ExternalID),
		Email:      NormalizeEmail(k.Email),
	}
}

// IsEmpty reports whether no key is present
func (k CandidateKeys) IsEmpty() bool {
	return k.SourceID == "" && k.ExternalID == "" && k.Email == ""
}

// NormalizeEmail trims and lower-cases an address; anything without an @ is dropped
func NormalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return ""
	}
	return email
}

// EmailDomain returns the part after the last @, or "" for an invalid address
func EmailDomain(email string) string {
	email = NormalizeEmail(email)
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return email[at+1:]
}

// freeMailDomains are never used to guess an organization
var freeMailDomains = map[string]struct{}{
	"gmail.com":      {},
	"googlemail.com": {},
	"yahoo.com":      {},
	"hotmail.com":    {},
	"outlook.com":    {},
	"live.com":       {},
	"icloud.com":     {},
	"me.com":         {},
	"aol.com":        {},
	"protonmail.com": {},
	"proton.me":      {},
	"gmx.com":        {},
	"yandex.com":     {},
	"qq.com":         {},
	"163.com":        {},
}

// IsFreeMailDomain reports whether the domain belongs to a public mail provider
func IsFreeMailDomain(domain string) bool {
	_, ok := freeMailDomains[strings.ToLower(domain)]
	return ok
}
