// Package visitor assembles the session metadata attached to every chat,
// form and voice request.
package visitor

import (
	"iris/internal/consent"
	"iris/internal/store"
)

// Profile is the metadata common to all outbound requests.
type Profile struct {
	UserID         string               `json:"user_id"`
	CookiesConsent *consent.Preferences `json:"cookies_consent"`
	UserAgent      string               `json:"user_agent"`
	Lang           string               `json:"lang"`
	ReferrerURL    string               `json:"referrer_url"`
}

// Source builds a fresh Profile per request so consent changes are picked up.
type Source struct {
	Store     *store.Store
	Consent   *consent.Manager
	UserAgent string
	// Locale is the browser-style locale tag ("es-ES"), not the UI language.
	Locale   string
	Referrer string
}

// Profile returns the current metadata, creating the user id if needed.
func (s *Source) Profile() (Profile, error) {
	id, err := s.Store.UserID()
	if err != nil {
		return Profile{}, err
	}
	locale := s.Locale
	if locale == "" {
		locale = "es"
	}
	return Profile{
		UserID:         id,
		CookiesConsent: s.Consent.Current(),
		UserAgent:      s.UserAgent,
		Lang:           locale,
		ReferrerURL:    s.Referrer,
	}, nil
}
