// Package consent stores the visitor's cookie preferences.
package consent

import (
	"iris/internal/store"
)

// Preferences is the complete cookie preference record. It is always saved
// wholesale.
type Preferences struct {
	Necessary   bool `json:"necessary"`
	Performance bool `json:"performance"`
	Functional  bool `json:"functional"`
	Targeting   bool `json:"targeting"`
	Newsletter  bool `json:"newsletter"`
}

// AcceptAll is the banner's accept button. The newsletter stays opt-in.
func AcceptAll() Preferences {
	return Preferences{Necessary: true, Performance: true, Functional: true, Targeting: true}
}

// RejectAll keeps only strictly necessary cookies.
func RejectAll() Preferences {
	return Preferences{Necessary: true}
}

// AcceptAllFromModal is the preference center's accept button, which honors
// the newsletter checkbox.
func AcceptAllFromModal(newsletter bool) Preferences {
	p := AcceptAll()
	p.Newsletter = newsletter
	return p
}

// Custom builds the record from the preference center toggles.
func Custom(performance, functional, targeting, newsletter bool) Preferences {
	return Preferences{
		Necessary:   true,
		Performance: performance,
		Functional:  functional,
		Targeting:   targeting,
		Newsletter:  newsletter,
	}
}

// Manager reads and writes the preference record.
type Manager struct {
	store *store.Store
}

func NewManager(s *store.Store) *Manager {
	return &Manager{store: s}
}

// Save overwrites the stored record.
func (m *Manager) Save(p Preferences) error {
	return m.store.Set(store.KeyCookiePreferences, p)
}

// Current returns the stored record, or nil when none exists or it cannot be
// parsed.
func (m *Manager) Current() *Preferences {
	var p Preferences
	ok, err := m.store.Get(store.KeyCookiePreferences, &p)
	if !ok || err != nil {
		return nil
	}
	return &p
}

// BannerVisible reports whether the consent banner should be shown: only
// when no record has ever been stored.
func (m *Manager) BannerVisible() bool {
	return !m.store.Has(store.KeyCookiePreferences)
}
