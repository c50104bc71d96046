package i18n

import (
	"errors"
	"testing"
)

func TestEmbeddedCatalogsShareKeys(t *testing.T) {
	catalogs, err := LoadCatalogs()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	es, en := catalogs["es"], catalogs["en"]
	if len(es) == 0 || len(en) == 0 {
		t.Fatalf("expected es and en catalogs, got %v", len(catalogs))
	}
	for k := range es {
		if _, ok := en[k]; !ok {
			t.Fatalf("key %q missing from en catalog", k)
		}
	}
}

func TestLookupFallsBack(t *testing.T) {
	s, err := NewWithCatalogs("en", map[string]map[string]string{
		"es": {"a": "uno", "b": "dos"},
		"en": {"a": "one"},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := s.T("a"); got != "one" {
		t.Fatalf("T(a)=%q", got)
	}
	if got := s.T("b"); got != "dos" {
		t.Fatalf("expected fallback to es, got %q", got)
	}
	if got := s.T("missing.key"); got != "missing.key" {
		t.Fatalf("expected key echo, got %q", got)
	}
}

func TestUnknownInitialLangUsesFallback(t *testing.T) {
	s, err := New("fr")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Lang() != FallbackLang {
		t.Fatalf("lang=%q", s.Lang())
	}
}

func TestSetBroadcastsOnlyOnChange(t *testing.T) {
	s, err := New("es")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var got []string
	unsub := s.Subscribe(func(lang string) { got = append(got, lang) })

	if err := s.Set("EN"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set("en"); err != nil {
		t.Fatalf("set same: %v", err)
	}
	unsub()
	if err := s.Set("es"); err != nil {
		t.Fatalf("set es: %v", err)
	}
	if len(got) != 1 || got[0] != "en" {
		t.Fatalf("unexpected notifications: %v", got)
	}
	if err := s.Set("de"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestDetectLocale(t *testing.T) {
	env := map[string]string{"LANG": "es_ES.UTF-8"}
	if got := DetectLocale(func(k string) string { return env[k] }); got != "es-ES" {
		t.Fatalf("DetectLocale=%q", got)
	}
	env = map[string]string{"LC_ALL": "C", "LANG": "en_GB.UTF-8"}
	if got := DetectLocale(func(k string) string { return env[k] }); got != "en-GB" {
		t.Fatalf("DetectLocale=%q", got)
	}
	if got := DetectLocale(func(string) string { return "" }); got != "es" {
		t.Fatalf("DetectLocale default=%q", got)
	}
}

func TestMatchLang(t *testing.T) {
	cases := map[string]string{
		"en-US": "en",
		"es-MX": "es",
		"xx":    "es",
	}
	for in, want := range cases {
		if got := MatchLang(in); got != want {
			t.Fatalf("MatchLang(%q)=%q want %q", in, got, want)
		}
	}
}
