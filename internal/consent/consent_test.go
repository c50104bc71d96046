package consent

import (
	"path/filepath"
	"testing"

	"iris/internal/store"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return NewManager(s)
}

func TestRejectAllRecord(t *testing.T) {
	want := Preferences{Necessary: true}
	if got := RejectAll(); got != want {
		t.Fatalf("RejectAll()=%+v", got)
	}
}

func TestPresets(t *testing.T) {
	if p := AcceptAll(); !p.Necessary || !p.Performance || !p.Functional || !p.Targeting || p.Newsletter {
		t.Fatalf("AcceptAll()=%+v", p)
	}
	if p := AcceptAllFromModal(true); !p.Newsletter || !p.Targeting {
		t.Fatalf("AcceptAllFromModal(true)=%+v", p)
	}
	p := Custom(true, false, true, false)
	want := Preferences{Necessary: true, Performance: true, Targeting: true}
	if p != want {
		t.Fatalf("Custom()=%+v", p)
	}
}

func TestBannerGatedOnStoredRecord(t *testing.T) {
	m := newManager(t)
	if !m.BannerVisible() {
		t.Fatalf("banner should show before any choice")
	}
	if m.Current() != nil {
		t.Fatalf("no record expected")
	}
	if err := m.Save(RejectAll()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if m.BannerVisible() {
		t.Fatalf("banner should hide once a record exists")
	}
	if err := m.Save(AcceptAll()); err != nil {
		t.Fatalf("save: %v", err)
	}
	cur := m.Current()
	if cur == nil || *cur != AcceptAll() {
		t.Fatalf("record not overwritten: %+v", cur)
	}
}
