// Package i18n holds the translation catalogs and the current-language value
// every widget reads from.
package i18n

import (
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// FallbackLang is consulted when a key is missing in the current language.
const FallbackLang = "es"

// ErrUnsupported is returned by Set for languages without a catalog.
var ErrUnsupported = errors.New("unsupported language")

//go:embed catalogs/*.toml
var catalogFS embed.FS

// LoadCatalogs parses the embedded catalogs keyed by language code.
func LoadCatalogs() (map[string]map[string]string, error) {
	entries, err := catalogFS.ReadDir("catalogs")
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]string, len(entries))
	for _, e := range entries {
		data, err := catalogFS.ReadFile(path.Join("catalogs", e.Name()))
		if err != nil {
			return nil, err
		}
		table := map[string]string{}
		if err := toml.Unmarshal(data, &table); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", e.Name(), err)
		}
		out[strings.TrimSuffix(e.Name(), ".toml")] = table
	}
	return out, nil
}

// Store is the single current-language value plus translation lookup.
// Set broadcasts to subscribers; everything else is read-only.
type Store struct {
	mu       sync.RWMutex
	lang     string
	catalogs map[string]map[string]string

	subsMu sync.Mutex
	subs   map[int]func(lang string)
	nextID int
}

// New returns a Store using the embedded catalogs. An unknown lang falls
// back to FallbackLang.
func New(lang string) (*Store, error) {
	catalogs, err := LoadCatalogs()
	if err != nil {
		return nil, err
	}
	return NewWithCatalogs(lang, catalogs)
}

// NewWithCatalogs builds a Store over caller-supplied catalogs.
func NewWithCatalogs(lang string, catalogs map[string]map[string]string) (*Store, error) {
	if len(catalogs) == 0 {
		return nil, errors.New("i18n: no catalogs")
	}
	s := &Store{
		catalogs: catalogs,
		subs:     map[int]func(string){},
	}
	lang = strings.ToLower(strings.TrimSpace(lang))
	if _, ok := catalogs[lang]; !ok {
		lang = FallbackLang
	}
	s.lang = lang
	return s, nil
}

// Lang returns the current language code.
func (s *Store) Lang() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lang
}

// Languages lists the available language codes, sorted.
func (s *Store) Languages() []string {
	out := make([]string, 0, len(s.catalogs))
	for l := range s.catalogs {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// T translates key in the current language, then FallbackLang, then returns
// the key itself.
func (s *Store) T(key string) string {
	return s.Lookup(s.Lang(), key)
}

// Lookup translates key in an explicit language.
func (s *Store) Lookup(lang, key string) string {
	if v, ok := s.catalogs[lang][key]; ok {
		return v
	}
	if v, ok := s.catalogs[FallbackLang][key]; ok {
		return v
	}
	return key
}

// Set switches the current language and notifies subscribers when it changed.
func (s *Store) Set(lang string) error {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if _, ok := s.catalogs[lang]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupported, lang)
	}
	s.mu.Lock()
	changed := s.lang != lang
	s.lang = lang
	s.mu.Unlock()
	if !changed {
		return nil
	}

	s.subsMu.Lock()
	subs := make([]func(string), 0, len(s.subs))
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		subs = append(subs, s.subs[id])
	}
	s.subsMu.Unlock()

	for _, fn := range subs {
		fn(lang)
	}
	return nil
}

// Subscribe registers fn for language changes, in registration order.
// The returned func removes the subscription.
func (s *Store) Subscribe(fn func(lang string)) func() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}
