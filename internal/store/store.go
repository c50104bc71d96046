// Package store persists the small amount of visitor state the site keeps
// locally: the caller identity, cookie preferences and the chosen language.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Keys mirror the names used by the site's local storage.
const (
	KeyUserID            = "user_id"
	KeyCookiePreferences = "cookie_preferences"
	KeyLang              = "lang"
	KeyFormSubmits       = "form_submits"
)

// Store is a JSON-file backed key/value map. Values are raw JSON so callers
// own their record shapes.
type Store struct {
	path string

	mu     sync.Mutex
	values map[string]jsoniter.RawMessage
}

// Open loads path, treating a missing file as empty.
func Open(path string) (*Store, error) {
	s := &Store{path: path, values: map[string]jsoniter.RawMessage{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("parse state %s: %w", path, err)
	}
	return s, nil
}

// Has reports whether key holds a value.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.values[key]
	return ok
}

// Get decodes key into v. It returns false when the key is absent.
func (s *Store) Get(key string, v any) (bool, error) {
	s.mu.Lock()
	raw, ok := s.values[key]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Set replaces key wholesale and flushes to disk.
func (s *Store) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.values[key]
	s.values[key] = raw
	if err := s.flushLocked(); err != nil {
		s.restoreLocked(key, prev, had)
		return err
	}
	return nil
}

// Delete removes key and flushes to disk.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.values[key]
	if !had {
		return nil
	}
	delete(s.values, key)
	if err := s.flushLocked(); err != nil {
		s.restoreLocked(key, prev, had)
		return err
	}
	return nil
}

// restoreLocked puts key back the way it was before a failed flush so memory
// never claims a value the file does not hold.
func (s *Store) restoreLocked(key string, prev jsoniter.RawMessage, had bool) {
	if had {
		s.values[key] = prev
		return
	}
	delete(s.values, key)
}

// UserID returns the persisted caller identity, creating it on first use.
func (s *Store) UserID() (string, error) {
	var id string
	if ok, err := s.Get(KeyUserID, &id); err == nil && ok && id != "" {
		return id, nil
	}
	id = uuid.NewString()
	if err := s.Set(KeyUserID, id); err != nil {
		return "", err
	}
	return id, nil
}

// LastSubmit returns when form last went through.
func (s *Store) LastSubmit(form string) (time.Time, bool) {
	var submits map[string]time.Time
	if ok, err := s.Get(KeyFormSubmits, &submits); err != nil || !ok {
		return time.Time{}, false
	}
	at, ok := submits[form]
	return at, ok
}

// RecordSubmit stores at as the last successful submission of form.
func (s *Store) RecordSubmit(form string, at time.Time) error {
	submits := map[string]time.Time{}
	if _, err := s.Get(KeyFormSubmits, &submits); err != nil {
		submits = map[string]time.Time{}
	}
	submits[form] = at.UTC()
	return s.Set(KeyFormSubmits, submits)
}

func (s *Store) flushLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	out, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
