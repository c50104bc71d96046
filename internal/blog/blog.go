// Package blog loads the site's post list and exposes read accessors for
// the reader and the router.
package blog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ID is a post identifier. The JSON document uses numbers but links carry
// strings, so both forms are accepted and compared as strings.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n jsoniter.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("post id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Post is one entry of blog-posts.json.
type Post struct {
	ID                ID     `json:"id"`
	Date              string `json:"date"`
	Category          string `json:"category"`
	CategoryDisplayEs string `json:"categoryDisplayEs"`
	CategoryDisplayEn string `json:"categoryDisplayEn"`
	TitleEs           string `json:"titleEs"`
	TitleEn           string `json:"titleEn"`
	DescriptionEs     string `json:"descriptionEs"`
	DescriptionEn     string `json:"descriptionEn"`
	ContentMarkdownEs string `json:"contentMarkdownEs"`
	ContentMarkdownEn string `json:"contentMarkdownEn"`
	ImagePath         string `json:"imagePath"`
	AuthorEs          string `json:"authorEs"`
	AuthorEn          string `json:"authorEn"`
}

func pick(lang, es, en string) string {
	if lang == "es" {
		return es
	}
	return en
}

func (p Post) Title(lang string) string       { return pick(lang, p.TitleEs, p.TitleEn) }
func (p Post) Description(lang string) string { return pick(lang, p.DescriptionEs, p.DescriptionEn) }
func (p Post) Content(lang string) string     { return pick(lang, p.ContentMarkdownEs, p.ContentMarkdownEn) }
func (p Post) Author(lang string) string      { return pick(lang, p.AuthorEs, p.AuthorEn) }

func (p Post) CategoryDisplay(lang string) string {
	return pick(lang, p.CategoryDisplayEs, p.CategoryDisplayEn)
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// Time parses Date. Unparseable dates sort last.
func (p Post) Time() time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(p.Date)); err == nil {
			return t
		}
	}
	return time.Time{}
}

// SortByDate orders posts newest first.
func SortByDate(posts []Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].Time().After(posts[j].Time())
	})
}

// Blog holds the loaded post list.
type Blog struct {
	source string
	client *http.Client
	logger *logrus.Logger

	mu    sync.RWMutex
	posts []Post
}

// New creates a Blog reading from source, either an http(s) URL or a file
// path (optionally prefixed with file://).
func New(source string, client *http.Client, logger *logrus.Logger) *Blog {
	if client == nil {
		client = http.DefaultClient
	}
	return &Blog{source: source, client: client, logger: logger}
}

// Source resolves the configured blog path against the site base URL.
// Without a base URL, or for file:// paths, the path is used as a file.
func Source(baseURL, path string) (string, error) {
	if strings.HasPrefix(path, "file://") || baseURL == "" {
		return path, nil
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse blog path: %w", err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	return base.ResolveReference(ref).String(), nil
}

// Load fetches and sorts the posts. Once posts are loaded it is a no-op.
func (b *Blog) Load(ctx context.Context) error {
	b.mu.RLock()
	loaded := len(b.posts) > 0
	b.mu.RUnlock()
	if loaded {
		return nil
	}

	raw, err := b.read(ctx)
	if err != nil {
		return fmt.Errorf("load blog posts: %w", err)
	}
	var posts []Post
	if err := json.Unmarshal(raw, &posts); err != nil {
		return fmt.Errorf("decode blog posts: %w", err)
	}
	SortByDate(posts)

	b.mu.Lock()
	if len(b.posts) == 0 {
		b.posts = posts
	}
	b.mu.Unlock()
	b.logger.WithField("posts", len(posts)).Debug("blog loaded")
	return nil
}

func (b *Blog) read(ctx context.Context) ([]byte, error) {
	if !strings.HasPrefix(b.source, "http://") && !strings.HasPrefix(b.source, "https://") {
		return os.ReadFile(strings.TrimPrefix(b.source, "file://"))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.source, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Loaded reports whether posts are available.
func (b *Blog) Loaded() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.posts) > 0
}

// All returns the posts newest first.
func (b *Blog) All() []Post {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Post, len(b.posts))
	copy(out, b.posts)
	return out
}

// ErrNotFound is returned by ByID for unknown posts.
var ErrNotFound = errors.New("blog: post not found")

// ByID finds a post by id.
func (b *Blog) ByID(id string) (Post, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, p := range b.posts {
		if string(p.ID) == id {
			return p, nil
		}
	}
	return Post{}, ErrNotFound
}

// Filter returns the posts whose displayed category in lang equals
// category. When category equals allLabel (the translated "All") every
// post is returned.
func (b *Blog) Filter(category, lang, allLabel string) []Post {
	if category == allLabel {
		return b.All()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Post
	for _, p := range b.posts {
		if p.CategoryDisplay(lang) == category {
			out = append(out, p)
		}
	}
	return out
}

// Categories lists the distinct displayed categories in lang, in post order.
func (b *Blog) Categories(lang string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	seen := map[string]bool{}
	var out []string
	for _, p := range b.posts {
		c := p.CategoryDisplay(lang)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
