// Package nav maps URL fragments to site sections and blog posts.
package nav

import (
	"errors"
	"net/url"
	"strings"
	"sync"

	"iris/internal/blog"

	"github.com/sirupsen/logrus"
)

const (
	SectionHome       = "home"
	SectionBlog       = "blog"
	SectionPostDetail = "post-detail"

	postPrefix = "#post?"
)

// Sections are the fragment targets the site renders.
var Sections = []string{
	SectionHome, "services", "solutions", "about", SectionBlog, "contact", "privacy", SectionPostDetail,
}

var ErrUnknownSection = errors.New("nav: unknown section")

// Posts is the blog lookup the router needs.
type Posts interface {
	Loaded() bool
	ByID(id string) (blog.Post, error)
}

// View is the resolved target of a fragment.
type View struct {
	Section string
	PostID  string
	Post    *blog.Post
	// NotFound is set for post fragments whose id is unknown.
	NotFound bool
}

// Router resolves fragments and re-renders the open post on language change.
type Router struct {
	posts  Posts
	render func(View)
	logger *logrus.Logger

	mu      sync.Mutex
	current View
}

// New creates a Router. render is called with every resolved view and may
// be nil.
func New(posts Posts, render func(View), logger *logrus.Logger) *Router {
	if render == nil {
		render = func(View) {}
	}
	return &Router{posts: posts, render: render, logger: logger, current: View{Section: SectionHome}}
}

// Resolve maps a fragment to a view without changing router state.
func (r *Router) Resolve(fragment string) (View, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" || fragment == "#" {
		return View{Section: SectionHome}, nil
	}
	if !strings.HasPrefix(fragment, "#") {
		fragment = "#" + fragment
	}

	if strings.HasPrefix(fragment, postPrefix) {
		q, err := url.ParseQuery(fragment[len(postPrefix):])
		id := q.Get("id")
		if err != nil || id == "" {
			return View{Section: SectionBlog}, nil
		}
		return r.resolvePost(id), nil
	}

	section := fragment[1:]
	for _, s := range Sections {
		if s == section {
			return View{Section: s}, nil
		}
	}
	return View{}, ErrUnknownSection
}

func (r *Router) resolvePost(id string) View {
	v := View{Section: SectionPostDetail, PostID: id}
	if !r.posts.Loaded() {
		r.logger.WithField("post", id).Warn("blog posts not loaded yet")
		v.NotFound = true
		return v
	}
	p, err := r.posts.ByID(id)
	if err != nil {
		v.NotFound = true
		return v
	}
	v.Post = &p
	return v
}

// Navigate resolves fragment, makes it current and renders it.
func (r *Router) Navigate(fragment string) (View, error) {
	v, err := r.Resolve(fragment)
	if err != nil {
		return View{}, err
	}
	r.mu.Lock()
	r.current = v
	r.mu.Unlock()
	r.render(v)
	return v, nil
}

// Current returns the view last navigated to.
func (r *Router) Current() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// LanguageChanged re-renders the current post, if one is shown.
func (r *Router) LanguageChanged(string) {
	r.mu.Lock()
	v := r.current
	r.mu.Unlock()
	if v.Section != SectionPostDetail || v.PostID == "" {
		return
	}
	r.render(r.resolvePost(v.PostID))
}
