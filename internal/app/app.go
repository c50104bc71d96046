// Package app wires the widgets together in startup order: language, local
// state, blog, then everything that depends on them.
package app

import (
	"context"
	"fmt"
	"os"

	"iris/internal/blog"
	"iris/internal/chat"
	"iris/internal/config"
	"iris/internal/consent"
	"iris/internal/forms"
	"iris/internal/i18n"
	"iris/internal/nav"
	"iris/internal/store"
	"iris/internal/visitor"
	"iris/internal/webhook"

	"github.com/sirupsen/logrus"
)

const httpPoolSize = 4

// StartupError names the stage that failed. The CLI shows it in the
// diagnostic panel.
type StartupError struct {
	Stage string
	Err   error
}

func (e *StartupError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StartupError) Unwrap() error { return e.Err }

// Options controls optional startup work.
type Options struct {
	// LoadBlog fetches the post list during startup.
	LoadBlog bool
	// Getenv is used for locale detection; defaults to os.Getenv.
	Getenv func(string) string
	// OnView receives every view the router resolves.
	OnView func(nav.View)
}

// App holds the initialized widgets.
type App struct {
	Config  *config.Config
	Logger  *logrus.Logger
	I18n    *i18n.Store
	Store   *store.Store
	Consent *consent.Manager
	Visitor *visitor.Source
	Blog    *blog.Blog
	Router  *nav.Router
	Chat    *chat.Widget
	Forms   *forms.Submitter

	unsubscribe []func()
}

// New initializes every widget. A blog load failure is logged and leaves
// the blog empty; every other failure aborts startup.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger, opts Options) (*App, error) {
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	a := &App{Config: cfg, Logger: logger}

	tr, err := i18n.New(cfg.Site.Lang)
	if err != nil {
		return nil, &StartupError{Stage: "language", Err: err}
	}
	a.I18n = tr

	if err := config.MustStatePaths(cfg); err != nil {
		return nil, &StartupError{Stage: "state", Err: err}
	}
	st, err := store.Open(cfg.Paths.StatePath)
	if err != nil {
		return nil, &StartupError{Stage: "state", Err: err}
	}
	a.Store = st
	var saved string
	if ok, err := st.Get(store.KeyLang, &saved); err != nil {
		logger.WithError(err).Warn("ignoring stored language")
	} else if ok {
		if err := tr.Set(saved); err != nil {
			logger.WithError(err).Warn("ignoring stored language")
		}
	}
	a.subscribe(func(lang string) {
		if err := st.Set(store.KeyLang, lang); err != nil {
			logger.WithError(err).Warn("persist language")
		}
	})

	a.Consent = consent.NewManager(st)
	locale := cfg.Site.Locale
	if locale == "" {
		locale = i18n.DetectLocale(opts.Getenv)
	}
	a.Visitor = &visitor.Source{
		Store:     st,
		Consent:   a.Consent,
		UserAgent: cfg.Voice.UserAgent,
		Locale:    locale,
		Referrer:  cfg.Site.BaseURL,
	}

	src, err := blog.Source(cfg.Site.BaseURL, cfg.Site.BlogPath)
	if err != nil {
		return nil, &StartupError{Stage: "blog", Err: err}
	}
	a.Blog = blog.New(src, webhook.NewPooledHTTPClient(httpPoolSize, config.Seconds(cfg.Forms.TimeoutSec)), logger)
	if opts.LoadBlog {
		if err := a.Blog.Load(ctx); err != nil {
			logger.WithError(err).Warn(tr.T("post.load-error"))
		}
	}
	a.Router = nav.New(a.Blog, opts.OnView, logger)
	a.subscribe(a.Router.LanguageChanged)

	chatTimeout := config.Seconds(cfg.Chat.TimeoutSec)
	chatClient := webhook.New(cfg.Chat.WebhookURL,
		webhook.WithSecret(cfg.Chat.Secret),
		webhook.WithHTTPClient(webhook.NewPooledHTTPClient(httpPoolSize, chatTimeout)))
	a.Chat = chat.New(chatClient, a.Visitor, tr, logger, chat.WithTimeout(chatTimeout))
	a.subscribe(a.Chat.LanguageChanged)

	formsTimeout := config.Seconds(cfg.Forms.TimeoutSec)
	formsClient := webhook.New(cfg.Forms.WebhookURL,
		webhook.WithHTTPClient(webhook.NewPooledHTTPClient(httpPoolSize, formsTimeout)))
	a.Forms = forms.New(formsClient, a.Visitor, logger, forms.Options{
		Timeout:            formsTimeout,
		ContactCooldown:    config.Seconds(cfg.Forms.ContactCooldownSec),
		NewsletterCooldown: config.Seconds(cfg.Forms.NewsletterCooldown),
		History:            a.Store,
	})

	logger.WithFields(logrus.Fields{
		"lang":   tr.Lang(),
		"locale": locale,
		"posts":  len(a.Blog.All()),
	}).Debug("app initialized")
	return a, nil
}

func (a *App) subscribe(fn func(string)) {
	a.unsubscribe = append(a.unsubscribe, a.I18n.Subscribe(fn))
}

// Close drops language subscriptions.
func (a *App) Close() {
	for _, fn := range a.unsubscribe {
		fn()
	}
	a.unsubscribe = nil
}
