// Package forms submits the contact and newsletter forms to the forms
// webhook.
package forms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"iris/internal/consent"
	"iris/internal/metrics"
	"iris/internal/visitor"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultUTMSource is attached to newsletter sign-ups without a campaign.
const DefaultUTMSource = "landing_page"

// ErrTooSoon is returned when a form is resubmitted inside its cooldown.
var ErrTooSoon = errors.New("forms: resubmitted too soon")

// Poster sends a JSON payload to the webhook.
type Poster interface {
	Post(ctx context.Context, payload, out any) error
}

// ProfileSource supplies per-request visitor metadata.
type ProfileSource interface {
	Profile() (visitor.Profile, error)
}

// Contact is the contact form as filled in by the visitor.
type Contact struct {
	Name       string `validate:"max=200"`
	Email      string `validate:"omitempty,email"`
	Phone      string `validate:"max=40"`
	Message    string `validate:"max=5000"`
	Newsletter bool
	UTMSource  string
	// BotField is the hidden honeypot input.
	BotField string
}

// Newsletter is the footer sign-up form.
type Newsletter struct {
	Email      string `validate:"required,email"`
	Newsletter bool
	UTMSource  string
	BotField   string
}

type contactPayload struct {
	Origin            string               `json:"origin"`
	Channel           string               `json:"channel"`
	UserID            string               `json:"user_id"`
	FullName          *string              `json:"full_name"`
	Name              *string              `json:"name"`
	LastName          *string              `json:"last_name"`
	Email             *string              `json:"email"`
	Phone             *string              `json:"phone"`
	Message           *string              `json:"message"`
	NewsletterConsent bool                 `json:"newsletter_consent"`
	CookiesConsent    *consent.Preferences `json:"cookies_consent"`
	ReferrerURL       string               `json:"referrer_url"`
	UTMSource         *string              `json:"utm_source"`
}

type newsletterPayload struct {
	Origin            string               `json:"origin"`
	Email             string               `json:"email"`
	NewsletterConsent bool                 `json:"newsletter_consent"`
	CookiesConsent    *consent.Preferences `json:"cookies_consent"`
	UserID            string               `json:"user_id"`
	UTMSource         string               `json:"utm_source"`
	ReferrerURL       string               `json:"referrer_url"`
}

// History remembers when each form last went through so the cooldown
// outlives the process.
type History interface {
	LastSubmit(form string) (time.Time, bool)
	RecordSubmit(form string, at time.Time) error
}

// Submitter owns both forms.
type Submitter struct {
	poster   Poster
	profiles ProfileSource
	validate *validator.Validate
	logger   *logrus.Logger
	timeout  time.Duration
	history  History

	contactLimit    *rate.Limiter
	newsletterLimit *rate.Limiter
}

// Options tunes timeouts and resubmission cooldowns. Zero values disable
// the respective limit. A nil History keeps cooldowns in memory only.
type Options struct {
	Timeout            time.Duration
	ContactCooldown    time.Duration
	NewsletterCooldown time.Duration
	History            History
}

func New(poster Poster, profiles ProfileSource, logger *logrus.Logger, opts Options) *Submitter {
	s := &Submitter{
		poster:   poster,
		profiles: profiles,
		validate: validator.New(),
		logger:   logger,
		timeout:  opts.Timeout,
		history:  opts.History,
	}
	s.contactLimit = s.newLimiter("contact", opts.ContactCooldown)
	s.newsletterLimit = s.newLimiter("newsletter", opts.NewsletterCooldown)
	return s
}

// newLimiter returns nil when the cooldown is disabled. A recorded success
// spends the single token at that moment so the refill resumes from there.
func (s *Submitter) newLimiter(form string, every time.Duration) *rate.Limiter {
	if every <= 0 {
		return nil
	}
	l := rate.NewLimiter(rate.Every(every), 1)
	if s.history != nil {
		if at, ok := s.history.LastSubmit(form); ok {
			l.AllowN(at, 1)
		}
	}
	return l
}

func coolingDown(l *rate.Limiter) bool {
	return l != nil && l.TokensAt(time.Now()) < 1
}

// SubmitContact validates and sends the contact form. A filled honeypot is
// reported as success without sending anything.
func (s *Submitter) SubmitContact(ctx context.Context, c Contact) error {
	if c.BotField != "" {
		s.logger.Warn("contact form blocked by honeypot")
		metrics.FormSubmissions.WithLabelValues("contact", "honeypot").Inc()
		return nil
	}
	if err := s.validate.Struct(c); err != nil {
		metrics.FormSubmissions.WithLabelValues("contact", "invalid").Inc()
		return fmt.Errorf("invalid contact form: %w", err)
	}
	if coolingDown(s.contactLimit) {
		return ErrTooSoon
	}
	profile, err := s.profiles.Profile()
	if err != nil {
		return err
	}

	full := strings.TrimSpace(c.Name)
	first, last, _ := strings.Cut(full, " ")
	payload := contactPayload{
		Origin:            "contact_form",
		Channel:           "web",
		UserID:            profile.UserID,
		FullName:          optional(full),
		Name:              optional(first),
		LastName:          optional(strings.TrimSpace(last)),
		Email:             optional(c.Email),
		Phone:             optional(c.Phone),
		Message:           optional(c.Message),
		NewsletterConsent: c.Newsletter,
		CookiesConsent:    profile.CookiesConsent,
		ReferrerURL:       profile.ReferrerURL,
		UTMSource:         optional(c.UTMSource),
	}
	return s.post(ctx, "contact", payload, s.contactLimit)
}

// SubmitNewsletter validates and sends a newsletter sign-up.
func (s *Submitter) SubmitNewsletter(ctx context.Context, n Newsletter) error {
	if n.BotField != "" {
		s.logger.Warn("newsletter sign-up blocked by honeypot")
		metrics.FormSubmissions.WithLabelValues("newsletter", "honeypot").Inc()
		return nil
	}
	if err := s.validate.Struct(n); err != nil {
		metrics.FormSubmissions.WithLabelValues("newsletter", "invalid").Inc()
		return fmt.Errorf("invalid newsletter form: %w", err)
	}
	if coolingDown(s.newsletterLimit) {
		return ErrTooSoon
	}
	profile, err := s.profiles.Profile()
	if err != nil {
		return err
	}
	utm := n.UTMSource
	if utm == "" {
		utm = DefaultUTMSource
	}
	payload := newsletterPayload{
		Origin:            "newsletter",
		Email:             n.Email,
		NewsletterConsent: n.Newsletter,
		CookiesConsent:    profile.CookiesConsent,
		UserID:            profile.UserID,
		UTMSource:         utm,
		ReferrerURL:       profile.ReferrerURL,
	}
	return s.post(ctx, "newsletter", payload, s.newsletterLimit)
}

// post sends payload and starts the form's cooldown only once the webhook
// accepted it. A failed submission can be retried straight away.
func (s *Submitter) post(ctx context.Context, form string, payload any, limit *rate.Limiter) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.poster.Post(ctx, payload, nil); err != nil {
		metrics.FormSubmissions.WithLabelValues(form, "error").Inc()
		s.logger.WithError(err).Errorf("%s form submission failed", form)
		return fmt.Errorf("%s submission: %w", form, err)
	}
	metrics.FormSubmissions.WithLabelValues(form, "ok").Inc()
	if limit == nil {
		return nil
	}
	now := time.Now()
	limit.AllowN(now, 1)
	if s.history != nil {
		if err := s.history.RecordSubmit(form, now); err != nil {
			s.logger.WithError(err).Warnf("record %s submission time", form)
		}
	}
	return nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
