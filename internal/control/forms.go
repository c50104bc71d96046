package control

import (
	"errors"
	"fmt"

	"iris/internal/app"
	"iris/internal/forms"

	"github.com/spf13/cobra"
)

// NewContactCmd submits the contact form.
func NewContactCmd(cfgPath *string) *cobra.Command {
	var c forms.Contact
	cmd := &cobra.Command{
		Use:   "contact",
		Short: "Send the contact form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), *cfgPath, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, dimStyle.Render(a.I18n.T("contact.form-sending")))
			if err := a.Forms.SubmitContact(cmd.Context(), c); err != nil {
				return formError(a, err, "contact.error")
			}
			_, _ = fmt.Fprintln(out, okStyle.Render(a.I18n.T("contact.success")))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&c.Name, "name", "", "full name")
	f.StringVar(&c.Email, "email", "", "email address")
	f.StringVar(&c.Phone, "phone", "", "phone number")
	f.StringVarP(&c.Message, "message", "m", "", "message")
	f.BoolVar(&c.Newsletter, "newsletter", false, "subscribe to the newsletter")
	f.StringVar(&c.UTMSource, "utm-source", "", "campaign source")
	f.StringVar(&c.BotField, "bot-field", "", "honeypot")
	_ = f.MarkHidden("bot-field")
	return cmd
}

// NewNewsletterCmd subscribes an email to the newsletter.
func NewNewsletterCmd(cfgPath *string) *cobra.Command {
	var n forms.Newsletter
	cmd := &cobra.Command{
		Use:   "newsletter <email>",
		Short: "Subscribe to the newsletter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), *cfgPath, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()
			n.Email = args[0]
			n.Newsletter = true
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, dimStyle.Render(a.I18n.T("footer.newsletter-subscribing")))
			if err := a.Forms.SubmitNewsletter(cmd.Context(), n); err != nil {
				return formError(a, err, "footer.newsletter-error")
			}
			_, _ = fmt.Fprintln(out, okStyle.Render(a.I18n.T("footer.newsletter-subscribed")))
			return nil
		},
	}
	cmd.Flags().StringVar(&n.UTMSource, "utm-source", "", "campaign source (default landing_page)")
	cmd.Flags().StringVar(&n.BotField, "bot-field", "", "honeypot")
	_ = cmd.Flags().MarkHidden("bot-field")
	return cmd
}

func formError(a *app.App, err error, key string) error {
	if errors.Is(err, forms.ErrTooSoon) {
		key = "forms.too-soon"
	}
	return fmt.Errorf("%s: %w", a.I18n.T(key), err)
}
