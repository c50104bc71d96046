package control

import (
	"fmt"
	"io"

	"iris/internal/app"
	"iris/internal/consent"

	"github.com/spf13/cobra"
)

// NewConsentCmd manages cookie preferences.
func NewConsentCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consent",
		Short: "Show or change cookie preferences",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show stored preferences (or the banner when none are stored)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), *cfgPath, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()
			out := cmd.OutOrStdout()
			if a.Consent.BannerVisible() {
				_, _ = fmt.Fprintln(out, a.I18n.T("cookies.banner"))
				return nil
			}
			printPreferences(out, a.Consent.Current())
			return nil
		},
	})
	cmd.AddCommand(consentPresetCmd(cfgPath, "accept-all", "Accept all cookies (newsletter stays off)", func(*cobra.Command) consent.Preferences {
		return consent.AcceptAll()
	}))
	cmd.AddCommand(consentPresetCmd(cfgPath, "reject-all", "Keep only necessary cookies", func(*cobra.Command) consent.Preferences {
		return consent.RejectAll()
	}))

	modal := consentPresetCmd(cfgPath, "accept-all-modal", "Accept all from the preference center", func(c *cobra.Command) consent.Preferences {
		newsletter, _ := c.Flags().GetBool("newsletter")
		return consent.AcceptAllFromModal(newsletter)
	})
	modal.Flags().Bool("newsletter", false, "also opt in to the newsletter")
	cmd.AddCommand(modal)

	custom := consentPresetCmd(cfgPath, "save", "Save custom preferences", func(c *cobra.Command) consent.Preferences {
		performance, _ := c.Flags().GetBool("performance")
		functional, _ := c.Flags().GetBool("functional")
		targeting, _ := c.Flags().GetBool("targeting")
		newsletter, _ := c.Flags().GetBool("newsletter")
		return consent.Custom(performance, functional, targeting, newsletter)
	})
	custom.Flags().Bool("performance", false, "allow performance cookies")
	custom.Flags().Bool("functional", false, "allow functional cookies")
	custom.Flags().Bool("targeting", false, "allow targeting cookies")
	custom.Flags().Bool("newsletter", false, "opt in to the newsletter")
	cmd.AddCommand(custom)
	return cmd
}

func consentPresetCmd(cfgPath *string, use, short string, prefs func(*cobra.Command) consent.Preferences) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), *cfgPath, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()
			p := prefs(cmd)
			if err := a.Consent.Save(p); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, okStyle.Render(a.I18n.T("cookies.saved")))
			printPreferences(out, &p)
			return nil
		},
	}
}

func printPreferences(out io.Writer, p *consent.Preferences) {
	if p == nil {
		return
	}
	rows := []struct {
		name string
		on   bool
	}{
		{"necessary", p.Necessary},
		{"performance", p.Performance},
		{"functional", p.Functional},
		{"targeting", p.Targeting},
		{"newsletter", p.Newsletter},
	}
	for _, r := range rows {
		mark := dimStyle.Render("off")
		if r.on {
			mark = okStyle.Render("on")
		}
		_, _ = fmt.Fprintf(out, "  %-12s %s\n", r.name, mark)
	}
}
