package control

import (
	"fmt"
	"strings"

	"iris/internal/app"

	"github.com/spf13/cobra"
)

// NewLangCmd reads or switches the interface language.
func NewLangCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lang [es|en]",
		Short: "Show or set the interface language",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), *cfgPath, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				_, _ = fmt.Fprintf(out, "%s (available: %s)\n", a.I18n.Lang(), strings.Join(a.I18n.Languages(), ", "))
				return nil
			}
			if err := a.I18n.Set(args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(out, a.I18n.Lang())
			return nil
		},
	}
	return cmd
}
