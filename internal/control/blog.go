package control

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"iris/internal/app"
	"iris/internal/blog"
	"iris/internal/nav"

	"github.com/spf13/cobra"
)

// NewBlogCmd groups the blog reader subcommands.
func NewBlogCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blog",
		Short: "Read the blog",
	}
	cmd.AddCommand(newBlogListCmd(cfgPath))
	cmd.AddCommand(newBlogShowCmd(cfgPath))
	cmd.AddCommand(newBlogCategoriesCmd(cfgPath))
	return cmd
}

func newBlogListCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List posts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), *cfgPath, app.Options{LoadBlog: true})
			if err != nil {
				return err
			}
			defer a.Close()
			category, _ := cmd.Flags().GetString("category")
			all := a.I18n.T("blog.filter-all")
			if category == "" {
				category = all
			}
			posts := a.Blog.Filter(category, a.I18n.Lang(), all)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), blog.RenderCards(posts, a.I18n))
			return nil
		},
	}
	cmd.Flags().String("category", "", "only posts in this category (display name in the current language)")
	return cmd
}

func newBlogCategoriesCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List categories in the current language",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), *cfgPath, app.Options{LoadBlog: true})
			if err != nil {
				return err
			}
			defer a.Close()
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, a.I18n.T("blog.filter-all"))
			for _, c := range a.Blog.Categories(a.I18n.Lang()) {
				_, _ = fmt.Fprintln(out, c)
			}
			return nil
		},
	}
}

func newBlogShowCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return openFragment(cmd, *cfgPath, "#post?id="+args[0])
		},
	}
}

// NewOpenCmd resolves a site fragment such as #blog or #post?id=3.
func NewOpenCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "open [fragment]",
		Short: "Open a site section or post by URL fragment",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fragment := ""
			if len(args) == 1 {
				fragment = args[0]
			}
			return openFragment(cmd, *cfgPath, fragment)
		},
	}
}

func openFragment(cmd *cobra.Command, cfgPath, fragment string) error {
	a, err := loadApp(cmd.Context(), cfgPath, app.Options{LoadBlog: true})
	if err != nil {
		return err
	}
	defer a.Close()
	v, err := a.Router.Navigate(fragment)
	if err != nil {
		if errors.Is(err, nav.ErrUnknownSection) {
			return fmt.Errorf("%w: %s (known: %s)", err, fragment, strings.Join(nav.Sections, ", "))
		}
		return err
	}
	return renderView(cmd.OutOrStdout(), a, v)
}

func renderView(out io.Writer, a *app.App, v nav.View) error {
	tr := a.I18n
	switch {
	case v.NotFound:
		_, _ = fmt.Fprintln(out, errStyle.Render(tr.T("post.not-found")))
		return nil
	case v.Post != nil:
		text, err := blog.RenderPost(*v.Post, tr)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, text)
		return nil
	case v.Section == nav.SectionBlog:
		all := tr.T("blog.filter-all")
		_, _ = fmt.Fprintln(out, blog.RenderCards(a.Blog.Filter(all, tr.Lang(), all), tr))
		return nil
	}
	_, _ = fmt.Fprintln(out, botStyle.Render(tr.T("nav."+v.Section)))
	return nil
}
