package blog

import (
	"fmt"
	"strings"
	"time"

	"iris/internal/markup"

	"github.com/charmbracelet/lipgloss"
)

// Translator resolves catalog keys in the current language.
type Translator interface {
	T(key string) string
	Lang() string
}

const (
	accentColor = "#7C3AED"
	dimColor    = "#6B7280"
)

var (
	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(accentColor)).
			Padding(0, 1).
			Width(72)

	titleStyle    = lipgloss.NewStyle().Bold(true)
	categoryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(accentColor))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color(dimColor))
)

var monthsEs = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// FormatDate renders a long date the way the site does for es-ES / en-US.
func FormatDate(t time.Time, lang string) string {
	if t.IsZero() {
		return ""
	}
	if lang == "es" {
		return fmt.Sprintf("%d de %s de %d", t.Day(), monthsEs[t.Month()-1], t.Year())
	}
	return t.Format("January 2, 2006")
}

// RenderCards renders the post list, or the empty-category message.
func RenderCards(posts []Post, tr Translator) string {
	if len(posts) == 0 {
		return dimStyle.Render(tr.T("blog.no-posts"))
	}
	lang := tr.Lang()
	cards := make([]string, 0, len(posts))
	for _, p := range posts {
		var b strings.Builder
		b.WriteString(categoryStyle.Render(p.CategoryDisplay(lang)))
		b.WriteString("\n")
		b.WriteString(titleStyle.Render(p.Title(lang)))
		b.WriteString("\n")
		b.WriteString(p.Description(lang))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(fmt.Sprintf("%s: %s", tr.T("blog.creation-date"), FormatDate(p.Time(), lang))))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(fmt.Sprintf("%s → #post?id=%s", tr.T("blog.read-more"), p.ID)))
		cards = append(cards, cardStyle.Render(b.String()))
	}
	return lipgloss.JoinVertical(lipgloss.Left, cards...)
}

// RenderPost renders a full article: header, byline and the Markdown body
// flattened for the terminal.
func RenderPost(p Post, tr Translator) (string, error) {
	lang := tr.Lang()
	html, err := markup.Render(p.Content(lang))
	if err != nil {
		return "", fmt.Errorf("render post %s: %w", p.ID, err)
	}
	var b strings.Builder
	b.WriteString(categoryStyle.Render("[" + p.CategoryDisplay(lang) + "]"))
	b.WriteString("\n")
	b.WriteString(titleStyle.Render(p.Title(lang)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("%s %s · %s", tr.T("post.author-prefix"), p.Author(lang), FormatDate(p.Time(), lang))))
	b.WriteString("\n\n")
	b.WriteString(markup.Text(html))
	return b.String(), nil
}
