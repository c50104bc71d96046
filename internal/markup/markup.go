// Package markup turns assistant and blog Markdown into sanitized HTML and
// terminal text.
package markup

import (
	"bytes"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

var (
	md = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		// Raw HTML is passed through and removed by the sanitizer instead.
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
	)
	ugc    = bluemonday.UGCPolicy()
	strict = bluemonday.StrictPolicy()

	blockEnd  = regexp.MustCompile(`(?i)</(p|h[1-6]|li|blockquote|pre|tr)>|<br\s*/?>`)
	listItem  = regexp.MustCompile(`(?i)<li[^>]*>`)
	manyBlank = regexp.MustCompile(`\n{3,}`)
)

// Markdown converts Markdown to HTML without sanitizing it.
func Markdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Sanitize strips script-executing markup (scripts, event handlers,
// javascript: URLs, iframes) while keeping ordinary formatting.
func Sanitize(htmlSrc string) string {
	return ugc.Sanitize(htmlSrc)
}

// Render is Markdown followed by Sanitize.
func Render(src string) (string, error) {
	out, err := Markdown(src)
	if err != nil {
		return "", err
	}
	return Sanitize(out), nil
}

// Text flattens HTML into plain text for terminal output.
func Text(htmlSrc string) string {
	s := listItem.ReplaceAllString(htmlSrc, "• ")
	s = blockEnd.ReplaceAllString(s, "\n")
	s = html.UnescapeString(strict.Sanitize(s))
	s = manyBlank.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
