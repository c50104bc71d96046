package i18n

import (
	"os"
	"strings"

	"golang.org/x/text/language"
)

var supported = []language.Tag{language.Spanish, language.English}

var matcher = language.NewMatcher(supported)

// DetectLocale derives a BCP 47 tag from the POSIX locale environment
// (LC_ALL, LC_MESSAGES, LANG). It returns "es" when nothing usable is set.
func DetectLocale(getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if tag, ok := parsePOSIX(getenv(key)); ok {
			return tag.String()
		}
	}
	return FallbackLang
}

// MatchLang maps an arbitrary locale to the closest catalog language.
func MatchLang(locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		return FallbackLang
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return FallbackLang
	}
	base, _ := supported[idx].Base()
	return base.String()
}

func parsePOSIX(v string) (language.Tag, bool) {
	v = strings.TrimSpace(v)
	if v == "" || v == "C" || v == "POSIX" {
		return language.Und, false
	}
	if i := strings.IndexAny(v, ".@"); i >= 0 {
		v = v[:i]
	}
	tag, err := language.Parse(strings.ReplaceAll(v, "_", "-"))
	if err != nil {
		return language.Und, false
	}
	return tag, true
}
