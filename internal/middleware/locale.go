package middleware

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

type localeContextKey struct{}

// supported story languages; Swedish first as the product's home market.
var localeMatcher = language.NewMatcher([]language.Tag{
	language.Swedish,
	language.English,
})

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

// Locale picks the story language for the request: explicit X-Locale header,
// then Accept-Language matching, then a GeoIP country fallback, then the
// configured default.
func Locale(defaultLocale string, lookup CountryLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := detectLocale(r, defaultLocale, lookup)
			ctx := context.WithValue(r.Context(), localeContextKey{}, locale)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LocaleFromContext returns the story language stored by Locale.
func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(localeContextKey{}).(string); ok {
		return v
	}
	return "sv"
}

func detectLocale(r *http.Request, fallback string, lookup CountryLookup) string {
	if v := normalizeLocale(r.Header.Get("X-Locale")); v != "" {
		return v
	}
	if accept := r.Header.Get("Accept-Language"); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
			_, index, confidence := localeMatcher.Match(tags...)
			if confidence > language.No {
				if index == 0 {
					return "sv"
				}
				return "en"
			}
		}
	}
	if lookup != nil {
		if ip := ClientIP(r); ip != "" {
			if country, err := lookup(ip); err == nil {
				switch strings.ToUpper(country) {
				case "SE":
					return "sv"
				case "":
				default:
					return "en"
				}
			}
		}
	}
	if fallback != "" {
		return fallback
	}
	return "sv"
}

func normalizeLocale(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	switch {
	case locale == "":
		return ""
	case strings.HasPrefix(locale, "sv"):
		return "sv"
	default:
		return "en"
	}
}
