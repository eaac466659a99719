package observability

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	defaultFieldLimit = 256
	identifierLimit   = 64
	routeLimit        = 180
	methodLimit       = 10
)

// sanitizeString drops control characters, which covers line breaks smuggled into request-derived values, and
// truncates to limit runes.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultFieldLimit
	}
	cleaned := strings.Map(func(r rune) rune {
		if r == utf8.RuneError || unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	if utf8.RuneCountInString(cleaned) <= limit {
		return cleaned
	}
	runes := []rune(cleaned)
	return string(runes[:limit])
}

// SanitizeRoute cleans a chi route pattern for logs and span names.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, routeLimit)
}

// SanitizeMethod cleans an HTTP method.
func SanitizeMethod(method string) string {
	return strings.ToUpper(sanitizeString(method, methodLimit))
}

// SanitizeIdentifier cleans user, partner and service request ids. Whitespace is stripped entirely since
// none of those ids contain it.
func SanitizeIdentifier(id string) string {
	id = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, id)
	return sanitizeString(id, identifierLimit)
}
