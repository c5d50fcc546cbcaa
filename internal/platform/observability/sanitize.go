package observability

import (
	"strings"
	"unicode"
)

// Request logs carry routes, methods, and actor UIDs straight from client
// input, so each value is stripped of control characters and capped before
// it reaches a log field.
const (
	defaultValueLimit = 256
	routeLimit        = 180
	methodLimit       = 10
	actorLimit        = 64
)

func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultValueLimit
	}

	var b strings.Builder
	b.Grow(len(value))
	count := 0
	for _, r := range value {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		if count == limit {
			break
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}

// SanitizeRoute cleans a chi route pattern for log and span attributes.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, routeLimit)
}

// SanitizeMethod cleans an HTTP method for log fields.
func SanitizeMethod(method string) string {
	return sanitizeString(method, methodLimit)
}

// SanitizeUserID caps actor identifiers logged with status changes.
func SanitizeUserID(uid string) string {
	if uid == "" {
		return ""
	}
	return sanitizeString(uid, actorLimit)
}
