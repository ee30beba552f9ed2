package warmer

import (
	"fmt"
	"strings"

	"github.com/cortexlabs/cortexcache/internal/fingerprint"
)

// ContentType is one of the closed enumeration of content taxonomies
// §4.8 defines for padding strategy selection.
type ContentType string

const (
	ContentSQL       ContentType = "sql"
	ContentJSON      ContentType = "json"
	ContentAPI       ContentType = "api"
	ContentError     ContentType = "error"
	ContentException ContentType = "exception"
	ContentGeneric   ContentType = "generic"
)

// padMarker delimits the appended context so Pad is idempotent: re-padding
// already-padded content detects the marker and returns it unchanged
// rather than padding twice.
const padMarker = "\n\n--- cortexcache-context ---\n"

// DetectContentType classifies content into the §4.8 taxonomy, defaulting
// to generic when nothing matches.
func DetectContentType(content string) ContentType {
	trimmed := strings.TrimSpace(content)
	upper := strings.ToUpper(trimmed)
	switch {
	case strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "["):
		return ContentJSON
	case strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "INSERT") ||
		strings.HasPrefix(upper, "UPDATE") || strings.HasPrefix(upper, "DELETE") ||
		strings.HasPrefix(upper, "WITH"):
		return ContentSQL
	case strings.Contains(trimmed, "Traceback (most recent call last)") ||
		strings.Contains(trimmed, "panic:") || strings.Contains(trimmed, "Exception"):
		return ContentException
	case strings.Contains(upper, "ERROR"):
		return ContentError
	case strings.HasPrefix(trimmed, "GET ") || strings.HasPrefix(trimmed, "POST ") ||
		strings.HasPrefix(trimmed, "PUT ") || strings.HasPrefix(trimmed, "DELETE ") ||
		strings.HasPrefix(trimmed, "/"):
		return ContentAPI
	default:
		return ContentGeneric
	}
}

var paddingTemplate = map[ContentType]string{
	ContentSQL:       "This is a SQL statement. It may read, modify, or join one or more tables. Consider index coverage, row counts, and transaction boundaries when interpreting its effect.",
	ContentJSON:      "This is a JSON document. It describes structured data with nested objects, arrays, and scalar fields; field names and types should be read literally.",
	ContentAPI:       "This is an API request or route description. It identifies an HTTP method, path, and the resource it addresses.",
	ContentError:     "This is an error message surfaced by a downstream system. It describes a failure condition that interrupted normal processing.",
	ContentException: "This is an exception trace. It records the call stack and failure point at the moment an unhandled fault occurred.",
	ContentGeneric:   "This is free-form content returned by a downstream tool or data source.",
}

// Pad augments content with content-type-specific context, repeating the
// context block as needed, until the result reaches at least minTokens
// tokens, per §4.8. The original content always appears verbatim exactly
// once. Calling Pad on already-padded content is a no-op (idempotent).
func Pad(content string, minTokens int, contentType ContentType) string {
	if strings.Contains(content, padMarker) {
		return content
	}
	if fingerprint.EstimateTokens([]byte(content)) >= minTokens {
		return content
	}

	template, ok := paddingTemplate[contentType]
	if !ok {
		template = paddingTemplate[ContentGeneric]
	}

	var b strings.Builder
	b.WriteString(content)
	b.WriteString(padMarker)

	round := 1
	for fingerprint.EstimateTokens([]byte(b.String())) < minTokens {
		b.WriteString(fmt.Sprintf("[context %d] %s\n", round, template))
		round++
		if round > 10000 {
			// pathological minTokens far larger than any reasonable
			// template expansion; stop rather than spin forever.
			break
		}
	}

	return b.String()
}
