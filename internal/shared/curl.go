// Utilities for rendering requests as cURL commands in debug logs.
package shared

import (
	"net/http"
	"sort"
	"strings"
)

// redactedHeaders are rendered with their value masked.
var redactedHeaders = map[string]bool{
	"authorization": true,
	"apikey":        true,
	"cookie":        true,
}

// FormatCurl renders req as a single-line cURL command suitable for debug logs.
//
// Credential headers are masked and bodies are omitted since they may contain refresh tokens or authorization codes.
// Headers are sorted so output is stable.
func FormatCurl(req *http.Request) string {
	if req == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString("curl -X ")
	b.WriteString(req.Method)

	keys := make([]string, 0, len(req.Header))
	for k := range req.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		for _, v := range req.Header.Values(k) {
			if redactedHeaders[strings.ToLower(k)] {
				v = redact(v)
			}
			b.WriteString(" -H '")
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(strings.ReplaceAll(v, "'", `'\''`))
			b.WriteString("'")
		}
	}

	if req.Body != nil && req.Body != http.NoBody {
		b.WriteString(" --data '<omitted>'")
	}

	if req.URL != nil {
		b.WriteString(" '")
		b.WriteString(req.URL.String())
		b.WriteString("'")
	}
	return b.String()
}

// redact keeps an auth scheme prefix like "Bearer" and masks the rest.
func redact(v string) string {
	if scheme, _, ok := strings.Cut(v, " "); ok {
		return scheme + " ***"
	}
	return "***"
}
