// Package detect scans inbound requests for attack signatures and enforces
// coarse request-shape validation. The pattern scanner is observational
// only; rejection decisions live in the request-validation guard.
package detect

import (
	"net/http"
	"net/url"
	"regexp"
	"strconv"
)

// MaxScanDepth bounds recursion into nested request payloads so that
// adversarial nesting cannot make scanning arbitrarily expensive.
const MaxScanDepth = 10

// excerptLen caps how much of a matched payload is surfaced in findings.
const excerptLen = 100

// Finding describes one attack-signature match inside a request.
type Finding struct {
	Source  string `json:"source"`  // "query", "body" or "header"
	Path    string `json:"path"`    // key path to the matched leaf
	Pattern string `json:"pattern"` // signature name
	Excerpt string `json:"excerpt"` // truncated matched payload
}

// signature is one named attack pattern.
type signature struct {
	name string
	re   *regexp.Regexp
}

var signatures = []signature{
	{"sql_injection", regexp.MustCompile(`(?i)(\bunion\b.{0,40}\bselect\b|\bselect\b.{0,60}\bfrom\b|\binsert\s+into\b|\bdrop\s+table\b|\bdelete\s+from\b|\bupdate\b.{0,40}\bset\b|\bor\b\s+\d+\s*=\s*\d+|--\s|;\s*--)`)},
	{"xss_marker", regexp.MustCompile(`(?i)(<\s*script|javascript\s*:|\bon\w+\s*=)`)},
	{"path_traversal", regexp.MustCompile(`(\.\./|\.\.\\|%2e%2e%2f|%2e%2e/)`)},
	{"shell_metachar", regexp.MustCompile("(\\$\\(|`|\\|\\||&&|;\\s*(cat|ls|rm|wget|curl|sh|bash)\\b)")},
	{"template_injection", regexp.MustCompile(`(\{\{.+\}\}|\$\{.+\}|<%.+%>)`)},
}

// Scan walks a request's query parameters, parsed body and header values
// against the signature set and returns every match. Only string leaves
// are inspected; recursion stops at MaxScanDepth.
func Scan(query url.Values, body interface{}, headers http.Header) []Finding {
	var findings []Finding

	for key, values := range query {
		for _, v := range values {
			findings = scanLeaf(findings, "query", key, v)
		}
	}

	findings = scanValue(findings, "body", "", body, 0)

	for key, values := range headers {
		for _, v := range values {
			findings = scanLeaf(findings, "header", key, v)
		}
	}

	return findings
}

// scanValue recurses through maps and slices looking for string leaves.
func scanValue(findings []Finding, source, path string, v interface{}, depth int) []Finding {
	if depth > MaxScanDepth || v == nil {
		return findings
	}

	switch value := v.(type) {
	case string:
		return scanLeaf(findings, source, path, value)
	case map[string]interface{}:
		for key, child := range value {
			findings = scanValue(findings, source, joinPath(path, key), child, depth+1)
		}
	case []interface{}:
		for i, child := range value {
			findings = scanValue(findings, source, joinPath(path, strconv.Itoa(i)), child, depth+1)
		}
	}
	return findings
}

func scanLeaf(findings []Finding, source, path, value string) []Finding {
	for _, sig := range signatures {
		if match := sig.re.FindString(value); match != "" {
			findings = append(findings, Finding{
				Source:  source,
				Path:    path,
				Pattern: sig.name,
				Excerpt: truncate(value, excerptLen),
			})
		}
	}
	return findings
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
