// Package parser holds the selector helpers site adapters use to pull values
// out of HTML: CSS selectors via goquery and XPath via htmlquery.
package parser

import (
	"net/url"
	"strings"
)

// Rule describes one value to extract.
type Rule struct {
	// Selector is a CSS selector or an XPath expression.
	Selector string

	// Attribute selects what to read from a match: "" or "text" for the
	// trimmed text content, "html" for inner HTML, anything else is an
	// attribute name.
	Attribute string
}

// ResolveURL resolves href against base. It returns false for empty,
// fragment-only, non-HTTP or unparseable links.
func ResolveURL(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" ||
		strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") {
		return "", false
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	resolved := parsed
	if base != nil {
		resolved = base.ResolveReference(parsed)
	}
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	resolved.Fragment = ""
	return resolved.String(), true
}
