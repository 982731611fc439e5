package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CSS applies rule to every element under sel and returns the non-empty values.
func CSS(sel *goquery.Selection, rule Rule) []string {
	var values []string
	sel.Find(rule.Selector).Each(func(_ int, s *goquery.Selection) {
		if val := cssValue(s, rule.Attribute); val != "" {
			values = append(values, val)
		}
	})
	return values
}

// FirstCSS returns the first non-empty value rule yields under sel, or "".
// For attribute rules only elements carrying the attribute are considered.
func FirstCSS(sel *goquery.Selection, rule Rule) string {
	var out string
	sel.Find(rule.Selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		out = cssValue(s, rule.Attribute)
		return out == ""
	})
	return out
}

func cssValue(s *goquery.Selection, attribute string) string {
	switch attribute {
	case "", "text":
		return strings.TrimSpace(s.Text())
	case "html":
		val, _ := s.Html()
		return val
	default:
		val, _ := s.Attr(attribute)
		return strings.TrimSpace(val)
	}
}
