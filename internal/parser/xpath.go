package parser

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// XPath applies rule under node and returns the non-empty values.
func XPath(node *html.Node, rule Rule) ([]string, error) {
	nodes, err := htmlquery.QueryAll(node, rule.Selector)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", rule.Selector, err)
	}

	var values []string
	for _, n := range nodes {
		if val := xpathValue(n, rule.Attribute); val != "" {
			values = append(values, val)
		}
	}
	return values, nil
}

// FirstXPath returns the first non-empty value rule yields under node, or "".
func FirstXPath(node *html.Node, rule Rule) (string, error) {
	values, err := XPath(node, rule)
	if err != nil || len(values) == 0 {
		return "", err
	}
	return values[0], nil
}

// Nodes returns every node matching expr under node.
func Nodes(node *html.Node, expr string) ([]*html.Node, error) {
	nodes, err := htmlquery.QueryAll(node, expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", expr, err)
	}
	return nodes, nil
}

func xpathValue(n *html.Node, attribute string) string {
	switch attribute {
	case "", "text":
		return strings.TrimSpace(htmlquery.InnerText(n))
	case "html":
		return htmlquery.OutputHTML(n, false)
	default:
		return strings.TrimSpace(htmlquery.SelectAttr(n, attribute))
	}
}
