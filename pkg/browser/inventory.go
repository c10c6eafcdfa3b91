package browser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Inventory lists the value attributes of the selectable inputs (checkboxes
// and radio buttons) in an HTML document, in document order.
func Inventory(rawHTML string) ([]string, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var values []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, "input") && isSelectable(n) {
			if v, ok := attr(n, "value"); ok && v != "" {
				values = append(values, v)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return values, nil
}

// isSelectable returns true for checkbox and radio inputs
func isSelectable(n *html.Node) bool {
	t, _ := attr(n, "type")
	switch strings.ToLower(t) {
	case "checkbox", "radio":
		return true
	}
	return false
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}
