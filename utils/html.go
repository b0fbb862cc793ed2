package utils

import (
	"strings"

	"golang.org/x/net/html"
)

// NodeText returns the visible text below n with whitespace normalised.
// Script and style content is ignored.
func NodeText(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	collectText(n, &b)
	return NormalizeText(b.String())
}

func collectText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		b.WriteByte(' ')
		return
	case html.ElementNode:
		if n.Data == "script" || n.Data == "style" || n.Data == "noscript" {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

// NormalizeText collapses every whitespace run to a single space and trims the ends
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Attr returns the value of the named attribute on n
func Attr(n *html.Node, name string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}
