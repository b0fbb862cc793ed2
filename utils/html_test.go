package utils

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func TestNodeText(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<h3>
		Section   <em>One</em>
		<script>var x = 1;</script>
	</h3>`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	var h3 *html.Node
	var find func(*html.Node)
	find = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "h3" {
			h3 = n
			return
		}
		for c := n.FirstChild; c != nil && h3 == nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)

	if got := NodeText(h3); got != "Section One" {
		t.Errorf("Expected %q, got %q", "Section One", got)
	}
	if got := NodeText(nil); got != "" {
		t.Errorf("Expected empty text for nil node, got %q", got)
	}
}

func TestNormalizeText(t *testing.T) {
	tests := map[string]string{
		"  a \n\t b  ": "a b",
		"":             "",
		"single":       "single",
	}
	for input, expected := range tests {
		if got := NormalizeText(input); got != expected {
			t.Errorf("NormalizeText(%q): expected %q, got %q", input, expected, got)
		}
	}
}

func TestAttr(t *testing.T) {
	n := &html.Node{Type: html.ElementNode, Data: "a", Attr: []html.Attribute{{Key: "href", Val: "/x"}}}
	if v, ok := Attr(n, "HREF"); !ok || v != "/x" {
		t.Errorf("Expected href /x, got %q (%v)", v, ok)
	}
	if _, ok := Attr(n, "src"); ok {
		t.Error("Expected missing attribute")
	}
}
