package fetch

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// newMarkdownConverter renders HTML as commonmark. Links without a usable
// href or text degrade to their text. Escaping is off so literal brackets
// in category labels reach the source patterns unchanged.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(
				commonmark.WithLinkEmptyHrefBehavior(commonmark.LinkBehaviorSkip),
				commonmark.WithLinkEmptyContentBehavior(commonmark.LinkBehaviorSkip),
			),
		),
		converter.WithEscapeMode(converter.EscapeModeDisabled),
	)
}

// renderSelection renders the outermost nodes of sel as markdown with
// absolute [text](url) links. Nodes nested inside another selected node
// are rendered once. sel's document is modified.
func renderSelection(conv *converter.Converter, sel *goquery.Selection, pageURL *url.URL) (string, error) {
	sel.Find("svg, template").Remove()
	sel.Find("a").AddSelection(sel.Filter("a")).Each(func(_ int, a *goquery.Selection) {
		if abs := resolve(pageURL, a.AttrOr("href", "")); abs != "" {
			a.SetAttr("href", abs)
		} else {
			a.RemoveAttr("href")
		}
	})

	var domain string
	if pageURL != nil {
		domain = pageURL.String()
	}

	selected := make(map[*html.Node]bool, sel.Length())
	for _, n := range sel.Nodes {
		selected[n] = true
	}

	var parts []string
	for i, n := range sel.Nodes {
		if hasSelectedAncestor(n, selected) {
			continue
		}
		fragment, err := goquery.OuterHtml(sel.Eq(i))
		if err != nil {
			return "", fmt.Errorf("render html: %w", err)
		}
		md, err := conv.ConvertString(fragment, converter.WithDomain(domain))
		if err != nil {
			return "", fmt.Errorf("convert markdown: %w", err)
		}
		parts = append(parts, md)
	}
	return tidy(strings.Join(parts, "\n")), nil
}

func hasSelectedAncestor(n *html.Node, selected map[*html.Node]bool) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if selected[p] {
			return true
		}
	}
	return false
}

// resolve returns href as an absolute http(s) URL, or "" when it has none.
func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}

// tidy trims every line and drops blank ones.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
