package fever

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Sanitizer cleans stored item HTML before it is handed to clients. The
// stored content is never modified.
type Sanitizer struct{}

// NewSanitizer returns a Sanitizer. It holds no state and is safe for
// concurrent use.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{}
}

// urlPattern matches bare URLs in text. Matches directly preceded by "=x"
// are attribute values that were escaped into text and are left alone.
var urlPattern = regexp.MustCompile(`(?i)(?:http|https|ftp)+://[^ ,!]+`)

const iframeSandbox = "allow-scripts allow-same-origin"

var strippedAttrs = map[string]bool{
	"id":    true,
	"style": true,
	"class": true,
}

// Sanitize auto-links bare URLs (only when content has no href= at all),
// resolves relative links and image sources against siteURL, opens links
// in a new browsing context, sandboxes iframes and strips event handler,
// id, style and class attributes. It returns the inner HTML of the parsed
// body, or content unchanged if no body could be produced.
func (s *Sanitizer) Sanitize(content, siteURL string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(trimmed))
	if err != nil {
		return content
	}
	body := doc.Find("body").First()
	if body.Length() == 0 {
		return content
	}

	if !strings.Contains(trimmed, "href=") {
		autoLink(body.Nodes[0])
	}
	clean(body, parseBase(siteURL))

	out, err := body.Html()
	if err != nil {
		return content
	}
	return out
}

func parseBase(siteURL string) *url.URL {
	if siteURL == "" {
		return nil
	}
	base, err := url.Parse(strings.TrimSpace(siteURL))
	if err != nil || !base.IsAbs() {
		return nil
	}
	return base
}

func resolveURL(base *url.URL, ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

func clean(body *goquery.Selection, base *url.URL) {
	if base != nil {
		body.Find("a[href], img[src]").Each(func(_ int, s *goquery.Selection) {
			if href, ok := s.Attr("href"); ok {
				s.SetAttr("href", resolveURL(base, href))
			}
			if src, ok := s.Attr("src"); ok {
				s.SetAttr("src", resolveURL(base, src))
			}
		})
	}

	body.Find("a").SetAttr("target", "_blank")
	body.Find("iframe").SetAttr("sandbox", iframeSandbox)

	body.Find("*").Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			n.Attr = filterAttrs(n.Attr)
		}
	})
}

func filterAttrs(attrs []html.Attribute) []html.Attribute {
	kept := attrs[:0]
	for _, a := range attrs {
		key := strings.ToLower(a.Key)
		if strings.HasPrefix(key, "on") || strippedAttrs[key] {
			continue
		}
		kept = append(kept, a)
	}
	return kept
}

// autoLink wraps bare URLs found in text nodes under root in anchors.
func autoLink(root *html.Node) {
	var texts []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.A, atom.Script, atom.Style, atom.Textarea:
				return
			}
		}
		if n.Type == html.TextNode && strings.Contains(n.Data, "://") {
			texts = append(texts, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	for _, t := range texts {
		linkText(t)
	}
}

func linkText(t *html.Node) {
	text := t.Data
	parent := t.Parent
	last := 0
	for _, m := range urlPattern.FindAllStringIndex(text, -1) {
		if precededByEquals(text, m[0]) {
			continue
		}
		if m[0] > last {
			parent.InsertBefore(&html.Node{Type: html.TextNode, Data: text[last:m[0]]}, t)
		}
		parent.InsertBefore(anchor(text[m[0]:m[1]]), t)
		last = m[1]
	}
	if last == 0 {
		return
	}
	if last < len(text) {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: text[last:]}, t)
	}
	parent.RemoveChild(t)
}

// precededByEquals reports whether the URL at i looks like an attribute
// value, optionally quoted.
func precededByEquals(text string, i int) bool {
	if i >= 1 && text[i-1] == '=' {
		return true
	}
	if i >= 2 && text[i-2] == '=' && (text[i-1] == '"' || text[i-1] == '\'') {
		return true
	}
	return false
}

func anchor(link string) *html.Node {
	a := &html.Node{
		Type:     html.ElementNode,
		Data:     "a",
		DataAtom: atom.A,
		Attr: []html.Attribute{
			{Key: "target", Val: "_blank"},
			{Key: "href", Val: link},
		},
	}
	a.AppendChild(&html.Node{Type: html.TextNode, Data: link})
	return a
}
