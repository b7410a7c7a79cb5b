// File: internal/browser/snapshot.go
// Description: Read-only schemas.Page over a parsed HTML document. Used for
// dry-run healing against saved page snapshots, where launching Chrome is
// unnecessary.

package browser

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/voidwalkr/restitch/api/schemas"
)

// Snapshot is an immutable, in-memory page. It supports the locator subset
// the healing strategies generate: "#id", "[name=...]", "[data-testid=...]",
// bare tag names and "text=..." descriptors. XPath locators never match.
type Snapshot struct {
	root *html.Node
}

var _ schemas.Page = (*Snapshot)(nil)

// NewSnapshot parses an HTML document into a queryable page.
func NewSnapshot(r io.Reader) (*Snapshot, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML snapshot: %w", err)
	}
	return &Snapshot{root: root}, nil
}

// ParseSnapshot parses HTML source into a queryable page.
func ParseSnapshot(source string) (*Snapshot, error) {
	return NewSnapshot(strings.NewReader(source))
}

// Find locates the first element matching the locator. A nil handle with a
// nil error means no match.
func (s *Snapshot) Find(_ context.Context, loc schemas.Locator) (*schemas.ElementHandle, error) {
	n := s.find(loc)
	if n == nil {
		return nil, nil
	}
	return &schemas.ElementHandle{
		Locator: loc,
		Tag:     n.Data,
		Text:    ownText(n),
	}, nil
}

// AllText returns the trimmed own-text of every element that carries one, in
// document order.
func (s *Snapshot) AllText(context.Context) ([]string, error) {
	var out []string
	walk(s.root, func(n *html.Node) {
		if t := ownText(n); t != "" {
			out = append(out, t)
		}
	})
	return out, nil
}

// AllIdentifiers returns the id, name and data-testid values present in the
// document, ids first.
func (s *Snapshot) AllIdentifiers(context.Context) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	push := func(v string) {
		if v == "" {
			return
		}
		if _, dup := seen[v]; dup {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	for _, key := range []string{"id", "name", "data-testid"} {
		walk(s.root, func(n *html.Node) {
			push(attr(n, key))
		})
	}
	return out, nil
}

// StructuralSiblings enumerates locators for the children of the scope the
// broken locator points into: the element's parent when the locator still
// resolves, or the surviving prefix of a compound selector otherwise.
func (s *Snapshot) StructuralSiblings(_ context.Context, loc schemas.Locator) ([]schemas.Locator, error) {
	var scope *html.Node
	scopeSel := "body"

	if n := s.find(loc); n != nil && n.Parent != nil {
		scope = n.Parent
	} else {
		raw := string(loc)
		cut := strings.LastIndexAny(raw, "> ")
		if cut > 0 {
			prefix := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw[:cut]), ">"))
			if p := s.find(schemas.Locator(prefix)); p != nil {
				scope = p
				scopeSel = prefix
			}
		}
	}
	if scope == nil {
		return nil, nil
	}

	var out []schemas.Locator
	idx := 0
	for c := scope.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		idx++
		switch {
		case attr(c, "id") != "":
			out = append(out, schemas.Locator("#"+attr(c, "id")))
		case attr(c, "name") != "":
			out = append(out, schemas.Locator(fmt.Sprintf(`%s[name=%q]`, c.Data, attr(c, "name"))))
		case attr(c, "data-testid") != "":
			out = append(out, schemas.Locator(fmt.Sprintf(`[data-testid=%q]`, attr(c, "data-testid"))))
		default:
			out = append(out, schemas.Locator(fmt.Sprintf("%s > %s:nth-child(%d)", scopeSel, c.Data, idx)))
		}
	}
	return out, nil
}

// find resolves the supported locator subset against the document.
func (s *Snapshot) find(loc schemas.Locator) *html.Node {
	raw := string(loc)
	switch {
	case raw == "":
		return nil
	case isXPath(loc):
		return nil
	case strings.HasPrefix(raw, textLocatorPrefix):
		want := normalizeSpace(strings.TrimPrefix(raw, textLocatorPrefix))
		return s.findFirst(func(n *html.Node) bool { return ownText(n) == want })
	default:
		return s.findSelector(raw)
	}
}

// findSelector handles simple selectors, including a single "a > b" or
// "a b" descendant chain.
func (s *Snapshot) findSelector(sel string) *html.Node {
	sel = strings.TrimSpace(sel)
	if cut := strings.LastIndexAny(sel, "> "); cut > 0 {
		prefix := strings.TrimSpace(strings.TrimSuffix(sel[:cut], ">"))
		last := strings.TrimSpace(sel[cut+1:])
		parent := s.findSelector(prefix)
		if parent == nil || last == "" {
			return nil
		}
		return findFirstIn(parent, matcherFor(last))
	}
	return s.findFirst(matcherFor(sel))
}

func matcherFor(simple string) func(*html.Node) bool {
	simple = strings.TrimSpace(simple)
	switch {
	case strings.HasPrefix(simple, "#"):
		id := simple[1:]
		return func(n *html.Node) bool { return attr(n, "id") == id }
	case strings.HasPrefix(simple, "["):
		key, value, ok := parseAttrSelector(simple)
		if !ok {
			return func(*html.Node) bool { return false }
		}
		return func(n *html.Node) bool { return attr(n, key) == value }
	default:
		tag := simple
		var key, value string
		if i := strings.Index(simple, "["); i > 0 {
			var ok bool
			key, value, ok = parseAttrSelector(simple[i:])
			if !ok {
				return func(*html.Node) bool { return false }
			}
			tag = simple[:i]
		}
		// :nth-child suffixes from generated sibling locators.
		nth := 0
		if i := strings.Index(tag, ":nth-child("); i >= 0 {
			fmt.Sscanf(tag[i:], ":nth-child(%d)", &nth)
			tag = tag[:i]
		}
		return func(n *html.Node) bool {
			if n.Data != tag {
				return false
			}
			if key != "" && attr(n, key) != value {
				return false
			}
			if nth > 0 && elementIndex(n) != nth {
				return false
			}
			return true
		}
	}
}

func parseAttrSelector(s string) (key, value string, ok bool) {
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	key, value, ok = strings.Cut(s, "=")
	if !ok {
		return "", "", false
	}
	value = strings.Trim(value, `"'`)
	return key, value, true
}

func (s *Snapshot) findFirst(match func(*html.Node) bool) *html.Node {
	return findFirstIn(s.root, match)
}

func findFirstIn(root *html.Node, match func(*html.Node) bool) *html.Node {
	var found *html.Node
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if found != nil {
			return
		}
		if n != root && n.Type == html.ElementNode && match(n) {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(root)
	return found
}

func walk(root *html.Node, fn func(*html.Node)) {
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			fn(n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(root)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// ownText is the element's direct text content, whitespace-normalized.
func ownText(n *html.Node) string {
	if n.Type != html.ElementNode {
		return ""
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return normalizeSpace(b.String())
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func elementIndex(n *html.Node) int {
	idx := 0
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			idx++
			if c == n {
				return idx
			}
		}
	}
	return 0
}
