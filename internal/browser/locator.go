// File: internal/browser/locator.go
// Description: Translates opaque locator strings into chromedp selectors.
// Three syntaxes are recognized: XPath (leading "/" or "("), text descriptors
// ("text=..."), and CSS for everything else.

package browser

import (
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/voidwalkr/restitch/api/schemas"
)

const textLocatorPrefix = "text="

// toSelector maps a locator onto the selector string and query option
// chromedp expects. Text descriptors become XPath text matches so they work
// without any injected helper script.
func toSelector(loc schemas.Locator) (string, chromedp.QueryOption) {
	raw := string(loc)
	switch {
	case strings.HasPrefix(raw, textLocatorPrefix):
		text := strings.TrimPrefix(raw, textLocatorPrefix)
		return "//*[normalize-space(text())=" + xpathLiteral(text) + "]", chromedp.BySearch
	case strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "("):
		return raw, chromedp.BySearch
	default:
		return raw, chromedp.ByQuery
	}
}

// xpathLiteral quotes a string for embedding in an XPath expression. XPath 1.0
// has no escape sequences, so strings containing both quote kinds must be
// assembled with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, `'`) {
		return `'` + s + `'`
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, `'`)
	var b strings.Builder
	b.WriteString("concat(")
	for i, p := range parts {
		if i > 0 {
			b.WriteString(`, "'", `)
		}
		b.WriteString(`'` + p + `'`)
	}
	b.WriteString(")")
	return b.String()
}

// isXPath reports whether the locator uses XPath syntax.
func isXPath(loc schemas.Locator) bool {
	raw := string(loc)
	return strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "(")
}
