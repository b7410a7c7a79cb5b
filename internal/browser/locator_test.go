// File: internal/browser/locator_test.go
package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToSelector_CSSPassthrough(t *testing.T) {
	sel, _ := toSelector("#submit-button")
	assert.Equal(t, "#submit-button", sel)

	sel, _ = toSelector("form.checkout input[name=\"email\"]")
	assert.Equal(t, "form.checkout input[name=\"email\"]", sel)
}

func TestToSelector_XPathPassthrough(t *testing.T) {
	sel, _ := toSelector("//button[@type='submit']")
	assert.Equal(t, "//button[@type='submit']", sel)

	sel, _ = toSelector("(//div[@class='row'])[2]")
	assert.Equal(t, "(//div[@class='row'])[2]", sel)
}

func TestToSelector_TextDescriptor(t *testing.T) {
	sel, _ := toSelector("text=Sign In")
	assert.Equal(t, "//*[normalize-space(text())='Sign In']", sel)
}

func TestXPathLiteral(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{`it's here`, `"it's here"`},
		{`say "hi"`, `'say "hi"'`},
		{`it's "both"`, `concat('it', "'", 's "both"')`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, xpathLiteral(tc.in), "input: %s", tc.in)
	}
}

func TestIsXPath(t *testing.T) {
	assert.True(t, isXPath("//a"))
	assert.True(t, isXPath("(//a)[1]"))
	assert.False(t, isXPath("#id"))
	assert.False(t, isXPath("text=Hello"))
}
