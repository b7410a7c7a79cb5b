// File: internal/browser/session_test.go
package browser

import (
	"testing"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"

	"github.com/voidwalkr/restitch/internal/config"
)

func TestDispatchChangeScript_CSS(t *testing.T) {
	script := dispatchChangeScript("#country")
	assert.Contains(t, script, `document.querySelector("#country")`)
	assert.Contains(t, script, "new Event('change'")
}

func TestDispatchChangeScript_XPath(t *testing.T) {
	script := dispatchChangeScript("//select[@name='country']")
	assert.Contains(t, script, "document.evaluate(")
	assert.NotContains(t, script, "document.querySelector(")
}

func TestDispatchChangeScript_TextDescriptor(t *testing.T) {
	script := dispatchChangeScript("text=Country")
	assert.Contains(t, script, "document.evaluate(")
	assert.Contains(t, script, "normalize-space(text())")
}

func TestAllocatorOptions_IncludeStabilityFlags(t *testing.T) {
	base := allocatorOptions(config.BrowserConfig{Headless: true})
	assert.Greater(t, len(base), len(chromedp.DefaultExecAllocatorOptions))

	withPath := allocatorOptions(config.BrowserConfig{ExecPath: "/usr/bin/chromium", IgnoreTLSErrors: true})
	assert.Equal(t, len(base)+2, len(withPath))
}
