// File: internal/browser/session.go
// Description: Chrome-backed implementation of schemas.SessionContext and
// schemas.Page on top of chromedp. One Session owns one browser tab; the
// runner drives it with step primitives and the healing engine queries it
// for candidate elements.

package browser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voidwalkr/restitch/api/schemas"
	"github.com/voidwalkr/restitch/internal/config"
)

const defaultActionTimeout = 30 * time.Second
const defaultNavigationTimeout = 90 * time.Second

// Session is an active browser tab.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	allocCancel context.CancelFunc

	cfg    config.BrowserConfig
	logger *zap.Logger

	mu       sync.Mutex
	isClosed bool
}

var (
	_ schemas.SessionContext = (*Session)(nil)
	_ schemas.Page           = (*Session)(nil)
)

// NewSession launches a browser and connects a fresh tab. The caller owns the
// session and must Close it.
func NewSession(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	sessionID := uuid.New().String()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(cfg)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// Force target creation so a dead Chrome binary fails here, not on the
	// first step.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}

	return &Session{
		id:          sessionID,
		ctx:         tabCtx,
		cancel:      tabCancel,
		allocCancel: allocCancel,
		cfg:         cfg,
		logger:      logger.Named("browser").With(zap.String("session_id", sessionID)),
	}, nil
}

// allocatorOptions builds the Chrome launch flags. The defaults keep the
// browser stable inside containers.
func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	return opts
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string { return s.id }

// runActions executes chromedp actions honoring both the session lifetime and
// the caller's context.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (s *Session) actionTimeout() time.Duration {
	if s.cfg.ActionTimeout > 0 {
		return s.cfg.ActionTimeout
	}
	return defaultActionTimeout
}

// stabilize waits for the DOM to be ready after navigation.
func (s *Session) stabilize(ctx context.Context) error {
	stabCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.runActions(stabCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug("WaitReady failed during stabilization.", zap.Error(err))
	}
	return nil
}

// -- schemas.SessionContext --

// Navigate loads the URL and waits for the page to settle.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating to URL", zap.String("url", url))

	navTimeout := s.cfg.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = defaultNavigationTimeout
	}
	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()

	if err := s.runActions(navCtx, chromedp.Navigate(url)); err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("navigation timed out after %s: %w", navTimeout, err)
		}
		return fmt.Errorf("navigation failed: %w", err)
	}
	return s.stabilize(ctx)
}

// Click clicks the element matching the locator.
func (s *Session) Click(ctx context.Context, loc schemas.Locator) error {
	sel, opt := toSelector(loc)
	return s.timedAction(ctx, "click", loc, chromedp.Tasks{
		chromedp.ScrollIntoView(sel, opt),
		chromedp.WaitVisible(sel, opt),
		chromedp.Click(sel, opt),
	})
}

// Type inputs text into the element matching the locator.
func (s *Session) Type(ctx context.Context, loc schemas.Locator, text string) error {
	sel, opt := toSelector(loc)
	return s.timedAction(ctx, "type", loc, chromedp.Tasks{
		chromedp.ScrollIntoView(sel, opt),
		chromedp.WaitVisible(sel, opt),
		chromedp.SendKeys(sel, text, opt),
	})
}

// Select sets the value of a <select> element and fires its change event.
func (s *Session) Select(ctx context.Context, loc schemas.Locator, value string) error {
	sel, opt := toSelector(loc)
	return s.timedAction(ctx, "select", loc, chromedp.Tasks{
		chromedp.WaitVisible(sel, opt),
		chromedp.SetValue(sel, value, opt),
		chromedp.Evaluate(dispatchChangeScript(loc), nil),
	})
}

// WaitVisible blocks until the element matching the locator is visible.
func (s *Session) WaitVisible(ctx context.Context, loc schemas.Locator) error {
	sel, opt := toSelector(loc)
	return s.timedAction(ctx, "wait_visible", loc, chromedp.WaitVisible(sel, opt))
}

func (s *Session) timedAction(ctx context.Context, name string, loc schemas.Locator, action chromedp.Action) error {
	s.logger.Debug("Running browser action", zap.String("action", name), zap.String("locator", string(loc)))

	actionCtx, cancel := context.WithTimeout(ctx, s.actionTimeout())
	defer cancel()

	if err := s.runActions(actionCtx, action); err != nil {
		return fmt.Errorf("%s failed for locator %q: %w", name, string(loc), err)
	}
	return nil
}

// Close terminates the tab and the browser process.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")

	// Callers often reach Close with their operational context already
	// canceled. Cleanup still needs the CDP target values, so the in-flight
	// page load is stopped on a detached view of the session context.
	stopCtx, stopCancel := context.WithTimeout(Detach(s.ctx), 5*time.Second)
	if err := chromedp.Run(stopCtx, page.StopLoading()); err != nil {
		s.logger.Debug("Stopping page load during shutdown failed.", zap.Error(err))
	}
	stopCancel()

	if err := chromedp.Cancel(s.ctx); err != nil {
		s.logger.Debug("Graceful browser shutdown failed.", zap.Error(err))
	}
	s.cancel()
	s.allocCancel()
	return nil
}

// -- schemas.Page --

// Find locates an element without waiting for it to appear. A nil handle
// with a nil error means the locator matched nothing.
func (s *Session) Find(ctx context.Context, loc schemas.Locator) (*schemas.ElementHandle, error) {
	sel, opt := toSelector(loc)

	findCtx, cancel := context.WithTimeout(ctx, s.actionTimeout())
	defer cancel()

	var nodes []*cdp.Node
	err := s.runActions(findCtx, chromedp.Nodes(sel, &nodes, opt, chromedp.AtLeast(0)))
	if err != nil {
		return nil, fmt.Errorf("element lookup failed for %q: %w", string(loc), err)
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return &schemas.ElementHandle{
		Locator: loc,
		Tag:     strings.ToLower(nodes[0].NodeName),
	}, nil
}

// AllText returns the trimmed own-text of every element that carries one.
func (s *Session) AllText(ctx context.Context) ([]string, error) {
	var texts []string
	if err := s.evaluate(ctx, allTextScript, &texts); err != nil {
		return nil, fmt.Errorf("failed to collect page text: %w", err)
	}
	return texts, nil
}

// AllIdentifiers returns the id, name and data-testid values present on the
// page, ids first.
func (s *Session) AllIdentifiers(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.evaluate(ctx, allIdentifiersScript, &ids); err != nil {
		return nil, fmt.Errorf("failed to collect page identifiers: %w", err)
	}
	return ids, nil
}

// StructuralSiblings proposes locators adjacent to where the broken locator
// would sit. Candidates are best-effort; callers verify them with Find.
func (s *Session) StructuralSiblings(ctx context.Context, loc schemas.Locator) ([]schemas.Locator, error) {
	script := fmt.Sprintf(structuralSiblingsScript, strconv.Quote(string(loc)))

	var raw []string
	if err := s.evaluate(ctx, script, &raw); err != nil {
		return nil, fmt.Errorf("failed to collect structural siblings: %w", err)
	}
	out := make([]schemas.Locator, 0, len(raw))
	for _, r := range raw {
		out = append(out, schemas.Locator(r))
	}
	return out, nil
}

func (s *Session) evaluate(ctx context.Context, script string, res interface{}) error {
	evalCtx, cancel := context.WithTimeout(ctx, s.actionTimeout())
	defer cancel()
	return s.runActions(evalCtx, chromedp.Evaluate(script, res))
}

// dispatchChangeScript fires input and change events on the element so pages
// with framework bindings observe the programmatic value set.
func dispatchChangeScript(loc schemas.Locator) string {
	sel, _ := toSelector(loc)
	resolver := fmt.Sprintf("document.querySelector(%s)", strconv.Quote(sel))
	if isXPath(loc) || strings.HasPrefix(string(loc), textLocatorPrefix) {
		resolver = fmt.Sprintf(
			"document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue",
			strconv.Quote(sel))
	}
	return fmt.Sprintf(`(function() {
		const el = %s;
		if (!el) { return; }
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
	})()`, resolver)
}

const allTextScript = `(function() {
	const out = [];
	for (const el of document.querySelectorAll('body *')) {
		let own = '';
		for (const n of el.childNodes) {
			if (n.nodeType === Node.TEXT_NODE) { own += n.textContent; }
		}
		own = own.replace(/\s+/g, ' ').trim();
		if (own) { out.push(own); }
	}
	return out;
})()`

const allIdentifiersScript = `(function() {
	const out = [];
	const seen = new Set();
	const push = (v) => { if (v && !seen.has(v)) { seen.add(v); out.push(v); } };
	for (const el of document.querySelectorAll('[id]')) { push(el.id); }
	for (const el of document.querySelectorAll('[name]')) { push(el.getAttribute('name')); }
	for (const el of document.querySelectorAll('[data-testid]')) { push(el.getAttribute('data-testid')); }
	return out;
})()`

// structuralSiblingsScript takes the broken locator (as a quoted JS string via
// %s). If the locator still resolves, it enumerates the element's siblings;
// otherwise it trims the last combinator segment and enumerates the children
// of the surviving prefix.
const structuralSiblingsScript = `(function(sel) {
	function resolve(s) {
		try {
			if (s.startsWith('/') || s.startsWith('(')) {
				return document.evaluate(s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
			}
			return document.querySelector(s);
		} catch (e) { return null; }
	}
	function locatorFor(el, scopeSel, idx) {
		if (el.id) { return '#' + el.id; }
		const name = el.getAttribute('name');
		if (name) { return el.tagName.toLowerCase() + '[name="' + name + '"]'; }
		const testid = el.getAttribute('data-testid');
		if (testid) { return '[data-testid="' + testid + '"]'; }
		return scopeSel + ' > ' + el.tagName.toLowerCase() + ':nth-child(' + idx + ')';
	}
	let scope = null;
	let scopeSel = 'body';
	const el = resolve(sel);
	if (el && el.parentElement) {
		scope = el.parentElement;
	} else {
		const cut = Math.max(sel.lastIndexOf('>'), sel.lastIndexOf(' '));
		if (cut > 0) {
			let prefix = sel.slice(0, cut).trim();
			if (prefix.endsWith('>')) { prefix = prefix.slice(0, -1).trim(); }
			const parent = resolve(prefix);
			if (parent) { scope = parent; scopeSel = prefix; }
		}
	}
	if (!scope) { return []; }
	const out = [];
	for (let i = 0; i < scope.children.length; i++) {
		out.push(locatorFor(scope.children[i], scopeSel, i + 1));
	}
	return out;
})(%s)`
