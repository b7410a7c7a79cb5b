// File: internal/browser/snapshot_test.go
package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidwalkr/restitch/api/schemas"
)

const checkoutHTML = `<!DOCTYPE html>
<html>
<body>
  <h1>Checkout</h1>
  <form id="checkout-form">
    <input id="email" name="email_address" type="text">
    <select name="country"><option>US</option></select>
    <div data-testid="promo-box">Promo code</div>
    <button id="submit-button" type="submit">Submit Order</button>
  </form>
  <p>Thanks for   shopping   with us</p>
</body>
</html>`

func mustSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	snap, err := ParseSnapshot(checkoutHTML)
	require.NoError(t, err)
	return snap
}

func TestSnapshotFind_ByID(t *testing.T) {
	snap := mustSnapshot(t)

	h, err := snap.Find(context.Background(), "#submit-button")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "button", h.Tag)
	assert.Equal(t, "Submit Order", h.Text)
}

func TestSnapshotFind_ByAttribute(t *testing.T) {
	snap := mustSnapshot(t)

	h, err := snap.Find(context.Background(), `[data-testid="promo-box"]`)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "div", h.Tag)

	h, err = snap.Find(context.Background(), `input[name="email_address"]`)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "input", h.Tag)
}

func TestSnapshotFind_ByText(t *testing.T) {
	snap := mustSnapshot(t)

	h, err := snap.Find(context.Background(), "text=Submit Order")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "button", h.Tag)
}

func TestSnapshotFind_NoMatchIsNilNil(t *testing.T) {
	snap := mustSnapshot(t)

	h, err := snap.Find(context.Background(), "#does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestSnapshotFind_XPathUnsupported(t *testing.T) {
	snap := mustSnapshot(t)

	h, err := snap.Find(context.Background(), "//button[@type='submit']")
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestSnapshotFind_DescendantChain(t *testing.T) {
	snap := mustSnapshot(t)

	h, err := snap.Find(context.Background(), "#checkout-form > button")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "button", h.Tag)
}

func TestSnapshotAllText(t *testing.T) {
	snap := mustSnapshot(t)

	texts, err := snap.AllText(context.Background())
	require.NoError(t, err)
	assert.Contains(t, texts, "Checkout")
	assert.Contains(t, texts, "Submit Order")
	// Whitespace is collapsed.
	assert.Contains(t, texts, "Thanks for shopping with us")
}

func TestSnapshotAllIdentifiers(t *testing.T) {
	snap := mustSnapshot(t)

	ids, err := snap.AllIdentifiers(context.Background())
	require.NoError(t, err)
	assert.Contains(t, ids, "checkout-form")
	assert.Contains(t, ids, "submit-button")
	assert.Contains(t, ids, "email_address")
	assert.Contains(t, ids, "promo-box")
	// ids come before name/data-testid values.
	assert.Less(t, indexOf(ids, "submit-button"), indexOf(ids, "email_address"))
}

func TestSnapshotStructuralSiblings_ResolvableLocator(t *testing.T) {
	snap := mustSnapshot(t)

	sibs, err := snap.StructuralSiblings(context.Background(), "#email")
	require.NoError(t, err)
	assert.Contains(t, sibs, schemas.Locator("#submit-button"))
	assert.Contains(t, sibs, schemas.Locator(`[data-testid="promo-box"]`))
	assert.Contains(t, sibs, schemas.Locator(`select[name="country"]`))
}

func TestSnapshotStructuralSiblings_BrokenLocatorUsesPrefix(t *testing.T) {
	snap := mustSnapshot(t)

	sibs, err := snap.StructuralSiblings(context.Background(), "#checkout-form > missing")
	require.NoError(t, err)
	assert.Contains(t, sibs, schemas.Locator("#email"))
	assert.Contains(t, sibs, schemas.Locator("#submit-button"))
}

func TestSnapshotStructuralSiblings_NoScope(t *testing.T) {
	snap := mustSnapshot(t)

	sibs, err := snap.StructuralSiblings(context.Background(), "#gone")
	require.NoError(t, err)
	assert.Empty(t, sibs)
}

func indexOf(xs []string, want string) int {
	for i, x := range xs {
		if x == want {
			return i
		}
	}
	return -1
}
