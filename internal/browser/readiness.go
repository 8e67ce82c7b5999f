// internal/browser/readiness.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/0xfaultline/chatmux/internal/config"
)

// readinessProbeInterval is how often one selector variant is re-checked
// within its per-variant window.
const readinessProbeInterval = 250 * time.Millisecond

// visibleSelectorScript reports whether a selector resolves to a rendered
// element. Presence alone is not enough: hidden template copies of the input
// exist in some markup variants.
const visibleSelectorScript = `
	(function(sel) {
		const el = document.querySelector(sel);
		if (!el) return false;
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	})(%s)
`

// WaitReady decides that a page is ready by attempting each known input
// selector variant in priority order, each with a bounded window. The
// variants are redundant by design; the variance is the target application's
// markup across versions and locales, not ours. Returns the variant that
// matched, or ErrInputNotFound when none resolve within the aggregate
// timeout.
func WaitReady(ctx context.Context, page Page, target config.TargetConfig) (string, error) {
	for _, sel := range target.InputSelectors {
		deadline := time.Now().Add(target.VariantTimeout)
		for time.Now().Before(deadline) {
			if err := ctx.Err(); err != nil {
				return "", err
			}

			var visible bool
			err := page.Evaluate(ctx, fmt.Sprintf(visibleSelectorScript, jsArg(sel)), &visible)
			if err == nil && visible {
				return sel, nil
			}

			select {
			case <-time.After(readinessProbeInterval):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", fmt.Errorf("%w: tried %d variants over %v each",
		ErrInputNotFound, len(target.InputSelectors), target.VariantTimeout)
}
