// internal/browser/page.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	json "github.com/json-iterator/go"
)

// Page is the minimal tab surface the driver, readiness wait and completion
// detector need. The production implementation speaks CDP through chromedp;
// tests substitute scripted fakes.
type Page interface {
	// Navigate loads the given URL and waits for the navigation to commit.
	Navigate(ctx context.Context, url string) error
	// Evaluate runs a JavaScript expression in the page and unmarshals its
	// value into out. A nil out discards the result.
	Evaluate(ctx context.Context, script string, out any) error
	// PressEnter dispatches a raw keyboard Enter through the input domain,
	// the lowest-level send fallback.
	PressEnter(ctx context.Context) error
	// URL reports the tab's current location.
	URL(ctx context.Context) (string, error)
}

const (
	evaluateTimeout = 20 * time.Second
	keyEventTimeout = 10 * time.Second
)

// cdpPage adapts one chromedp tab context to the Page interface.
type cdpPage struct {
	// tab is the long-lived chromedp context bound to this target. Never
	// cancelled during normal operation: the underlying browser is externally
	// owned and its tabs outlive this process.
	tab    context.Context
	logger *zap.Logger

	navigationTimeout time.Duration
}

func newCDPPage(tab context.Context, navTimeout time.Duration, logger *zap.Logger) *cdpPage {
	return &cdpPage{tab: tab, navigationTimeout: navTimeout, logger: logger.Named("page")}
}

// run executes chromedp actions against the tab with an operation timeout,
// aborting early if the caller's context is cancelled.
func (p *cdpPage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(p.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(opCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("operation timed out after %v: %w", timeout, err)
		}
		return err
	}
	return nil
}

func (p *cdpPage) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating tab.", zap.String("url", url))
	if err := p.run(ctx, p.navigationTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (p *cdpPage) Evaluate(ctx context.Context, script string, out any) error {
	return p.run(ctx, evaluateTimeout,
		chromedp.Evaluate(script, out, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
			return ep.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
		}),
	)
}

func (p *cdpPage) PressEnter(ctx context.Context) error {
	return p.run(ctx, keyEventTimeout, chromedp.KeyEvent(kb.Enter))
}

func (p *cdpPage) URL(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, keyEventTimeout, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read tab location: %w", err)
	}
	return loc, nil
}

// jsArg safely encodes a Go value for embedding into a JS expression.
func jsArg(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
