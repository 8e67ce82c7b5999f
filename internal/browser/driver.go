// internal/browser/driver.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/0xfaultline/chatmux/api/schemas"
	"github.com/0xfaultline/chatmux/internal/config"
)

// SessionProvider hands out ready per-agent sessions. Implemented by the
// Registry; faked in tests.
type SessionProvider interface {
	AgentPage(ctx context.Context, agentID string) (*AgentSession, error)
	AgentURL(agentID string) string
}

// injectTextScript assigns message text directly into the first resolving
// input variant and fires a synthetic input event, rather than simulating
// keystrokes. Returns the selector that took the text, or ''.
const injectTextScript = `
	(function(selectors, text) {
		for (const sel of selectors) {
			const el = document.querySelector(sel);
			if (!el) continue;
			el.focus();
			if (el.tagName === 'TEXTAREA' || el.tagName === 'INPUT') {
				el.value = text;
			} else {
				el.innerText = text;
			}
			el.dispatchEvent(new InputEvent('input', { bubbles: true }));
			return sel;
		}
		return '';
	})(%s, %s)
`

// clickSendButtonScript clicks the first enabled send button variant.
const clickSendButtonScript = `
	(function(selectors) {
		for (const sel of selectors) {
			const btn = document.querySelector(sel);
			if (btn && !btn.disabled && btn.getAttribute('aria-disabled') !== 'true') {
				btn.click();
				return true;
			}
		}
		return false;
	})(%s)
`

// syntheticEnterScript dispatches a synthetic Enter keydown on the input.
const syntheticEnterScript = `
	(function(selectors) {
		for (const sel of selectors) {
			const el = document.querySelector(sel);
			if (!el) continue;
			el.focus();
			el.dispatchEvent(new KeyboardEvent('keydown', {
				key: 'Enter', code: 'Enter', keyCode: 13, bubbles: true
			}));
			return true;
		}
		return false;
	})(%s)
`

// dismissOverlayScript clicks one overlay dismiss control if present.
const dismissOverlayScript = `
	(function(sel) {
		const el = document.querySelector(sel);
		if (!el) return false;
		el.click();
		return true;
	})(%s)
`

// Driver performs the type, send, wait, extract protocol against one agent's
// page. It implements schemas.MessageSender.
type Driver struct {
	sessions SessionProvider
	detector *Detector
	target   config.TargetConfig
	logger   *zap.Logger

	sendRate rate.Limit

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

var _ schemas.MessageSender = (*Driver)(nil)

// NewDriver creates an interaction driver. A non-positive send rate disables
// throttling.
func NewDriver(sessions SessionProvider, detector *Detector, target config.TargetConfig, browserCfg config.BrowserConfig, logger *zap.Logger) *Driver {
	sendRate := rate.Inf
	if browserCfg.SendRatePerMinute > 0 {
		sendRate = rate.Limit(float64(browserCfg.SendRatePerMinute) / 60.0)
	}
	return &Driver{
		sessions: sessions,
		detector: detector,
		target:   target,
		logger:   logger.Named("driver"),
		sendRate: sendRate,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (d *Driver) limiter(agentID string) *rate.Limiter {
	d.limiterMu.Lock()
	defer d.limiterMu.Unlock()
	lim, ok := d.limiters[agentID]
	if !ok {
		lim = rate.NewLimiter(d.sendRate, 1)
		d.limiters[agentID] = lim
	}
	return lim
}

// SendMessage performs one full exchange with the given agent. The whole
// exchange holds the session lock: a second send for the same agent waits
// instead of racing the injection and trigger steps.
func (d *Driver) SendMessage(ctx context.Context, agentID, text string) (*schemas.SendResult, error) {
	start := time.Now()

	sess, err := d.sessions.AgentPage(ctx, agentID)
	if err != nil {
		return nil, err
	}
	sess.Lock()
	defer sess.Unlock()

	if err := d.limiter(agentID).Wait(ctx); err != nil {
		return nil, err
	}

	page := sess.Page()
	d.dismissOverlays(ctx, page)

	if err := d.injectText(ctx, page, text); err != nil {
		return nil, err
	}

	method, err := d.triggerSend(ctx, page)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("Message dispatched.",
		zap.String("agent_id", agentID), zap.String("method", string(method)))

	response, completion, err := d.detector.Await(ctx, newDOMProbe(page, d.target))
	if err != nil {
		return nil, err
	}
	if response == "" {
		response = ResponseUnavailable
	}

	return &schemas.SendResult{
		AccountID:  agentID,
		Prompt:     text,
		Response:   response,
		Method:     method,
		Completion: completion,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// StartConversation points the agent's tab at a fresh conversation and waits
// for it to become usable again.
func (d *Driver) StartConversation(ctx context.Context, agentID string) error {
	sess, err := d.sessions.AgentPage(ctx, agentID)
	if err != nil {
		return err
	}
	sess.Lock()
	defer sess.Unlock()

	if err := sess.Page().Navigate(ctx, d.sessions.AgentURL(agentID)); err != nil {
		return fmt.Errorf("failed to start fresh conversation for agent %s: %w", agentID, err)
	}
	if _, err := WaitReady(ctx, sess.Page(), d.target); err != nil {
		return err
	}
	return nil
}

// ConversationURL reports the agent tab's current URL.
func (d *Driver) ConversationURL(ctx context.Context, agentID string) (string, error) {
	sess, err := d.sessions.AgentPage(ctx, agentID)
	if err != nil {
		return "", err
	}
	sess.Lock()
	defer sess.Unlock()
	return sess.Page().URL(ctx)
}

// dismissOverlays clicks away known dialog and popover patterns. Overlays are
// optional noise, not an error condition: every attempt is independently
// swallowed.
func (d *Driver) dismissOverlays(ctx context.Context, page Page) {
	for _, sel := range d.target.OverlaySelectors {
		var clicked bool
		err := page.Evaluate(ctx, fmt.Sprintf(dismissOverlayScript, jsArg(sel)), &clicked)
		if err != nil {
			d.logger.Debug("Overlay dismissal attempt failed.", zap.String("selector", sel), zap.Error(err))
			continue
		}
		if clicked {
			d.logger.Debug("Dismissed overlay.", zap.String("selector", sel))
		}
	}
}

func (d *Driver) injectText(ctx context.Context, page Page, text string) error {
	script := fmt.Sprintf(injectTextScript, jsArg(d.target.InputSelectors), jsArg(text))
	var matched string
	if err := page.Evaluate(ctx, script, &matched); err != nil {
		return fmt.Errorf("%w: injection script failed: %v", ErrInputInjection, err)
	}
	if matched == "" {
		return ErrInputInjection
	}
	return nil
}

// triggerSend fires the message using the first of three fallbacks that
// works: a send button click, a synthetic Enter on the input, and finally a
// raw keyboard Enter through CDP. The winning method is recorded on the
// result for diagnostics.
func (d *Driver) triggerSend(ctx context.Context, page Page) (schemas.SendMethod, error) {
	var clicked bool
	err := page.Evaluate(ctx, fmt.Sprintf(clickSendButtonScript, jsArg(d.target.SendButtonSelectors)), &clicked)
	if err == nil && clicked {
		return schemas.SendViaButton, nil
	}
	if err != nil {
		d.logger.Debug("Send button click failed; trying synthetic Enter.", zap.Error(err))
	}

	var dispatched bool
	err = page.Evaluate(ctx, fmt.Sprintf(syntheticEnterScript, jsArg(d.target.InputSelectors)), &dispatched)
	if err == nil && dispatched {
		return schemas.SendViaSyntheticEnter, nil
	}
	if err != nil {
		d.logger.Debug("Synthetic Enter failed; trying raw keyboard Enter.", zap.Error(err))
	}

	if err := page.PressEnter(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSendTriggerExhausted, err)
	}
	return schemas.SendViaHardwareEnter, nil
}
