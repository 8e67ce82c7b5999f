// internal/browser/probe.go
package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/0xfaultline/chatmux/internal/config"
)

// minExtractedLen filters out icon labels and truncated fragments that a
// too-broad selector occasionally matches.
const minExtractedLen = 10

// anySelectorScript reports whether any selector in the list resolves.
const anySelectorScript = `
	(function(selectors) {
		return selectors.some(sel => document.querySelector(sel) !== null);
	})(%s)
`

// lastMatchTextScript returns the rendered text of the last node matching a
// selector, or an empty string.
const lastMatchTextScript = `
	(function(sel) {
		const nodes = document.querySelectorAll(sel);
		if (!nodes.length) return '';
		return nodes[nodes.length - 1].innerText || '';
	})(%s)
`

// trailingBlockScript is the last-resort extraction: scan backwards through
// the main conversation region for the last block of substantial text that is
// not part of the composer.
const trailingBlockScript = `
	(function() {
		const region = document.querySelector('main') || document.body;
		const blocks = region.querySelectorAll('div, article, section');
		for (let i = blocks.length - 1; i >= 0; i--) {
			const el = blocks[i];
			if (el.querySelector('textarea, [contenteditable]')) continue;
			const text = (el.innerText || '').trim();
			if (text.length > 10) return text;
		}
		return '';
	})()
`

// domProbe implements ResponseProbe against a live page using the configured
// DOM contract.
type domProbe struct {
	page   Page
	target config.TargetConfig
}

func newDOMProbe(page Page, target config.TargetConfig) *domProbe {
	return &domProbe{page: page, target: target}
}

// Generating reports whether a stop/cancel control or a generic streaming
// indicator is currently present.
func (p *domProbe) Generating(ctx context.Context) (bool, error) {
	selectors := make([]string, 0, len(p.target.StopSelectors)+len(p.target.BusySelectors))
	selectors = append(selectors, p.target.StopSelectors...)
	selectors = append(selectors, p.target.BusySelectors...)

	var active bool
	if err := p.page.Evaluate(ctx, fmt.Sprintf(anySelectorScript, jsArg(selectors)), &active); err != nil {
		return false, err
	}
	return active, nil
}

// Extract runs the prioritized strategy cascade: each configured message
// selector in order, then the trailing-block scan. The first strategy
// yielding text longer than the minimum that is not stopped-generation
// boilerplate wins. All-strategies-failed is not an error; it returns an
// empty string and the caller substitutes the sentinel.
func (p *domProbe) Extract(ctx context.Context) (string, error) {
	scripts := make([]string, 0, len(p.target.MessageSelectors)+1)
	for _, sel := range p.target.MessageSelectors {
		scripts = append(scripts, fmt.Sprintf(lastMatchTextScript, jsArg(sel)))
	}
	scripts = append(scripts, trailingBlockScript)

	var lastErr error
	evaluated := false
	for _, script := range scripts {
		var text string
		if err := p.page.Evaluate(ctx, script, &text); err != nil {
			lastErr = err
			continue
		}
		evaluated = true
		text = strings.TrimSpace(text)
		if len(text) > minExtractedLen && !p.isStoppedBoilerplate(text) {
			return text, nil
		}
	}
	if !evaluated && lastErr != nil {
		return "", lastErr
	}
	return "", nil
}

func (p *domProbe) isStoppedBoilerplate(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range p.target.StoppedPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}
