// internal/browser/probe_test.go
package browser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xfaultline/chatmux/internal/config"
)

func probeTarget() config.TargetConfig {
	return config.TargetConfig{
		StopSelectors:    []string{`button[data-testid="stop-button"]`},
		BusySelectors:    []string{`.result-streaming`},
		MessageSelectors: []string{`main .assistant-turn`, `main .markdown`},
		StoppedPhrases:   []string{"You stopped generating"},
	}
}

func TestDOMProbeGenerating(t *testing.T) {
	t.Run("any stop or busy selector means generating", func(t *testing.T) {
		page := &fakePage{
			EvaluateFunc: func(_ context.Context, script string, out any) error {
				require.Contains(t, script, "stop-button")
				require.Contains(t, script, "result-streaming")
				setOut(out, true)
				return nil
			},
		}
		active, err := newDOMProbe(page, probeTarget()).Generating(context.Background())
		require.NoError(t, err)
		assert.True(t, active)
	})

	t.Run("evaluation failure is surfaced", func(t *testing.T) {
		page := &fakePage{
			EvaluateFunc: func(_ context.Context, _ string, _ any) error {
				return errors.New("target crashed")
			},
		}
		_, err := newDOMProbe(page, probeTarget()).Generating(context.Background())
		require.Error(t, err)
	})
}

func TestDOMProbeExtract(t *testing.T) {
	t.Run("short matches are skipped for a later substantial one", func(t *testing.T) {
		page := &fakePage{
			EvaluateFunc: func(_ context.Context, script string, out any) error {
				switch {
				case strings.Contains(script, "assistant-turn"):
					setOut(out, "Okay.")
				case strings.Contains(script, "markdown"):
					setOut(out, "A substantial rendered answer from the second strategy.")
				}
				return nil
			},
		}

		text, err := newDOMProbe(page, probeTarget()).Extract(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "A substantial rendered answer from the second strategy.", text)
	})

	t.Run("stopped-generation boilerplate is not an answer", func(t *testing.T) {
		page := &fakePage{
			EvaluateFunc: func(_ context.Context, script string, out any) error {
				if strings.Contains(script, "assistant-turn") {
					setOut(out, "You stopped generating this response")
				}
				return nil
			},
		}

		text, err := newDOMProbe(page, probeTarget()).Extract(context.Background())
		require.NoError(t, err)
		assert.Empty(t, text)
	})

	t.Run("trailing block scan is the last resort", func(t *testing.T) {
		page := &fakePage{
			EvaluateFunc: func(_ context.Context, script string, out any) error {
				if strings.Contains(script, "blocks") {
					setOut(out, "Fallback text scraped from the conversation region.")
				}
				return nil
			},
		}

		text, err := newDOMProbe(page, probeTarget()).Extract(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Fallback text scraped from the conversation region.", text)
	})

	t.Run("nothing extractable is empty, not an error", func(t *testing.T) {
		page := &fakePage{}
		text, err := newDOMProbe(page, probeTarget()).Extract(context.Background())
		require.NoError(t, err)
		assert.Empty(t, text)
	})

	t.Run("all strategies failing to evaluate is an error", func(t *testing.T) {
		page := &fakePage{
			EvaluateFunc: func(_ context.Context, _ string, _ any) error {
				return errors.New("page went away")
			},
		}
		_, err := newDOMProbe(page, probeTarget()).Extract(context.Background())
		require.Error(t, err)
	})
}
