// internal/browser/detector.go
package browser

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/0xfaultline/chatmux/api/schemas"
	"github.com/0xfaultline/chatmux/internal/config"
)

// State is one node of the completion detector's polling state machine.
type State int

const (
	// StateGenerating: a stop control or streaming indicator is visible.
	StateGenerating State = iota
	// StateStablePending: extracted text is unchanged but not yet confirmed.
	StateStablePending
	// StateDone: text held steady for the configured number of polls.
	StateDone
	// StateTimedOut: the ceiling elapsed before stability was confirmed.
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateGenerating:
		return "GENERATING"
	case StateStablePending:
		return "STABLE_PENDING"
	case StateDone:
		return "DONE"
	case StateTimedOut:
		return "TIMED_OUT"
	default:
		return "UNKNOWN"
	}
}

// ResponseProbe is the detector's view of a page: one generation-activity
// check and one text extraction per poll. The production probe evaluates
// JavaScript on a live tab; tests script the sequence directly.
type ResponseProbe interface {
	Generating(ctx context.Context) (bool, error)
	Extract(ctx context.Context) (string, error)
}

// Detector decides when a streaming, non-deterministic response has finished
// rendering. It owns no page state; each Await is independent.
type Detector struct {
	cfg    config.DetectorConfig
	logger *zap.Logger
}

func NewDetector(cfg config.DetectorConfig, logger *zap.Logger) *Detector {
	return &Detector{cfg: cfg, logger: logger.Named("detector")}
}

// Await polls the probe until the response stops changing or the ceiling
// elapses. On timeout it still returns the last extracted text when lenient
// timeouts are enabled (the configured default, preserving the
// partial-answer-beats-no-answer trade-off); otherwise the text is returned
// alongside ErrGenerationTimeout.
func (d *Detector) Await(ctx context.Context, probe ResponseProbe) (string, schemas.CompletionState, error) {
	// Grace delay: let generation visibly begin before judging stability,
	// otherwise the pre-response DOM looks like a finished empty answer.
	if err := sleepCtx(ctx, d.cfg.GraceDelay); err != nil {
		return "", schemas.CompletionTimedOut, err
	}

	deadline := time.Now().Add(d.cfg.Ceiling)
	state := StateGenerating
	stable := 0
	lastLen := -1
	lastText := ""

	for time.Now().Before(deadline) && state != StateDone {
		if err := ctx.Err(); err != nil {
			return lastText, schemas.CompletionTimedOut, err
		}

		generating, err := probe.Generating(ctx)
		if err != nil {
			// A flaky probe round is indistinguishable from a DOM in
			// transition; treat it as still generating and re-poll.
			d.logger.Debug("Generation probe failed; re-polling.", zap.Error(err))
			generating = true
		}

		if generating {
			state = StateGenerating
			stable = 0
		} else {
			text, err := probe.Extract(ctx)
			if err != nil {
				d.logger.Debug("Extraction probe failed; re-polling.", zap.Error(err))
			} else {
				if len(text) > 0 && len(text) == lastLen {
					stable++
					state = StateStablePending
					if stable >= d.cfg.StableThreshold {
						state = StateDone
						lastText = text
						break
					}
				} else {
					stable = 0
					lastLen = len(text)
					state = StateStablePending
				}
				if text != "" {
					lastText = text
				}
			}
		}

		if err := sleepCtx(ctx, d.cfg.PollInterval); err != nil {
			return lastText, schemas.CompletionTimedOut, err
		}
	}

	if state != StateDone {
		state = StateTimedOut
	}

	// One settle delay and a final extraction pass: late markdown re-renders
	// land just after the text length stops moving.
	if err := sleepCtx(ctx, d.cfg.SettleDelay); err == nil {
		if final, err := probe.Extract(ctx); err == nil && final != "" {
			lastText = final
		}
	}

	if state == StateTimedOut {
		d.logger.Warn("Response wait hit the polling ceiling.",
			zap.Duration("ceiling", d.cfg.Ceiling), zap.Int("extracted_len", len(lastText)))
		if !d.cfg.LenientTimeout {
			return lastText, schemas.CompletionTimedOut, ErrGenerationTimeout
		}
		return lastText, schemas.CompletionTimedOut, nil
	}
	return lastText, schemas.CompletionDone, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
