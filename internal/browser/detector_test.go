// internal/browser/detector_test.go
package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/0xfaultline/chatmux/api/schemas"
	"github.com/0xfaultline/chatmux/internal/config"
)

func fastDetectorConfig() config.DetectorConfig {
	return config.DetectorConfig{
		PollInterval:    time.Millisecond,
		Ceiling:         250 * time.Millisecond,
		GraceDelay:      0,
		SettleDelay:     0,
		StableThreshold: 3,
		LenientTimeout:  true,
	}
}

func TestDetectorAwait(t *testing.T) {
	t.Run("stable text is reported done", func(t *testing.T) {
		const answer = "The answer held steady across polls."
		probe := &fakeProbe{
			extract: func(int) (string, error) { return answer, nil },
		}

		d := NewDetector(fastDetectorConfig(), zap.NewNop())
		text, completion, err := d.Await(context.Background(), probe)

		require.NoError(t, err)
		assert.Equal(t, schemas.CompletionDone, completion)
		assert.Equal(t, answer, text)
	})

	t.Run("growing text resets the stability count", func(t *testing.T) {
		// Text grows for the first four polls, then freezes. Done must not
		// fire before the frozen text repeats StableThreshold times.
		texts := []string{"chunk", "chunk chunk", "chunk chunk chunk", "the final consolidated answer"}
		probe := &fakeProbe{
			extract: func(poll int) (string, error) {
				if poll > len(texts) {
					return texts[len(texts)-1], nil
				}
				return texts[poll-1], nil
			},
		}

		d := NewDetector(fastDetectorConfig(), zap.NewNop())
		text, completion, err := d.Await(context.Background(), probe)

		require.NoError(t, err)
		assert.Equal(t, schemas.CompletionDone, completion)
		assert.Equal(t, "the final consolidated answer", text)
		assert.GreaterOrEqual(t, probe.pollCount(), 7, "stability must be re-counted after each change")
	})

	t.Run("stuck generation indicator times out leniently with last text", func(t *testing.T) {
		// The stop control never disappears. The wait must end at the ceiling
		// and still hand back whatever the settle pass extracted.
		probe := &fakeProbe{
			generating: func(int) (bool, error) { return true, nil },
			extract:    func(int) (string, error) { return "partial answer so far", nil },
		}

		d := NewDetector(fastDetectorConfig(), zap.NewNop())
		text, completion, err := d.Await(context.Background(), probe)

		require.NoError(t, err)
		assert.Equal(t, schemas.CompletionTimedOut, completion)
		assert.Equal(t, "partial answer so far", text)
	})

	t.Run("strict mode surfaces the timeout as an error", func(t *testing.T) {
		cfg := fastDetectorConfig()
		cfg.LenientTimeout = false
		probe := &fakeProbe{
			generating: func(int) (bool, error) { return true, nil },
			extract:    func(int) (string, error) { return "partial answer so far", nil },
		}

		d := NewDetector(cfg, zap.NewNop())
		text, completion, err := d.Await(context.Background(), probe)

		require.ErrorIs(t, err, ErrGenerationTimeout)
		assert.Equal(t, schemas.CompletionTimedOut, completion)
		assert.Equal(t, "partial answer so far", text)
	})

	t.Run("probe errors are treated as still generating", func(t *testing.T) {
		// Three flaky rounds, then a clean stable answer. The flakes must not
		// end the wait or count toward stability.
		probe := &fakeProbe{
			generating: func(poll int) (bool, error) {
				if poll <= 3 {
					return false, errors.New("execution context destroyed")
				}
				return false, nil
			},
			extract: func(int) (string, error) { return "recovered after the flaky rounds", nil },
		}

		d := NewDetector(fastDetectorConfig(), zap.NewNop())
		text, completion, err := d.Await(context.Background(), probe)

		require.NoError(t, err)
		assert.Equal(t, schemas.CompletionDone, completion)
		assert.Equal(t, "recovered after the flaky rounds", text)
	})

	t.Run("cancellation stops the wait", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		probe := &fakeProbe{
			generating: func(poll int) (bool, error) {
				if poll == 2 {
					cancel()
				}
				return true, nil
			},
		}

		cfg := fastDetectorConfig()
		cfg.Ceiling = 10 * time.Second
		d := NewDetector(cfg, zap.NewNop())

		_, completion, err := d.Await(ctx, probe)
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, schemas.CompletionTimedOut, completion)
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "GENERATING", StateGenerating.String())
	assert.Equal(t, "STABLE_PENDING", StateStablePending.String())
	assert.Equal(t, "DONE", StateDone.String())
	assert.Equal(t, "TIMED_OUT", StateTimedOut.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}
