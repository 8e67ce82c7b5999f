// internal/discussion/parallel_test.go
package discussion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

const splitReply = `Here is the decomposition you asked for:
` + "```json" + `
{"subtasks": [
  {"id": 1, "task": "Survey the storage engines", "focus": "storage"},
  {"id": 2, "task": "Measure the write amplification", "focus": "performance"},
  {"id": 3, "task": "List the operational pitfalls", "focus": "operations"}
]}
` + "```"

// scriptedParallelSender answers each phase distinctly so the test can follow
// text through the protocol.
func scriptedParallelSender() *fakeSender {
	s := &fakeSender{}
	s.reply = func(agentID, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Decompose"):
			return splitReply, nil
		case strings.Contains(prompt, "sub-task"):
			return "execution by " + agentID, nil
		case strings.Contains(prompt, "Review the following answer"):
			return "review by " + agentID, nil
		case strings.Contains(prompt, "Consolidate"):
			return "consolidated summary", nil
		}
		return "reply from " + agentID, nil
	}
	return s
}

func TestRunParallel(t *testing.T) {
	t.Run("four phases produce eight turns and the lead's summary", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		sender := scriptedParallelSender()
		o, err := New(sender, nil, testPanelConfig(), zap.NewNop())
		require.NoError(t, err)

		result, err := o.RunParallel(context.Background(), ParallelRequest{
			RoomID:   "room-1",
			Question: "Which storage engine should we use?",
		})
		require.NoError(t, err)

		require.Len(t, result.Turns, 8)
		assert.Equal(t, 1, result.Turns[0].Round)
		assert.Equal(t, "1", result.Turns[0].AccountID)
		for _, turn := range result.Turns[1:4] {
			assert.Equal(t, 2, turn.Round)
		}
		for _, turn := range result.Turns[4:7] {
			assert.Equal(t, 3, turn.Round)
		}
		assert.Equal(t, 4, result.Turns[7].Round)
		assert.Equal(t, "consolidated summary", result.FinalAnswer)

		// The parsed decomposition drives the execution prompts one-to-one.
		require.Len(t, result.Subtasks, 3)
		assert.Equal(t, "Survey the storage engines", result.Subtasks[0].Task)
		assert.Contains(t, sender.promptFor("1", 1), "Survey the storage engines")
		assert.Contains(t, sender.promptFor("2", 0), "Measure the write amplification")
		assert.Contains(t, sender.promptFor("3", 0), "List the operational pitfalls")
	})

	t.Run("reviews follow the cyclic assignment", func(t *testing.T) {
		sender := scriptedParallelSender()
		o, err := New(sender, nil, testPanelConfig(), zap.NewNop())
		require.NoError(t, err)

		_, err = o.RunParallel(context.Background(), ParallelRequest{Question: "q"})
		require.NoError(t, err)

		// Agent 1 reviews agent 2's execution, 2 reviews 3, 3 wraps to 1.
		assert.Contains(t, sender.promptFor("1", 2), "execution by 2")
		assert.Contains(t, sender.promptFor("2", 1), "execution by 3")
		assert.Contains(t, sender.promptFor("3", 1), "execution by 1")
	})

	t.Run("an unparsable split degrades to the default decomposition", func(t *testing.T) {
		sender := scriptedParallelSender()
		inner := sender.reply
		sender.reply = func(agentID, prompt string) (string, error) {
			if strings.Contains(prompt, "Decompose") {
				return "I would rather discuss this in prose, no JSON today.", nil
			}
			return inner(agentID, prompt)
		}
		o, err := New(sender, nil, testPanelConfig(), zap.NewNop())
		require.NoError(t, err)

		result, err := o.RunParallel(context.Background(), ParallelRequest{Question: "q"})
		require.NoError(t, err)

		require.Len(t, result.Subtasks, 3)
		assert.Equal(t, "technical", result.Subtasks[0].Focus)
		assert.Contains(t, sender.promptFor("1", 1), "technical dimension")
		assert.Len(t, result.Turns, 8)
	})

	t.Run("one failed executor does not abort its siblings", func(t *testing.T) {
		sender := scriptedParallelSender()
		inner := sender.reply
		sender.reply = func(agentID, prompt string) (string, error) {
			if agentID == "2" && strings.Contains(prompt, "sub-task") {
				return "", errors.New("detached frame")
			}
			return inner(agentID, prompt)
		}
		o, err := New(sender, nil, testPanelConfig(), zap.NewNop())
		require.NoError(t, err)

		result, err := o.RunParallel(context.Background(), ParallelRequest{Question: "q"})
		require.NoError(t, err)
		require.Len(t, result.Turns, 8)

		marker := result.Turns[2].Response
		assert.Contains(t, marker, "Engineer (agent 2) failed to respond")
		assert.Equal(t, "execution by 1", result.Turns[1].Response)
		assert.Equal(t, "execution by 3", result.Turns[3].Response)

		// Agent 1 still reviews the marker text in phase 3.
		assert.Contains(t, sender.promptFor("1", 2), "failed to respond")
		assert.Equal(t, "consolidated summary", result.FinalAnswer)
	})

	t.Run("reviews are persisted against their target", func(t *testing.T) {
		sender := scriptedParallelSender()
		repo := &fakeRepo{}
		o, err := New(sender, repo, testPanelConfig(), zap.NewNop())
		require.NoError(t, err)

		_, err = o.RunParallel(context.Background(), ParallelRequest{RoomID: "room-9", Question: "q"})
		require.NoError(t, err)

		saved := repo.saved()
		require.Len(t, saved, 8)

		targets := map[string]string{}
		for _, msg := range saved {
			if msg.TargetID != "" {
				targets[msg.SenderID] = msg.TargetID
			}
		}
		assert.Equal(t, map[string]string{"1": "2", "2": "3", "3": "1"}, targets)
	})
}

func TestReviewAssignments(t *testing.T) {
	panel := testPanelConfig().Panel
	executions := []string{"alpha", "beta", "gamma"}

	assignments := reviewAssignments(panel, executions)
	require.Len(t, assignments, 3)
	assert.Equal(t, "2", assignments[0].TargetID)
	assert.Equal(t, "beta", assignments[0].TargetText)
	assert.Equal(t, "3", assignments[1].TargetID)
	assert.Equal(t, "gamma", assignments[1].TargetText)
	assert.Equal(t, "1", assignments[2].TargetID)
	assert.Equal(t, "alpha", assignments[2].TargetText)
}

func TestLeadRole(t *testing.T) {
	t.Run("resolves the configured lead", func(t *testing.T) {
		cfg := testPanelConfig()
		cfg.LeadAccount = "3"
		o, err := New(&fakeSender{}, nil, cfg, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, "Skeptic", o.leadRole().DisplayName)
	})

	t.Run("falls back to the first panel member", func(t *testing.T) {
		cfg := testPanelConfig()
		cfg.LeadAccount = "nope"
		o, err := New(&fakeSender{}, nil, cfg, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, "Analyst", o.leadRole().DisplayName)
	})
}
