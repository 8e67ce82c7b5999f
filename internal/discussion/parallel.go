// internal/discussion/parallel.go
package discussion

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/0xfaultline/chatmux/api/schemas"
)

// ParallelRequest parameterizes the 4-phase protocol.
type ParallelRequest struct {
	RoomID   string `json:"room_id"`
	Question string `json:"question"`
}

// RunParallel executes the 4-phase protocol: split (serial), parallel
// execution, parallel cross-review, summarize (serial). Phases 2 and 3 fan
// out over the three panel participants' distinct tabs and join before the
// next phase; per-participant failures become bracketed markers and never
// abort the siblings. Each phase's outputs are persisted after the phase
// completes.
func (o *Orchestrator) RunParallel(ctx context.Context, req ParallelRequest) (*schemas.DiscussionResult, error) {
	panel := o.cfg.Panel
	lead := o.leadRole()

	result := &schemas.DiscussionResult{
		RoomID:    req.RoomID,
		Question:  req.Question,
		StartedAt: time.Now().UTC(),
	}
	o.logger.Info("Starting parallel discussion.",
		zap.String("room_id", req.RoomID), zap.String("lead", lead.AccountID))
	o.ensureRoom(ctx, req.RoomID, req.Question)

	// Phase 1: split. A failed or unparsable decomposition degrades to the
	// fixed default; the request proceeds regardless.
	splitText := o.exchange(ctx, lead, splitPrompt(req.Question))
	subtasks, parsed := ParseSubtasks(splitText)
	if !parsed {
		o.logger.Warn("Split phase produced no parsable subtasks; using default decomposition.",
			zap.String("room_id", req.RoomID))
		subtasks = DefaultSubtasks(req.Question)
	}
	result.Subtasks = subtasks
	result.Turns = append(result.Turns, schemas.Turn{
		Round: 1, AccountID: lead.AccountID, DisplayName: lead.DisplayName,
		Role: lead.Description, Response: splitText,
	})
	o.saveMessage(ctx, req.RoomID, lead.AccountID, splitText, "")

	// Phase 2: parallel execution, one subtask per participant. The group is
	// a join barrier only; worker failures are captured in-band.
	executions := make([]string, len(panel))
	g, gctx := errgroup.WithContext(ctx)
	for i, role := range panel {
		g.Go(func() error {
			res, err := o.sender.SendMessage(gctx, role.AccountID, subtaskPrompt(role, req.Question, subtasks[i]))
			if err != nil {
				o.logger.Warn("Execution phase send failed.",
					zap.String("agent_id", role.AccountID), zap.Error(err))
				executions[i] = failureMarker(role, err)
				return nil
			}
			executions[i] = res.Response
			return nil
		})
	}
	_ = g.Wait()
	for i, role := range panel {
		result.Turns = append(result.Turns, schemas.Turn{
			Round: 2, AccountID: role.AccountID, DisplayName: role.DisplayName,
			Role: role.Description, Response: executions[i],
		})
		o.saveMessage(ctx, req.RoomID, role.AccountID, executions[i], "")
	}

	// Phase 3: parallel cross-review over the fixed cyclic permutation:
	// each participant reviews the next one's execution output.
	assignments := reviewAssignments(panel, executions)
	reviews := make([]string, len(panel))
	g, gctx = errgroup.WithContext(ctx)
	for i, role := range panel {
		target := panel[(i+1)%len(panel)]
		targetText := assignments[i].TargetText
		g.Go(func() error {
			res, err := o.sender.SendMessage(gctx, role.AccountID, reviewPrompt(role, target, targetText))
			if err != nil {
				o.logger.Warn("Review phase send failed.",
					zap.String("agent_id", role.AccountID), zap.Error(err))
				reviews[i] = failureMarker(role, err)
				return nil
			}
			reviews[i] = res.Response
			return nil
		})
	}
	_ = g.Wait()
	for i, role := range panel {
		target := panel[(i+1)%len(panel)]
		result.Turns = append(result.Turns, schemas.Turn{
			Round: 3, AccountID: role.AccountID, DisplayName: role.DisplayName,
			Role: role.Description, Response: reviews[i],
		})
		o.saveMessage(ctx, req.RoomID, role.AccountID, reviews[i], target.AccountID)
	}

	// Phase 4: summarize. The final answer is exactly the lead's
	// consolidated text, never a concatenation of the others.
	summary := o.exchange(ctx, lead, summaryPrompt(req.Question, panel, executions, reviews))
	result.Turns = append(result.Turns, schemas.Turn{
		Round: 4, AccountID: lead.AccountID, DisplayName: lead.DisplayName,
		Role: lead.Description, Response: summary,
	})
	o.saveMessage(ctx, req.RoomID, lead.AccountID, summary, "")

	result.FinalAnswer = summary
	result.FinishedAt = time.Now().UTC()
	o.saveConversationPointers(ctx, req.RoomID)
	return result, nil
}

// reviewAssignments builds the fixed cyclic peer-review mapping: participant
// i reviews participant i+1's execution output (the last wraps to the first).
func reviewAssignments(panel []schemas.Role, executions []string) []schemas.ReviewAssignment {
	out := make([]schemas.ReviewAssignment, len(panel))
	for i, role := range panel {
		j := (i + 1) % len(panel)
		out[i] = schemas.ReviewAssignment{
			ReviewerID: role.AccountID,
			TargetID:   panel[j].AccountID,
			TargetText: executions[j],
		}
	}
	return out
}

func (o *Orchestrator) leadRole() schemas.Role {
	for _, role := range o.cfg.Panel {
		if role.AccountID == o.cfg.LeadAccount {
			return role
		}
	}
	return o.cfg.Panel[0]
}
