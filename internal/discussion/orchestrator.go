// internal/discussion/orchestrator.go
// Composes Interaction Driver calls into the serial round-robin and 4-phase
// parallel discussion protocols. Injected with its collaborators via
// interfaces, keeping it decoupled and testable.
package discussion

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/0xfaultline/chatmux/api/schemas"
	"github.com/0xfaultline/chatmux/internal/config"
)

const maxRounds = 5

// Orchestrator runs multi-agent discussions over a fixed 3-role panel.
type Orchestrator struct {
	sender schemas.MessageSender
	repo   schemas.Repository // nil disables persistence
	cfg    config.DiscussionConfig
	logger *zap.Logger
}

// New creates an Orchestrator. The repository may be nil; every persistence
// call is fire-and-forget either way.
func New(sender schemas.MessageSender, repo schemas.Repository, cfg config.DiscussionConfig, logger *zap.Logger) (*Orchestrator, error) {
	if sender == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	if len(cfg.Panel) != 3 {
		return nil, fmt.Errorf("discussion panel must have exactly 3 roles, got %d", len(cfg.Panel))
	}
	return &Orchestrator{
		sender: sender,
		repo:   repo,
		cfg:    cfg,
		logger: logger.Named("discussion"),
	}, nil
}

// SerialRequest parameterizes the round-robin protocol.
type SerialRequest struct {
	RoomID     string `json:"room_id"`
	Question   string `json:"question"`
	Rounds     int    `json:"rounds"`
	FreshStart bool   `json:"fresh_start"`
}

// RunSerial executes the round-robin protocol: each participant in turn
// builds on the previous contribution, ending in a final synthesis by the
// last participant of the last round. Turns are strictly sequential because
// each prompt depends on the previous turn's text. A failed send becomes a
// bracketed failure marker in that turn; the discussion continues.
func (o *Orchestrator) RunSerial(ctx context.Context, req SerialRequest) (*schemas.DiscussionResult, error) {
	rounds := req.Rounds
	if rounds <= 0 {
		rounds = 1
	}
	if rounds > maxRounds {
		rounds = maxRounds
	}

	result := &schemas.DiscussionResult{
		RoomID:    req.RoomID,
		Question:  req.Question,
		StartedAt: time.Now().UTC(),
	}
	o.logger.Info("Starting serial discussion.",
		zap.String("room_id", req.RoomID), zap.Int("rounds", rounds))

	o.ensureRoom(ctx, req.RoomID, req.Question)
	if req.FreshStart {
		for _, role := range o.cfg.Panel {
			if err := o.sender.StartConversation(ctx, role.AccountID); err != nil {
				o.logger.Warn("Fresh conversation start failed; reusing current one.",
					zap.String("agent_id", role.AccountID), zap.Error(err))
			}
		}
	}

	panel := o.cfg.Panel
	for r := 1; r <= rounds; r++ {
		for i, role := range panel {
			var prompt string
			switch {
			case r == 1 && i == 0:
				prompt = openingPrompt(role, req.Question)
			case r == rounds && i == len(panel)-1 && len(result.Turns) >= 2:
				prev := result.Turns[len(result.Turns)-1]
				prevPrev := result.Turns[len(result.Turns)-2]
				prompt = synthesisPrompt(role, req.Question, prevPrev, prev)
			default:
				prompt = critiquePrompt(role, result.Turns[len(result.Turns)-1])
			}

			turn := schemas.Turn{
				Round:       r,
				AccountID:   role.AccountID,
				DisplayName: role.DisplayName,
				Role:        role.Description,
				Response:    o.exchange(ctx, role, prompt),
			}
			result.Turns = append(result.Turns, turn)
			o.saveMessage(ctx, req.RoomID, role.AccountID, turn.Response, "")
		}
	}

	if n := len(result.Turns); n > 0 {
		result.FinalAnswer = result.Turns[n-1].Response
	}
	result.FinishedAt = time.Now().UTC()
	o.saveConversationPointers(ctx, req.RoomID)
	return result, nil
}

// exchange sends one prompt and converts a failure into an in-band marker so
// one participant's failure never aborts the others.
func (o *Orchestrator) exchange(ctx context.Context, role schemas.Role, prompt string) string {
	res, err := o.sender.SendMessage(ctx, role.AccountID, prompt)
	if err != nil {
		o.logger.Warn("Participant send failed.",
			zap.String("agent_id", role.AccountID), zap.Error(err))
		return failureMarker(role, err)
	}
	return res.Response
}

func failureMarker(role schemas.Role, err error) string {
	return fmt.Sprintf("[%s (agent %s) failed to respond: %v]", role.DisplayName, role.AccountID, err)
}

// -- fire-and-forget persistence hooks --

func (o *Orchestrator) ensureRoom(ctx context.Context, roomID, name string) {
	if o.repo == nil || roomID == "" {
		return
	}
	if err := o.repo.EnsureRoom(ctx, roomID, name); err != nil {
		o.logger.Warn("Failed to ensure room.", zap.String("room_id", roomID), zap.Error(err))
	}
}

func (o *Orchestrator) saveMessage(ctx context.Context, roomID, senderID, content, targetID string) {
	if o.repo == nil || roomID == "" {
		return
	}
	if _, err := o.repo.SaveMessage(ctx, roomID, senderID, content, targetID); err != nil {
		o.logger.Warn("Failed to persist message.",
			zap.String("room_id", roomID), zap.String("sender_id", senderID), zap.Error(err))
	}
}

func (o *Orchestrator) saveConversationPointers(ctx context.Context, roomID string) {
	if o.repo == nil || roomID == "" {
		return
	}
	for _, role := range o.cfg.Panel {
		url, err := o.sender.ConversationURL(ctx, role.AccountID)
		if err != nil {
			o.logger.Warn("Failed to read conversation URL.",
				zap.String("agent_id", role.AccountID), zap.Error(err))
			continue
		}
		if err := o.repo.SaveAgentConversation(ctx, roomID, role.AccountID, url); err != nil {
			o.logger.Warn("Failed to persist conversation pointer.",
				zap.String("agent_id", role.AccountID), zap.Error(err))
		}
	}
}
