// api/schemas/interfaces.go
package schemas

import "context"

// MessageSender is the surface the discussion orchestrator drives. The
// concrete implementation talks to a live browser tab; tests substitute
// scripted fakes.
type MessageSender interface {
	// SendMessage performs one full exchange with the given agent and returns
	// the finished response text. It either returns non-empty text or an
	// error; partial text only ever arrives via the completion detector's
	// lenient-timeout path, still through the normal return.
	SendMessage(ctx context.Context, agentID, text string) (*SendResult, error)

	// StartConversation points the agent's tab at a fresh conversation.
	StartConversation(ctx context.Context, agentID string) error

	// ConversationURL reports the agent tab's current URL, used to derive the
	// persisted conversation pointer.
	ConversationURL(ctx context.Context, agentID string) (string, error)
}

// Repository is the narrow persistence collaborator. Every orchestration-side
// call site treats failures as log-and-continue; the store never gates a
// conversation.
type Repository interface {
	EnsureRoom(ctx context.Context, roomID, name string) error
	SaveMessage(ctx context.Context, roomID, senderID, content string, targetID string) (string, error)
	SaveAgentConversation(ctx context.Context, roomID, agentID, currentURL string) error
	GetRoomWithDetails(ctx context.Context, roomID string) (*RoomDetails, error)
}
