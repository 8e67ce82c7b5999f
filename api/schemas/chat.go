// api/schemas/chat.go
package schemas

import "time"

// SendMethod records which of the send-trigger fallbacks actually fired the
// message. It is diagnostic data, not behavior.
type SendMethod string

const (
	SendViaButton         SendMethod = "button"
	SendViaSyntheticEnter SendMethod = "synthetic_enter"
	SendViaHardwareEnter  SendMethod = "hardware_enter"
)

// CompletionState is the terminal state of a response wait.
type CompletionState string

const (
	CompletionDone     CompletionState = "done"
	CompletionTimedOut CompletionState = "timed_out"
)

// SendResult is the outcome of one "type, send, wait, extract" exchange with
// a single agent tab. It is ephemeral; persistence is the caller's decision.
type SendResult struct {
	AccountID  string          `json:"account_id"`
	Prompt     string          `json:"prompt"`
	Response   string          `json:"response"`
	Method     SendMethod      `json:"method"`
	Completion CompletionState `json:"completion"`
	DurationMs int64           `json:"duration_ms"`
}

// Role is one fixed seat on the discussion panel. Static configuration, not
// persisted state.
type Role struct {
	AccountID   string `json:"account_id" mapstructure:"account_id"`
	DisplayName string `json:"display_name" mapstructure:"display_name"`
	Description string `json:"description" mapstructure:"description"`
}

// Turn is one emitted contribution within a discussion, in chronological
// emission order.
type Turn struct {
	Round       int    `json:"round"`
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Response    string `json:"response"`
}

// Subtask is one slice of the question produced by the parallel protocol's
// split phase. Exactly three exist per discussion, one per participant.
type Subtask struct {
	ID    int    `json:"id"`
	Task  string `json:"task"`
	Focus string `json:"focus"`
}

// ReviewAssignment pairs a reviewer with the participant whose execution
// output it critiques. The mapping is a fixed cyclic permutation.
type ReviewAssignment struct {
	ReviewerID string `json:"reviewer_id"`
	TargetID   string `json:"target_id"`
	TargetText string `json:"target_text"`
}

// DiscussionResult is the full payload of one discussion request, either
// protocol.
type DiscussionResult struct {
	RoomID      string    `json:"room_id"`
	Question    string    `json:"question"`
	Turns       []Turn    `json:"turns"`
	Subtasks    []Subtask `json:"subtasks,omitempty"`
	FinalAnswer string    `json:"final_answer"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Room groups persisted messages and agent conversation pointers.
type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// RoomAgent is a persisted pointer from a room to one agent's conversation in
// the target application.
type RoomAgent struct {
	AgentID        string    `json:"agent_id"`
	ConversationID string    `json:"conversation_id"`
	URL            string    `json:"url"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Message is one persisted room message.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	SenderID  string    `json:"sender_id"`
	TargetID  string    `json:"target_id,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// RoomDetails is the aggregate view returned to the HTTP surface.
type RoomDetails struct {
	Room     Room        `json:"room"`
	Agents   []RoomAgent `json:"agents"`
	Messages []Message   `json:"messages"`
}
