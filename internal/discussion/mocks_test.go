// internal/discussion/mocks_test.go
package discussion

import (
	"context"
	"sync"

	"github.com/0xfaultline/chatmux/api/schemas"
	"github.com/0xfaultline/chatmux/internal/config"
)

func testPanelConfig() config.DiscussionConfig {
	return config.DiscussionConfig{
		LeadAccount: "1",
		Panel: []schemas.Role{
			{AccountID: "1", DisplayName: "Analyst", Description: "a rigorous analyst"},
			{AccountID: "2", DisplayName: "Engineer", Description: "a pragmatic engineer"},
			{AccountID: "3", DisplayName: "Skeptic", Description: "a constructive skeptic"},
		},
	}
}

type sentPrompt struct {
	AgentID string
	Prompt  string
}

// fakeSender scripts per-exchange replies and records every prompt in send
// order.
type fakeSender struct {
	mu    sync.Mutex
	sent  []sentPrompt
	reply func(agentID, prompt string) (string, error)

	started []string
	urls    map[string]string
}

func (f *fakeSender) SendMessage(_ context.Context, agentID, text string) (*schemas.SendResult, error) {
	f.mu.Lock()
	f.sent = append(f.sent, sentPrompt{AgentID: agentID, Prompt: text})
	f.mu.Unlock()

	response := "reply from " + agentID
	if f.reply != nil {
		r, err := f.reply(agentID, text)
		if err != nil {
			return nil, err
		}
		response = r
	}
	return &schemas.SendResult{
		AccountID:  agentID,
		Prompt:     text,
		Response:   response,
		Method:     schemas.SendViaButton,
		Completion: schemas.CompletionDone,
	}, nil
}

func (f *fakeSender) StartConversation(_ context.Context, agentID string) error {
	f.mu.Lock()
	f.started = append(f.started, agentID)
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) ConversationURL(_ context.Context, agentID string) (string, error) {
	if f.urls == nil {
		return "https://chat.example.com/c/conv-" + agentID, nil
	}
	return f.urls[agentID], nil
}

func (f *fakeSender) prompts() []sentPrompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentPrompt, len(f.sent))
	copy(out, f.sent)
	return out
}

// promptFor returns the prompt sent to an agent at the given per-agent
// occurrence (0-based).
func (f *fakeSender) promptFor(agentID string, occurrence int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, sp := range f.sent {
		if sp.AgentID != agentID {
			continue
		}
		if n == occurrence {
			return sp.Prompt
		}
		n++
	}
	return ""
}

type savedMessage struct {
	RoomID   string
	SenderID string
	Content  string
	TargetID string
}

// fakeRepo records persistence calls; err poisons every write.
type fakeRepo struct {
	mu       sync.Mutex
	err      error
	rooms    []string
	messages []savedMessage
	pointers map[string]string
}

func (f *fakeRepo) EnsureRoom(_ context.Context, roomID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms = append(f.rooms, roomID)
	return f.err
}

func (f *fakeRepo) SaveMessage(_ context.Context, roomID, senderID, content, targetID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.messages = append(f.messages, savedMessage{RoomID: roomID, SenderID: senderID, Content: content, TargetID: targetID})
	return "msg-id", nil
}

func (f *fakeRepo) SaveAgentConversation(_ context.Context, _, agentID, currentURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pointers == nil {
		f.pointers = make(map[string]string)
	}
	f.pointers[agentID] = currentURL
	return f.err
}

func (f *fakeRepo) GetRoomWithDetails(context.Context, string) (*schemas.RoomDetails, error) {
	return nil, f.err
}

func (f *fakeRepo) saved() []savedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]savedMessage, len(f.messages))
	copy(out, f.messages)
	return out
}
