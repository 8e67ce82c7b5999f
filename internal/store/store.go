package store

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/0xfaultline/chatmux/api/schemas"
)

// DBPool abstracts the pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL implementation of schemas.Repository.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.Repository = (*Store)(nil)

// New creates a store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureRoom creates the room if it does not yet exist.
func (s *Store) EnsureRoom(ctx context.Context, roomID, name string) error {
	sql := `
        INSERT INTO rooms (id, name, created_at)
        VALUES ($1, $2, now())
        ON CONFLICT (id) DO NOTHING;
    `
	if _, err := s.pool.Exec(ctx, sql, roomID, name); err != nil {
		return fmt.Errorf("failed to ensure room %s: %w", roomID, err)
	}
	return nil
}

// SaveMessage inserts one room message and returns its generated identifier.
// An empty targetID stores NULL.
func (s *Store) SaveMessage(ctx context.Context, roomID, senderID, content string, targetID string) (string, error) {
	messageID := uuid.NewString()

	var target any
	if targetID != "" {
		target = targetID
	}

	sql := `
        INSERT INTO messages (id, room_id, sender_id, target_id, content, created_at)
        VALUES ($1, $2, $3, $4, $5, now());
    `
	if _, err := s.pool.Exec(ctx, sql, messageID, roomID, senderID, target, content); err != nil {
		return "", fmt.Errorf("failed to save message in room %s: %w", roomID, err)
	}
	return messageID, nil
}

// SaveAgentConversation upserts the room's pointer to an agent's conversation
// in the target application, deriving the conversation identifier from the
// page URL's trailing path segment.
func (s *Store) SaveAgentConversation(ctx context.Context, roomID, agentID, currentURL string) error {
	conversationID := deriveConversationID(currentURL)

	sql := `
        INSERT INTO room_agents (room_id, agent_id, conversation_id, url, updated_at)
        VALUES ($1, $2, $3, $4, now())
        ON CONFLICT (room_id, agent_id) DO UPDATE SET
            conversation_id = EXCLUDED.conversation_id,
            url = EXCLUDED.url,
            updated_at = EXCLUDED.updated_at;
    `
	if _, err := s.pool.Exec(ctx, sql, roomID, agentID, conversationID, currentURL); err != nil {
		return fmt.Errorf("failed to save conversation pointer for agent %s: %w", agentID, err)
	}
	return nil
}

// GetRoomWithDetails loads the room plus its agent pointers and messages in
// chronological order.
func (s *Store) GetRoomWithDetails(ctx context.Context, roomID string) (*schemas.RoomDetails, error) {
	details := &schemas.RoomDetails{}

	roomSQL := `SELECT id, name, created_at FROM rooms WHERE id = $1;`
	row := s.pool.QueryRow(ctx, roomSQL, roomID)
	if err := row.Scan(&details.Room.ID, &details.Room.Name, &details.Room.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to load room %s: %w", roomID, err)
	}

	agentSQL := `
        SELECT agent_id, conversation_id, url, updated_at
        FROM room_agents
        WHERE room_id = $1
        ORDER BY agent_id ASC;
    `
	agentRows, err := s.pool.Query(ctx, agentSQL, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query room agents: %w", err)
	}
	defer agentRows.Close()
	for agentRows.Next() {
		var a schemas.RoomAgent
		if err := agentRows.Scan(&a.AgentID, &a.ConversationID, &a.URL, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan room agent row: %w", err)
		}
		details.Agents = append(details.Agents, a)
	}
	if err := agentRows.Err(); err != nil {
		return nil, fmt.Errorf("error during agent row iteration: %w", err)
	}

	messageSQL := `
        SELECT id, sender_id, COALESCE(target_id, ''), content, created_at
        FROM messages
        WHERE room_id = $1
        ORDER BY created_at ASC;
    `
	msgRows, err := s.pool.Query(ctx, messageSQL, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer msgRows.Close()
	for msgRows.Next() {
		var m schemas.Message
		if err := msgRows.Scan(&m.ID, &m.SenderID, &m.TargetID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		m.RoomID = roomID
		details.Messages = append(details.Messages, m)
	}
	if err := msgRows.Err(); err != nil {
		return nil, fmt.Errorf("error during message row iteration: %w", err)
	}

	return details, nil
}

// deriveConversationID extracts the trailing non-empty path segment of a
// conversation URL. A bare or unparsable URL falls back to the URL itself so
// the pointer row is still written.
func deriveConversationID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := segments[len(segments)-1]
	if last == "" {
		return rawURL
	}
	return last
}
