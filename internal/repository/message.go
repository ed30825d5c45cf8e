package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/strom/internal/domain"
)

type MessageRepository struct {
	db dbtx
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: pool}
}

func (r *MessageRepository) CountUserMessages(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

func (r *MessageRepository) StoreMessage(ctx context.Context, msg *domain.Message) error {
	if msg == nil || msg.ID == "" || msg.UserID == "" {
		return fmt.Errorf("message id and user id are required")
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO messages (id, user_id, user_message, agent_message, created_at) VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.UserID, msg.UserMessage, msg.AgentMessage, msg.CreatedAt,
	)
	return err
}

// ListUserMessages returns the most recent messages first.
func (r *MessageRepository) ListUserMessages(ctx context.Context, userID string, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, user_message, agent_message, created_at
		 FROM messages WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.UserMessage, &m.AgentMessage, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// ConversationStore combines user and message persistence for the
// conversation service.
type ConversationStore struct {
	*UserRepository
	*MessageRepository
}

func NewConversationStore(pool *pgxpool.Pool) *ConversationStore {
	return &ConversationStore{
		UserRepository:    NewUserRepository(pool),
		MessageRepository: NewMessageRepository(pool),
	}
}
