package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sharow/sharow/internal/domain"
)

// ConversationRepo persists chat histories.
type ConversationRepo struct{ Pool PgxPool }

// NewConversationRepo constructs a ConversationRepo with the given pool.
func NewConversationRepo(p PgxPool) *ConversationRepo { return &ConversationRepo{Pool: p} }

const conversationColumns = `id, user_id, bill_id, history, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (domain.Conversation, error) {
	var c domain.Conversation
	var history []byte
	if err := row.Scan(&c.ID, &c.UserID, &c.BillID, &history, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return domain.Conversation{}, err
	}
	if err := json.Unmarshal(history, &c.History); err != nil {
		return domain.Conversation{}, fmt.Errorf("decode history: %w", err)
	}
	return c, nil
}

// Get loads a conversation by id.
func (r *ConversationRepo) Get(ctx domain.Context, id uuid.UUID) (domain.Conversation, error) {
	ctx, span := startSpan(ctx, "conversations", "Get", "SELECT")
	defer span.End()
	c, err := scanConversation(r.Pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, id))
	if err != nil {
		return domain.Conversation{}, mapErr("conversation.get", err)
	}
	return c, nil
}

// ListByBill returns the bill's conversations oldest first.
func (r *ConversationRepo) ListByBill(ctx domain.Context, billID uuid.UUID) ([]domain.Conversation, error) {
	ctx, span := startSpan(ctx, "conversations", "ListByBill", "SELECT")
	defer span.End()
	rows, err := r.Pool.Query(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE bill_id=$1 ORDER BY created_at`, billID)
	if err != nil {
		return nil, mapErr("conversation.list", err)
	}
	defer rows.Close()

	out := make([]domain.Conversation, 0)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, mapErr("conversation.list", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("conversation.list", err)
	}
	return out, nil
}

// UpdateHistory replaces the stored history.
func (r *ConversationRepo) UpdateHistory(ctx domain.Context, id uuid.UUID, history []domain.Turn) error {
	ctx, span := startSpan(ctx, "conversations", "UpdateHistory", "UPDATE")
	defer span.End()
	raw, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("op=conversation.update_history: %w", err)
	}
	tag, err := r.Pool.Exec(ctx, `UPDATE conversations SET history=$2, updated_at=$3 WHERE id=$1`, id, raw, time.Now().UTC())
	if err != nil {
		return mapErr("conversation.update_history", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=conversation.update_history: %w", domain.ErrNotFound)
	}
	return nil
}
