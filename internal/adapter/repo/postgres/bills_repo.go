package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sharow/sharow/internal/domain"
)

// BillRepo persists analysed bills. The extracted fields live in a JSONB
// column; amount, units and billing date are also kept as columns for querying.
type BillRepo struct{ Pool PgxPool }

// NewBillRepo constructs a BillRepo with the given pool.
func NewBillRepo(p PgxPool) *BillRepo { return &BillRepo{Pool: p} }

// CreateWithConversation inserts the bill and its seed conversation in one transaction.
func (r *BillRepo) CreateWithConversation(ctx domain.Context, b domain.Bill, c domain.Conversation) (_ domain.Bill, _ domain.Conversation, err error) {
	ctx, span := startSpan(ctx, "bills", "CreateWithConversation", "INSERT")
	defer span.End()

	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	c.BillID, c.UserID = b.ID, b.UserID
	c.CreatedAt, c.UpdatedAt = now, now

	analysis, err := json.Marshal(b.BillAnalysis)
	if err != nil {
		return domain.Bill{}, domain.Conversation{}, fmt.Errorf("op=bill.create: %w", err)
	}
	history, err := json.Marshal(c.History)
	if err != nil {
		return domain.Bill{}, domain.Conversation{}, fmt.Errorf("op=bill.create: %w", err)
	}

	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return domain.Bill{}, domain.Conversation{}, fmt.Errorf("op=bill.create: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	qb := `INSERT INTO bills (id, user_id, image_url, image_public_id, total_amount, units_consumed, billing_date, analysis, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	if _, err = tx.Exec(ctx, qb, b.ID, b.UserID, b.ImageURL, b.ImagePublicID, b.TotalAmount, b.UnitsConsumed, b.BillingDate, analysis, b.CreatedAt); err != nil {
		return domain.Bill{}, domain.Conversation{}, mapErr("bill.create", err)
	}
	qc := `INSERT INTO conversations (id, user_id, bill_id, history, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err = tx.Exec(ctx, qc, c.ID, c.UserID, c.BillID, history, c.CreatedAt, c.UpdatedAt); err != nil {
		return domain.Bill{}, domain.Conversation{}, mapErr("bill.create_conversation", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return domain.Bill{}, domain.Conversation{}, fmt.Errorf("op=bill.create: commit: %w", err)
	}

	b.Conversations = []domain.ConversationRef{{ID: c.ID, CreatedAt: c.CreatedAt}}
	return b, c, nil
}

// Get loads a bill by id without its conversations.
func (r *BillRepo) Get(ctx domain.Context, id uuid.UUID) (domain.Bill, error) {
	ctx, span := startSpan(ctx, "bills", "Get", "SELECT")
	defer span.End()
	q := `SELECT id, user_id, image_url, image_public_id, analysis, created_at FROM bills WHERE id=$1`
	var b domain.Bill
	var analysis []byte
	if err := r.Pool.QueryRow(ctx, q, id).Scan(&b.ID, &b.UserID, &b.ImageURL, &b.ImagePublicID, &analysis, &b.CreatedAt); err != nil {
		return domain.Bill{}, mapErr("bill.get", err)
	}
	if err := json.Unmarshal(analysis, &b.BillAnalysis); err != nil {
		return domain.Bill{}, fmt.Errorf("op=bill.get: decode analysis: %w", err)
	}
	return b, nil
}

// ListByUser returns the user's bills newest first, each with its conversation refs.
func (r *BillRepo) ListByUser(ctx domain.Context, userID uuid.UUID) ([]domain.Bill, error) {
	ctx, span := startSpan(ctx, "bills", "ListByUser", "SELECT")
	defer span.End()
	q := `SELECT b.id, b.user_id, b.image_url, b.image_public_id, b.analysis, b.created_at,
		COALESCE(json_agg(json_build_object('id', c.id, 'createdAt', c.created_at) ORDER BY c.created_at) FILTER (WHERE c.id IS NOT NULL), '[]'::json)
		FROM bills b LEFT JOIN conversations c ON c.bill_id = b.id
		WHERE b.user_id=$1
		GROUP BY b.id
		ORDER BY b.created_at DESC`
	rows, err := r.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, mapErr("bill.list", err)
	}
	defer rows.Close()

	bills := make([]domain.Bill, 0)
	for rows.Next() {
		var b domain.Bill
		var analysis, convs []byte
		if err := rows.Scan(&b.ID, &b.UserID, &b.ImageURL, &b.ImagePublicID, &analysis, &b.CreatedAt, &convs); err != nil {
			return nil, mapErr("bill.list", err)
		}
		if err := json.Unmarshal(analysis, &b.BillAnalysis); err != nil {
			return nil, fmt.Errorf("op=bill.list: decode analysis: %w", err)
		}
		if err := json.Unmarshal(convs, &b.Conversations); err != nil {
			return nil, fmt.Errorf("op=bill.list: decode conversations: %w", err)
		}
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("bill.list", err)
	}
	return bills, nil
}
