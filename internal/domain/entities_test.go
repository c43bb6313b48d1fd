package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIError_Is(t *testing.T) {
	t.Parallel()

	base := NewAPIError(ErrConflict, "EMAIL_TAKEN", "Email is already in use")
	wrapped := fmt.Errorf("op=auth.Signup: %w", base)

	assert.True(t, errors.Is(wrapped, ErrConflict))
	assert.False(t, errors.Is(wrapped, ErrNotFound))

	got, ok := AsAPIError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "EMAIL_TAKEN", got.Code)
	assert.Equal(t, "EMAIL_TAKEN: Email is already in use", got.Error())

	withDetails := base.WithDetails([]string{"x"})
	assert.Nil(t, base.Details)
	assert.Equal(t, []string{"x"}, withDetails.Details)

	_, ok = AsAPIError(errors.New("plain"))
	assert.False(t, ok)
}

func TestOtpSession_Expired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := OtpSession{CreatedAt: now, ExpiresAt: now.Add(5 * time.Minute)}
	assert.False(t, s.Expired(now))
	assert.True(t, s.Expired(now.Add(5*time.Minute)))
}

func TestTurn_Text(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "hi", NewTurn(RoleUser, "hi").Text())
	multi := Turn{Role: RoleModel, Parts: []Part{{Text: "a"}, {Text: "b"}}}
	assert.Equal(t, "a\nb", multi.Text())
}

func TestBill_JSONShape(t *testing.T) {
	t.Parallel()

	b := Bill{
		ID: uuid.New(),
		BillAnalysis: BillAnalysis{
			TotalAmount:        decimal.NewNullDecimal(decimal.RequireFromString("1234.50")),
			ApplianceBreakdown: map[string]decimal.Decimal{"AC": decimal.NewFromInt(900)},
		},
	}
	raw, err := json.Marshal(b)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, 1234.5, out["totalAmount"])
	assert.Nil(t, out["unitsConsumed"])
	assert.Equal(t, map[string]any{"AC": float64(900)}, out["applianceBreakdown"])
	_, hasConversations := out["conversations"]
	assert.False(t, hasConversations)
}

func TestUser_HidesPasswordHash(t *testing.T) {
	t.Parallel()

	hash := "argon2id$..."
	raw, err := json.Marshal(User{Email: "a@b.c", PasswordHash: &hash})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "argon2id")
}
