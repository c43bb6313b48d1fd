package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// Amounts are rendered as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// User is a registered account. PasswordHash is nil for OAuth-only accounts.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash *string   `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// AuthUser is the identity attached to an authenticated request.
type AuthUser struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Username string    `json:"username"`
}

// OtpSession is a pending signup waiting for its emailed code.
// Invariants: Attempts <= policy ceiling; ExpiresAt after CreatedAt.
type OtpSession struct {
	ID           uuid.UUID
	Email        string
	Username     string
	PasswordHash string
	OtpHash      string
	Attempts     int
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s OtpSession) Expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }

// Appliance is a user-declared household device used for cost estimates.
type Appliance struct {
	Name          string   `json:"name" validate:"required,min=1,max=100"`
	AvgUsageHours float64  `json:"avgUsageHours" validate:"gte=0,lte=24"`
	Wattage       *float64 `json:"wattage,omitempty" validate:"omitempty,gte=0"`
}

// BillAnalysis holds the fields the agent extracts from a bill image.
type BillAnalysis struct {
	TotalAmount        decimal.NullDecimal        `json:"totalAmount"`
	UnitsConsumed      decimal.NullDecimal        `json:"unitsConsumed"`
	BillingDate        string                     `json:"billingDate,omitempty"`
	DueDate            string                     `json:"dueDate,omitempty"`
	AccountNumber      string                     `json:"accountNumber,omitempty"`
	CustomerName       string                     `json:"customerName,omitempty"`
	Address            string                     `json:"address,omitempty"`
	Period             string                     `json:"period,omitempty"`
	ApplianceBreakdown map[string]decimal.Decimal `json:"applianceBreakdown,omitempty"`
	ShadowWaste        decimal.NullDecimal        `json:"shadowWaste"`
	Analysis           string                     `json:"analysis,omitempty"`
	Tips               []string                   `json:"tips,omitempty"`
	UnusualConsumption string                     `json:"unusualConsumption,omitempty"`
	PotentialSavings   decimal.NullDecimal        `json:"potentialSavings"`
}

// Bill is a persisted, analysed bill owned by a user.
type Bill struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"userId"`
	ImageURL      string    `json:"imageUrl"`
	ImagePublicID string    `json:"imagePublicId"`
	BillAnalysis
	CreatedAt     time.Time         `json:"createdAt"`
	Conversations []ConversationRef `json:"conversations,omitempty"`
}

// Turn roles follow the model API's vocabulary.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Part is one text fragment of a turn.
type Part struct {
	Text string `json:"text"`
}

// Turn is one message of a conversation history.
type Turn struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// NewTurn builds a single-part turn.
func NewTurn(role, text string) Turn {
	return Turn{Role: role, Parts: []Part{{Text: text}}}
}

// Text joins the parts of the turn.
func (t Turn) Text() string {
	texts := make([]string, 0, len(t.Parts))
	for _, p := range t.Parts {
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, "\n")
}

// Conversation is the ordered chat history attached to a bill.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	BillID    uuid.UUID `json:"billId"`
	History   []Turn    `json:"history"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ConversationRef is the listing view of a conversation.
type ConversationRef struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// StoredObject identifies an uploaded blob.
type StoredObject struct {
	PublicID string `json:"publicId"`
	URL      string `json:"url"`
}

// InlineImage is image data sent to the model alongside a prompt.
type InlineImage struct {
	Data []byte
	MIME string
}

// ModelRequest is one generation call: system instructions, prior turns, and the new user turn.
type ModelRequest struct {
	System  string
	History []Turn
	Prompt  string
	Image   *InlineImage
}

// OAuthProfile is the identity returned by an OAuth provider.
type OAuthProfile struct {
	Provider      string
	Email         string
	EmailVerified bool
	Name          string
	Login         string
}

// Repositories (ports)

type UserRepository interface {
	Create(ctx Context, u User) (User, error)
	GetByID(ctx Context, id uuid.UUID) (User, error)
	GetByEmail(ctx Context, email string) (User, error)
	ExistsByEmail(ctx Context, email string) (bool, error)
	ExistsByUsername(ctx Context, username string) (bool, error)
}

type OtpSessionRepository interface {
	Create(ctx Context, s OtpSession) error
	Get(ctx Context, id uuid.UUID) (OtpSession, error)
	// ClaimAttempt bumps the counter only while it is below max and returns
	// the new value. ErrNotFound means the session is gone or already at max.
	ClaimAttempt(ctx Context, id uuid.UUID, max int) (int, error)
	// Renew swaps the code, resets attempts and pushes the expiry.
	Renew(ctx Context, id uuid.UUID, otpHash string, expiresAt time.Time) error
	Delete(ctx Context, id uuid.UUID) error
	DeleteExpired(ctx Context, now time.Time) (int64, error)
}

type BillRepository interface {
	// CreateWithConversation stores a bill and its first conversation atomically.
	CreateWithConversation(ctx Context, b Bill, c Conversation) (Bill, Conversation, error)
	Get(ctx Context, id uuid.UUID) (Bill, error)
	// ListByUser returns bills newest first with their conversation refs.
	ListByUser(ctx Context, userID uuid.UUID) ([]Bill, error)
}

type ConversationRepository interface {
	Get(ctx Context, id uuid.UUID) (Conversation, error)
	ListByBill(ctx Context, billID uuid.UUID) ([]Conversation, error)
	UpdateHistory(ctx Context, id uuid.UUID, history []Turn) error
}

// External services (ports)

type BlobStore interface {
	Put(ctx Context, folder, filename string, data []byte, mime string) (StoredObject, error)
}

type Mailer interface {
	SendOTP(ctx Context, to, code string, ttl time.Duration) error
}

// Model is a multimodal LLM. Generate returns the raw text of the reply.
type Model interface {
	Generate(ctx Context, req ModelRequest) (string, error)
}

// RateLimiter admits or rejects one unit of work for key.
type RateLimiter interface {
	Allow(ctx Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

type OAuthProvider interface {
	Name() string
	AuthCodeURL(state, verifier string) string
	Exchange(ctx Context, code, verifier string) (OAuthProfile, error)
}

// Context is an alias so ports read naturally without importing context everywhere.
type Context = context.Context
