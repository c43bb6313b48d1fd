package usecase

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sharow/sharow/internal/adapter/observability"
	"github.com/sharow/sharow/internal/agent"
	"github.com/sharow/sharow/internal/domain"
	obsctx "github.com/sharow/sharow/internal/observability"
)

// BillAgent is the part of the agent the bill service drives.
type BillAgent interface {
	Analyze(ctx domain.Context, in agent.AnalyzeInput) (agent.AnalyzeResult, error)
	Chat(ctx domain.Context, history []domain.Turn, message string) (agent.ChatResult, error)
}

// BillService analyses bills and answers questions about them.
type BillService struct {
	Bills         domain.BillRepository
	Conversations domain.ConversationRepository
	Store         domain.BlobStore
	Agent         BillAgent
	// Limiter caps model calls per user; nil disables the cap.
	Limiter domain.RateLimiter
}

// NewBillService constructs a BillService with its dependencies.
func NewBillService(bills domain.BillRepository, convs domain.ConversationRepository, store domain.BlobStore, ag BillAgent, limiter domain.RateLimiter) *BillService {
	return &BillService{Bills: bills, Conversations: convs, Store: store, Agent: ag, Limiter: limiter}
}

// AnalyzeBillInput is a validated bill upload.
type AnalyzeBillInput struct {
	UserID     uuid.UUID
	Filename   string
	Image      []byte
	MIME       string
	Question   string
	Appliances []domain.Appliance
}

// AnalyzeBillResult is the stored bill and the id of its conversation.
type AnalyzeBillResult struct {
	Bill           domain.Bill
	ConversationID uuid.UUID
}

// Analyze stores the image, runs the agent and persists the bill with its seed conversation.
func (s *BillService) Analyze(ctx domain.Context, in AnalyzeBillInput) (AnalyzeBillResult, error) {
	if len(in.Image) == 0 {
		return AnalyzeBillResult{}, ErrBillFileMissing
	}
	if err := s.allowModelCall(ctx, in.UserID); err != nil {
		return AnalyzeBillResult{}, err
	}

	obj, err := s.Store.Put(ctx, BillFolder, in.Filename, in.Image, in.MIME)
	if err != nil {
		observability.BillAnalyzed("error")
		return AnalyzeBillResult{}, fmt.Errorf("op=usecase.AnalyzeBill: %w", err)
	}

	res, err := s.Agent.Analyze(ctx, agent.AnalyzeInput{
		Image:      in.Image,
		MIME:       in.MIME,
		Question:   in.Question,
		Appliances: in.Appliances,
	})
	if err != nil {
		mapped := agentFailure(err, "BILL_ANALYSIS_FAILED")
		observability.BillAnalyzed(outcomeOf(mapped))
		obsctx.LoggerFromContext(ctx).Warn("bill analysis failed",
			slog.String("public_id", obj.PublicID),
			slog.Any("error", err))
		return AnalyzeBillResult{}, mapped
	}

	bill := domain.Bill{
		UserID:        in.UserID,
		ImageURL:      obj.URL,
		ImagePublicID: obj.PublicID,
		BillAnalysis:  res.Bill,
	}
	conv := domain.Conversation{UserID: in.UserID, History: res.History}
	bill, conv, err = s.Bills.CreateWithConversation(ctx, bill, conv)
	if err != nil {
		observability.BillAnalyzed("error")
		return AnalyzeBillResult{}, fmt.Errorf("op=usecase.AnalyzeBill: %w", err)
	}
	observability.BillAnalyzed("success")
	obsctx.LoggerFromContext(ctx).Info("bill analyzed",
		slog.String("bill_id", bill.ID.String()),
		slog.String("conversation_id", conv.ID.String()))
	return AnalyzeBillResult{Bill: bill, ConversationID: conv.ID}, nil
}

// ChatReply is the agent answer for a conversation.
type ChatReply struct {
	Response       string
	ConversationID uuid.UUID
}

// Chat answers a follow-up question and stores the extended history.
func (s *BillService) Chat(ctx domain.Context, userID, conversationID uuid.UUID, message string) (ChatReply, error) {
	conv, err := s.Conversations.Get(ctx, conversationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ChatReply{}, ErrConversationNotFound
		}
		return ChatReply{}, fmt.Errorf("op=usecase.Chat: %w", err)
	}
	if conv.UserID != userID {
		return ChatReply{}, ErrConversationDenied
	}
	if err := s.allowModelCall(ctx, userID); err != nil {
		return ChatReply{}, err
	}

	res, err := s.Agent.Chat(ctx, conv.History, message)
	if err != nil {
		mapped := agentFailure(err, "CHAT_FAILED")
		observability.ChatMessage(outcomeOf(mapped))
		obsctx.LoggerFromContext(ctx).Warn("chat failed", slog.String("conversation_id", conv.ID.String()), slog.Any("error", err))
		return ChatReply{}, mapped
	}
	if err := s.Conversations.UpdateHistory(ctx, conv.ID, res.History); err != nil {
		observability.ChatMessage("error")
		return ChatReply{}, fmt.Errorf("op=usecase.Chat: %w", err)
	}
	observability.ChatMessage("success")
	return ChatReply{Response: res.Reply, ConversationID: conv.ID}, nil
}

// List returns the user's bills, newest first.
func (s *BillService) List(ctx domain.Context, userID uuid.UUID) ([]domain.Bill, error) {
	bills, err := s.Bills.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("op=usecase.ListBills: %w", err)
	}
	if bills == nil {
		bills = []domain.Bill{}
	}
	return bills, nil
}

// BillDetail is a bill with its full conversations.
type BillDetail struct {
	Bill          domain.Bill
	Conversations []domain.Conversation
}

// Get loads one of the user's bills. A malformed id reads as not found.
func (s *BillService) Get(ctx domain.Context, userID uuid.UUID, billID string) (BillDetail, error) {
	id, err := uuid.Parse(billID)
	if err != nil {
		return BillDetail{}, ErrBillNotFound
	}
	bill, err := s.Bills.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return BillDetail{}, ErrBillNotFound
		}
		return BillDetail{}, fmt.Errorf("op=usecase.GetBill: %w", err)
	}
	if bill.UserID != userID {
		return BillDetail{}, ErrBillForbidden
	}
	convs, err := s.Conversations.ListByBill(ctx, bill.ID)
	if err != nil {
		return BillDetail{}, fmt.Errorf("op=usecase.GetBill: %w", err)
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	return BillDetail{Bill: bill, Conversations: convs}, nil
}

func (s *BillService) allowModelCall(ctx domain.Context, userID uuid.UUID) error {
	if s.Limiter == nil {
		return nil
	}
	ok, retryAfter, err := s.Limiter.Allow(ctx, userID.String())
	if err != nil {
		obsctx.LoggerFromContext(ctx).Warn("ai limiter unavailable, allowing request", slog.Any("error", err))
		return nil
	}
	if !ok {
		return ErrAIRateLimited.WithDetails(map[string]any{"retryAfterSeconds": int(retryAfter.Seconds()) + 1})
	}
	return nil
}

// agentFailure turns guardrail and schema failures into a client error under code.
// Upstream errors already carry their own code and pass through.
func agentFailure(err error, code string) error {
	var gerr *agent.GuardrailError
	if errors.As(err, &gerr) {
		return domain.NewAPIError(domain.ErrGuardrail, code, gerr.Message)
	}
	var serr *agent.SchemaError
	if errors.As(err, &serr) {
		return domain.NewAPIError(domain.ErrSchemaInvalid, code, agent.InvalidBillMessage).WithDetails(serr.Details())
	}
	if _, ok := domain.AsAPIError(err); ok {
		return err
	}
	return fmt.Errorf("op=usecase.agent: %w", err)
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrGuardrail), errors.Is(err, domain.ErrSchemaInvalid):
		return "rejected"
	case errors.Is(err, domain.ErrUpstreamRateLimit), errors.Is(err, domain.ErrUpstreamTimeout), errors.Is(err, domain.ErrUpstreamUnavailable):
		return "upstream_error"
	default:
		return "error"
	}
}
