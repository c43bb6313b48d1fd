// Package agent turns bill images and follow-up questions into model calls,
// with guardrails on both sides and schema validation of the extracted bill.
package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sharow/sharow/internal/domain"
	"github.com/sharow/sharow/internal/observability"
)

const defaultImageMIME = "image/png"

// TokenCounter sizes history turns.
type TokenCounter interface {
	CountTurn(t domain.Turn) int
	Count(text string) int
}

// Agent is the bill assistant.
type Agent struct {
	model         domain.Model
	guards        *Guardrails
	counter       TokenCounter
	historyBudget int
}

// New builds an Agent. A nil counter disables history trimming.
func New(model domain.Model, guards *Guardrails, counter TokenCounter, historyBudget int) *Agent {
	return &Agent{model: model, guards: guards, counter: counter, historyBudget: historyBudget}
}

// AnalyzeInput is one bill image plus optional user context.
type AnalyzeInput struct {
	Image      []byte
	MIME       string
	Question   string
	Appliances []domain.Appliance
}

// AnalyzeResult is a validated bill and the seed conversation for it.
type AnalyzeResult struct {
	Bill    domain.BillAnalysis
	History []domain.Turn
}

// Analyze extracts a bill from an image.
func (a *Agent) Analyze(ctx context.Context, in AnalyzeInput) (AnalyzeResult, error) {
	lg := observability.LoggerFromContext(ctx)

	if in.Question != "" {
		if err := a.guards.Input.Run(ctx, in.Question); err != nil {
			return AnalyzeResult{}, fmt.Errorf("op=agent.Analyze: %w", err)
		}
	}

	mime := in.MIME
	if mime == "" {
		mime = defaultImageMIME
	}
	text, err := a.model.Generate(ctx, domain.ModelRequest{
		Prompt: BuildPrompt(in.Question, in.Appliances),
		Image:  &domain.InlineImage{Data: in.Image, MIME: mime},
	})
	if err != nil {
		return AnalyzeResult{}, fmt.Errorf("op=agent.Analyze: %w", err)
	}

	if err := a.guards.Output.Run(ctx, text); err != nil {
		return AnalyzeResult{}, fmt.Errorf("op=agent.Analyze: %w", err)
	}

	obj, ok := extractJSON(text)
	if !ok {
		lg.Warn("model reply had no JSON object", slog.Int("reply_chars", len(text)))
	}
	bill, err := parseBill(obj)
	if err != nil {
		return AnalyzeResult{}, fmt.Errorf("op=agent.Analyze: %w", err)
	}
	return AnalyzeResult{Bill: bill, History: SeedHistory(bill)}, nil
}

// ChatResult is the model reply and the history with the new exchange appended.
type ChatResult struct {
	Reply   string
	History []domain.Turn
}

// Chat answers a follow-up question in the context of history.
func (a *Agent) Chat(ctx context.Context, history []domain.Turn, message string) (ChatResult, error) {
	if err := a.guards.Input.Run(ctx, message); err != nil {
		return ChatResult{}, fmt.Errorf("op=agent.Chat: %w", err)
	}

	sent := history
	if a.counter != nil && a.historyBudget > 0 {
		sent = TrimHistory(history, a.historyBudget-a.counter.Count(message), a.counter.CountTurn)
		if dropped := len(history) - len(sent); dropped > 0 {
			observability.LoggerFromContext(ctx).Debug("trimmed chat history",
				slog.Int("dropped_turns", dropped),
				slog.Int("kept_turns", len(sent)))
		}
	}

	reply, err := a.model.Generate(ctx, domain.ModelRequest{
		System:  ChatInstructions,
		History: sent,
		Prompt:  message,
	})
	if err != nil {
		return ChatResult{}, fmt.Errorf("op=agent.Chat: %w", err)
	}
	if err := a.guards.Output.Run(ctx, reply); err != nil {
		return ChatResult{}, fmt.Errorf("op=agent.Chat: %w", err)
	}

	updated := make([]domain.Turn, 0, len(history)+2)
	updated = append(updated, history...)
	updated = append(updated,
		domain.NewTurn(domain.RoleUser, message),
		domain.NewTurn(domain.RoleModel, reply))
	return ChatResult{Reply: reply, History: updated}, nil
}
