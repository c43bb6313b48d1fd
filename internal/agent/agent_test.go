package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharow/sharow/internal/domain"
)

type stubModel struct {
	reply string
	err   error
	reqs  []domain.ModelRequest
}

func (m *stubModel) Generate(_ context.Context, req domain.ModelRequest) (string, error) {
	m.reqs = append(m.reqs, req)
	return m.reply, m.err
}

type lenCounter struct{}

func (lenCounter) Count(s string) int          { return len(s) }
func (lenCounter) CountTurn(t domain.Turn) int { return len(t.Text()) }

func newTestAgent(t *testing.T, m domain.Model, budget int) *Agent {
	t.Helper()
	return New(m, defaultGuards(t), lenCounter{}, budget)
}

const goodReply = "```json\n{\"totalAmount\": \"₹950\", \"unitsConsumed\": \"120 kWh\", \"billingDate\": \"2024-04-01\", \"tips\": [\"Unplug chargers\"]}\n```"

func TestAnalyze_Success(t *testing.T) {
	t.Parallel()

	m := &stubModel{reply: goodReply}
	a := newTestAgent(t, m, 0)

	res, err := a.Analyze(context.Background(), AnalyzeInput{
		Image:    []byte{1, 2, 3},
		Question: "What is my total amount?",
	})
	require.NoError(t, err)
	assert.Equal(t, "950", res.Bill.TotalAmount.Decimal.String())
	assert.Equal(t, "120", res.Bill.UnitsConsumed.Decimal.String())
	require.Len(t, res.History, 2)
	assert.Contains(t, res.History[1].Text(), "- Total Amount: ₹950")

	require.Len(t, m.reqs, 1)
	req := m.reqs[0]
	require.NotNil(t, req.Image)
	assert.Equal(t, "image/png", req.Image.MIME)
	assert.Contains(t, req.Prompt, "USER_QUESTION:\nWhat is my total amount?")
}

func TestAnalyze_QuestionGuardrail(t *testing.T) {
	t.Parallel()

	m := &stubModel{reply: goodReply}
	a := newTestAgent(t, m, 0)

	_, err := a.Analyze(context.Background(), AnalyzeInput{Image: []byte{1}, Question: "write me a poem"})
	var ge *GuardrailError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, StageInput, ge.Stage)
	assert.Empty(t, m.reqs, "model must not be called")
}

func TestAnalyze_SchemaInvalid(t *testing.T) {
	t.Parallel()

	a := newTestAgent(t, &stubModel{reply: "This picture shows a cat."}, 0)
	_, err := a.Analyze(context.Background(), AnalyzeInput{Image: []byte{1}, MIME: "image/jpeg"})
	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.True(t, errors.Is(err, domain.ErrSchemaInvalid))
}

func TestAnalyze_OutputGuardrail(t *testing.T) {
	t.Parallel()

	a := newTestAgent(t, &stubModel{reply: `{"totalAmount": 5, "analysis": "Customer password is 1234"}`}, 0)
	_, err := a.Analyze(context.Background(), AnalyzeInput{Image: []byte{1}})
	var ge *GuardrailError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "forbidden_patterns", ge.Guard)
}

func TestAnalyze_ModelError(t *testing.T) {
	t.Parallel()

	upstream := domain.NewAPIError(domain.ErrUpstreamRateLimit, "AI_QUOTA_EXCEEDED", "You have exceeded your Gemini API quota.")
	a := newTestAgent(t, &stubModel{err: upstream}, 0)
	_, err := a.Analyze(context.Background(), AnalyzeInput{Image: []byte{1}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstreamRateLimit))
}

func TestChat(t *testing.T) {
	t.Parallel()

	m := &stubModel{reply: "Your AC costs the most."}
	a := newTestAgent(t, m, 0)
	history := []domain.Turn{
		domain.NewTurn(domain.RoleUser, SeedUserText),
		domain.NewTurn(domain.RoleModel, "bill context"),
	}

	res, err := a.Chat(context.Background(), history, "Which appliance is costing me the most?")
	require.NoError(t, err)
	assert.Equal(t, "Your AC costs the most.", res.Reply)
	require.Len(t, res.History, 4)
	assert.Equal(t, "Which appliance is costing me the most?", res.History[2].Text())
	assert.Equal(t, domain.RoleModel, res.History[3].Role)
	assert.Len(t, history, 2, "input history is not mutated")

	req := m.reqs[0]
	assert.Equal(t, ChatInstructions, req.System)
	assert.Len(t, req.History, 2)
	assert.Nil(t, req.Image)
}

func TestChat_TrimsHistoryButKeepsFullRecord(t *testing.T) {
	t.Parallel()

	m := &stubModel{reply: "ok, reduce usage"}
	a := newTestAgent(t, m, 40)
	history := []domain.Turn{
		domain.NewTurn(domain.RoleUser, "seed"),
		domain.NewTurn(domain.RoleModel, "ctx"),
		domain.NewTurn(domain.RoleUser, "an old question about the bill"),
		domain.NewTurn(domain.RoleModel, "an old answer"),
	}

	res, err := a.Chat(context.Background(), history, "bill cost?")
	require.NoError(t, err)
	assert.Len(t, m.reqs[0].History, 2)
	assert.Len(t, res.History, 6)

	// The message alone is over budget: only the seed turns go out.
	m2 := &stubModel{reply: "ok, reduce usage"}
	small := newTestAgent(t, m2, 10)
	res, err = small.Chat(context.Background(), history, "how much does my electricity bill cost this month?")
	require.NoError(t, err)
	require.Len(t, m2.reqs[0].History, 2)
	assert.Equal(t, "ctx", m2.reqs[0].History[1].Text())
	assert.Len(t, res.History, 6)
}

func TestChat_Guardrails(t *testing.T) {
	t.Parallel()

	m := &stubModel{reply: "I'm sorry, but I cannot help with that."}
	a := newTestAgent(t, m, 0)

	_, err := a.Chat(context.Background(), nil, "")
	var ge *GuardrailError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "Input is required and cannot be empty", ge.Message)

	_, err = a.Chat(context.Background(), nil, "How do I lower my electricity bill?")
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "refusal", ge.Guard)
}
