package agent

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharow/sharow/internal/domain"
)

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Instructions, BuildPrompt("  ", nil))

	watts := 1500.0
	p := BuildPrompt("What is my shadow waste?", []domain.Appliance{
		{Name: "Air Conditioner", AvgUsageHours: 8, Wattage: &watts},
		{Name: "TV", AvgUsageHours: 2.5},
	})
	parts := strings.Split(p, "\n\n")
	require.GreaterOrEqual(t, len(parts), 4)
	assert.Equal(t, Instructions, strings.Join(parts[:len(parts)-3], "\n\n"))
	assert.Equal(t, "USER_QUESTION:\nWhat is my shadow waste?", parts[len(parts)-3])
	assert.Equal(t, "USER'S APPLIANCES (for cost calculation):\n- Air Conditioner: 8 hours/day, 1500W\n- TV: 2.5 hours/day", parts[len(parts)-2])
	assert.Contains(t, parts[len(parts)-1], "Please calculate the estimated cost per appliance")
}

func TestSeedHistory(t *testing.T) {
	t.Parallel()

	b := domain.BillAnalysis{
		TotalAmount:        decimal.NewNullDecimal(decimal.RequireFromString("1245.5")),
		UnitsConsumed:      decimal.NewNullDecimal(decimal.NewFromInt(182)),
		BillingDate:        "2024-05-01",
		ApplianceBreakdown: map[string]decimal.Decimal{"AC": decimal.NewFromInt(620)},
	}
	h := SeedHistory(b)
	require.Len(t, h, 2)
	assert.Equal(t, domain.RoleUser, h[0].Role)
	assert.Equal(t, SeedUserText, h[0].Text())
	assert.Equal(t, domain.RoleModel, h[1].Role)

	ctx := h[1].Text()
	assert.Contains(t, ctx, "- Total Amount: ₹1245.5")
	assert.Contains(t, ctx, "- Units Consumed: 182 kWh")
	assert.Contains(t, ctx, "- Billing Date: 2024-05-01")
	assert.Contains(t, ctx, `- Appliance Breakdown: {"AC":620}`)
	assert.Contains(t, ctx, "- Shadow Waste: ₹N/A")
	assert.Contains(t, ctx, "You can answer follow-up questions about this bill")
}

func TestTrimHistory(t *testing.T) {
	t.Parallel()

	count := func(domain.Turn) int { return 10 }
	turn := func(role, s string) domain.Turn { return domain.NewTurn(role, s) }
	history := []domain.Turn{
		turn(domain.RoleUser, "seed-u"), turn(domain.RoleModel, "seed-m"),
		turn(domain.RoleUser, "q1"), turn(domain.RoleModel, "a1"),
		turn(domain.RoleUser, "q2"), turn(domain.RoleModel, "a2"),
	}

	assert.Equal(t, history, TrimHistory(history, 60, count))

	for _, exhausted := range []int{0, -25} {
		got := TrimHistory(history, exhausted, count)
		require.Len(t, got, 2, "an exhausted budget keeps only the seed turns")
		assert.Equal(t, "seed-m", got[1].Text())
	}
	assert.Len(t, TrimHistory(history[:2], 0, count), 2)

	got := TrimHistory(history, 40, count)
	require.Len(t, got, 4)
	assert.Equal(t, "seed-u", got[0].Text())
	assert.Equal(t, "seed-m", got[1].Text())
	assert.Equal(t, "q2", got[2].Text())

	// Dropping one turn would leave a model turn first; it goes too.
	got = TrimHistory(history, 50, count)
	require.Len(t, got, 4)
	assert.Equal(t, "q2", got[2].Text())

	got = TrimHistory(history, 5, count)
	require.Len(t, got, 2, "seed turns are always kept")
}
