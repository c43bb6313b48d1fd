package agent

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sharow/sharow/internal/domain"
)

// Name is the assistant persona.
const Name = "Sharow"

// Instructions open every bill analysis prompt.
const Instructions = `You are Sharow, a smart assistant for electricity bill and expense calculations.
Your job is to:
- Help users understand their electricity bills and expenses.
- Parse and extract bill details such as total amount, units consumed, billing date, appliance breakdown, and shadow waste (vampire load).
- Always return the bill as a single JSON object inside a ` + "```json" + ` block with these fields:
  totalAmount (number, rupees), unitsConsumed (number, kWh), billingDate, dueDate,
  accountNumber, customerName, address, period (strings),
  applianceBreakdown (object of appliance name to estimated monthly cost in rupees),
  shadowWaste (number, rupees lost to standby load), analysis (string),
  tips (array of strings), unusualConsumption (string), potentialSavings (number, rupees).
- Leave out fields you cannot read from the bill instead of guessing.
- Be accurate, concise, and user-friendly.`

// ChatInstructions steer follow-up answers.
const ChatInstructions = `You are Sharow, a smart assistant for electricity bill and expense calculations.
Answer the user's follow-up questions about the bill discussed earlier in this conversation.
Reply in plain text, not JSON. Be accurate, concise, and user-friendly, and give practical energy-saving advice when it helps.`

// SeedUserText is the first turn of every bill conversation.
const SeedUserText = "Here is my electricity bill image. Please analyze it."

// BuildPrompt assembles the analysis prompt from the instructions, the user's
// optional question and their appliance list.
func BuildPrompt(question string, appliances []domain.Appliance) string {
	parts := []string{Instructions}
	if q := strings.TrimSpace(question); q != "" {
		parts = append(parts, "USER_QUESTION:\n"+q)
	}
	if len(appliances) > 0 {
		lines := make([]string, 0, len(appliances))
		for _, a := range appliances {
			line := fmt.Sprintf("- %s: %s hours/day", a.Name, formatFloat(a.AvgUsageHours))
			if a.Wattage != nil && *a.Wattage > 0 {
				line += fmt.Sprintf(", %sW", formatFloat(*a.Wattage))
			}
			lines = append(lines, line)
		}
		parts = append(parts,
			"USER'S APPLIANCES (for cost calculation):\n"+strings.Join(lines, "\n"),
			"Please calculate the estimated cost per appliance based on the bill rate and provide tips on which appliances are consuming the most.")
	}
	return strings.Join(parts, "\n\n")
}

// SeedHistory is the two-turn history stored with a freshly analysed bill so
// that follow-up questions have the bill in context.
func SeedHistory(b domain.BillAnalysis) []domain.Turn {
	return []domain.Turn{
		domain.NewTurn(domain.RoleUser, SeedUserText),
		domain.NewTurn(domain.RoleModel, BillContext(b)),
	}
}

// BillContext renders the model-side seed turn.
func BillContext(b domain.BillAnalysis) string {
	breakdown := "{}"
	if len(b.ApplianceBreakdown) > 0 {
		if raw, err := json.Marshal(b.ApplianceBreakdown); err == nil {
			breakdown = string(raw)
		}
	}
	billingDate := b.BillingDate
	if billingDate == "" {
		billingDate = "N/A"
	}
	return fmt.Sprintf(`You just analyzed an electricity bill with the following details:
- Total Amount: ₹%s
- Units Consumed: %s kWh
- Billing Date: %s
- Appliance Breakdown: %s
- Shadow Waste: ₹%s

You can answer follow-up questions about this bill, provide energy-saving tips, or help analyze consumption patterns.`,
		formatDecimal(b.TotalAmount), formatDecimal(b.UnitsConsumed), billingDate, breakdown, formatDecimal(b.ShadowWaste))
}

func formatDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return "N/A"
	}
	return d.Decimal.String()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
