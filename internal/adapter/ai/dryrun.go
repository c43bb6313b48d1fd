package ai

import (
	"fmt"
	"log/slog"

	"github.com/sharow/sharow/internal/domain"
)

const dryRunBill = "```json\n" + `{
  "totalAmount": "₹1,245.50",
  "unitsConsumed": "182 kWh",
  "billingDate": "2024-05-01",
  "dueDate": "2024-05-21",
  "accountNumber": "DRY-0001",
  "customerName": "Dry Run",
  "period": "April 2024",
  "applianceBreakdown": {"Air Conditioner": 620.0, "Refrigerator": 310.5, "Lighting": 95.0},
  "shadowWaste": 85,
  "analysis": "Dry-run analysis: consumption is typical for a small household.",
  "tips": ["Unplug chargers when idle", "Set the air conditioner to 24°C"],
  "unusualConsumption": "",
  "potentialSavings": 150
}` + "\n```"

// DryRunModel answers without calling any provider so the service runs end to end locally.
type DryRunModel struct{}

// Generate implements domain.Model.
func (DryRunModel) Generate(_ domain.Context, req domain.ModelRequest) (string, error) {
	if req.Image != nil {
		slog.Debug("dry-run model returned canned bill", slog.Int("image_bytes", len(req.Image.Data)))
		return dryRunBill, nil
	}
	return fmt.Sprintf("DRY-RUN: Gemini client not initialized. %d earlier turns were received.", len(req.History)), nil
}
