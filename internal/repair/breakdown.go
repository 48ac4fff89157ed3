package repair

import (
	"fmt"
	"strings"

	"github.com/epicdeals/instant-offer/internal/currency"
	"github.com/epicdeals/instant-offer/internal/model"
)

// BreakdownMessage formats a user-facing explanation of the repair
// deductions. Empty when nothing was deducted.
func BreakdownMessage(est *model.RepairEstimate) string {
	if est == nil || len(est.Items) == 0 || est.Total == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n**Why is the offer adjusted?**\n\n")
	b.WriteString("**Repair Costs Breakdown:**\n")

	for _, item := range est.Items {
		fmt.Fprintf(&b, "• %s: **%s** (%s - %s)\n",
			item.Defect, currency.FormatZARWhole(item.Cost), item.Source, item.Details)
	}

	fmt.Fprintf(&b, "\n**Total Deductions: %s**\n\n", currency.FormatZARWhole(est.Total))
	b.WriteString("_These are current market rates from South African repair shops. " +
		"We deduct these costs to ensure we can properly refurbish your item before resale._\n")

	return b.String()
}
