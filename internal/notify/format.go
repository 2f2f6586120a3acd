package notify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rusel95/interexchangebot/internal/domain"
)

// FormatOpportunity renders an opportunity as a Telegram Markdown message.
func FormatOpportunity(opp domain.ArbOpportunity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* %.3f%%\n", opp.Symbol, opp.ProfitPercent)
	fmt.Fprintf(&b, "buy on %s at %s\n", opp.BuyExchange, formatPrice(opp.BuyPrice))
	fmt.Fprintf(&b, "sell on %s at %s", opp.SellExchange, formatPrice(opp.SellPrice))
	if !opp.DetectedAt.IsZero() {
		fmt.Fprintf(&b, "\n_%s_", opp.DetectedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	return b.String()
}

// formatPrice prints the shortest exact representation so sub-cent prices
// keep their digits.
func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
