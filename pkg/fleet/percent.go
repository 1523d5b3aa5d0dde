package fleet

import (
	"fmt"

	"github.com/3leaps/bucketscan/pkg/inventory"
)

// ApplyPercentages sets PercentOfTotal on every summary from its share of the
// summed display Size, and returns that total. When the total is zero every
// percentage is zero.
//
// Percentages are stored unrounded so they sum to 100; FormatPercent rounds
// for display.
func ApplyPercentages(summaries []*inventory.BucketSummary) float64 {
	var total float64
	for _, s := range summaries {
		total += s.Size
	}
	for _, s := range summaries {
		if total == 0 {
			s.PercentOfTotal = 0
			continue
		}
		s.PercentOfTotal = s.Size / total * 100
	}
	return total
}

// FormatPercent renders a percentage with two decimals, e.g. "12.50%".
func FormatPercent(p float64) string {
	return fmt.Sprintf("%.2f%%", p)
}
