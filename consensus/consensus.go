// Package consensus computes display statistics over revealed votes. It
// is a heuristic for prompting discussion, not a rigorous measure.
package consensus

import (
	"math"
	"strconv"
)

// Band classifies how close the revealed votes landed
type Band string

// Classification bands
const (
	BandExcellent       Band = "Excellent"
	BandGood            Band = "Good"
	BandNeedsDiscussion Band = "Needs Discussion"
)

var suggestions = map[Band]string{
	BandExcellent:       "Strong agreement. Record the estimate and move on.",
	BandGood:            "Close enough. A quick confirmation should settle it.",
	BandNeedsDiscussion: "Wide spread. Have the outliers explain their reasoning before re-voting.",
}

// Suggestion returns the fixed follow-up advice for a band.
func Suggestion(band Band) string {
	return suggestions[band]
}

// Result holds the aggregate statistics of one revealed round. Average
// and Spread are nil when too few numeric votes exist to define them;
// Percent and Band are only set when at least one numeric vote exists.
type Result struct {
	Average      *float64 `json:"average,omitempty"`
	Spread       *float64 `json:"spread,omitempty"`
	Percent      *int     `json:"consensusPercent,omitempty"`
	Band         Band     `json:"band,omitempty"`
	Suggestion   string   `json:"suggestion,omitempty"`
	NumericCount int      `json:"numericCount"`
	TotalCount   int      `json:"totalCount"`
}

// Calculate derives the consensus statistics for a set of revealed vote
// values. Non-numeric values ("?", "☕", t-shirt sizes) count toward
// participation but are excluded from the numeric aggregates.
func Calculate(values []string) Result {
	result := Result{TotalCount: len(values)}

	var nums []float64
	for _, v := range values {
		if n, ok := parseValue(v); ok {
			nums = append(nums, n)
		}
	}
	result.NumericCount = len(nums)
	if len(nums) == 0 {
		return result
	}

	sum, min, max := 0.0, nums[0], nums[0]
	for _, n := range nums {
		sum += n
		if n < min {
			min = n
		}
		if n > max {
			max = n
		}
	}

	avg := sum / float64(len(nums))
	result.Average = &avg

	percent := 100
	if len(nums) >= 2 {
		spread := max - min
		result.Spread = &spread
		percent = int(math.Round(100 - (spread/math.Max(max, 1))*100))
		if percent < 0 {
			percent = 0
		}
	}
	result.Percent = &percent

	switch {
	case percent >= 90:
		result.Band = BandExcellent
	case percent >= 70:
		result.Band = BandGood
	default:
		result.Band = BandNeedsDiscussion
	}
	result.Suggestion = suggestions[result.Band]

	return result
}

func parseValue(v string) (float64, bool) {
	if v == "½" {
		return 0.5, true
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
