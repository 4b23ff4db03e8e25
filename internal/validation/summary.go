package validation

import (
	"math"

	api "github.com/sitescan/sitescan/api/v1alpha1"
)

// Summary aggregates a finished batch. It is derived data: recomputable from
// the result list at any time.
type Summary struct {
	Total         int
	Valid         int
	Invalid       int
	TotalErrors   int
	TotalWarnings int
	// MessageTally counts occurrences per message text, across errors and
	// warnings.
	MessageTally map[string]int
	// SeverityTally counts messages per severity level.
	SeverityTally map[api.Severity]int
	// ValidPercent is rounded to the nearest integer, 0 for an empty batch.
	ValidPercent int
}

func Summarize(results []Result) Summary {
	s := Summary{
		Total:         len(results),
		MessageTally:  make(map[string]int),
		SeverityTally: make(map[api.Severity]int),
	}

	for _, r := range results {
		if r.IsValid {
			s.Valid++
		} else {
			s.Invalid++
		}
		s.TotalErrors += len(r.Errors)
		s.TotalWarnings += len(r.Warnings)

		for _, msg := range r.Errors {
			s.MessageTally[msg.Message]++
			s.SeverityTally[msg.Severity]++
		}
		for _, msg := range r.Warnings {
			s.MessageTally[msg.Message]++
			s.SeverityTally[msg.Severity]++
		}
	}

	if s.Total > 0 {
		s.ValidPercent = int(math.Round(float64(s.Valid) / float64(s.Total) * 100))
	}
	return s
}
