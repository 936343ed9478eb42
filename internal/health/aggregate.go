package health

import (
	"math"
	"time"

	"github.com/dcyfr/guardian/internal/scanner"
)

// Weights maps a scanner id to its integer weight in the overall mean.
// A scanner with no explicit weight defaults to 1.
type Weights map[scanner.ID]int

func (w Weights) weightFor(id scanner.ID) int {
	if v, ok := w[id]; ok {
		return v
	}
	return 1
}

// Build is the pure transform from a set of scan results to a Snapshot.
// Scores and statuses depend only on each result's scanner, status and
// metrics; the snapshot also copies each result's timestamp, violation
// and warning counts, summary and duration. Calling Build twice on
// equivalent input produces equivalent output up to Timestamp.
func Build(results []scanner.Result, weights Weights) Snapshot {
	components := make(map[scanner.ID]ComponentHealth, len(results))

	var weightedSum float64
	var totalWeight int
	var lastDuration int64

	for _, r := range results {
		score, skip := componentScore(r)
		component := ComponentHealth{
			Score:           score,
			LastRun:         r.Timestamp,
			ViolationsCount: len(r.Violations),
			WarningsCount:   len(r.Warnings),
			Metrics:         r.Metrics,
			Summary:         r.Summary,
		}
		if skip {
			component.Status = StatusCritical
		} else {
			component.Status = classify(score)
		}
		components[r.Scanner] = component

		if r.DurationMs > 0 {
			lastDuration = r.DurationMs
		}

		if skip {
			continue
		}
		weight := weights.weightFor(r.Scanner)
		weightedSum += score * float64(weight)
		totalWeight += weight
	}

	overallScore := 0.0
	if totalWeight > 0 {
		overallScore = round1(weightedSum / float64(totalWeight))
	}

	return Snapshot{
		Timestamp: time.Now(),
		Overall: Overall{
			Score:  overallScore,
			Status: classify(overallScore),
		},
		Scanners: components,
		Workspace: Workspace{
			Packages:         0,
			LastScanDuration: lastDuration,
		},
	}
}

// componentScore computes a single scanner's score and whether it is
// excluded from the overall weighted mean (skipped scanners are).
func componentScore(r scanner.Result) (score float64, skip bool) {
	if v, ok := r.Metrics["compliance"]; ok {
		return v, false
	}
	if v, ok := r.Metrics["usage"]; ok {
		return v, false
	}
	switch r.Status {
	case scanner.StatusPass:
		return 100, false
	case scanner.StatusWarn:
		return 70, false
	case scanner.StatusFail:
		return 30, false
	case scanner.StatusError:
		return 0, false
	case scanner.StatusSkipped:
		return 0, true
	default:
		return 0, false
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
