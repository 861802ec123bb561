package classifier

import (
	"fmt"
	"math"
)

// Pattern messages emitted by DetectWorkPatterns
const (
	PatternHighProductivity = "High productivity period"
	PatternLowProductivity  = "Low productivity period"
	PatternTaskSwitching    = "Frequent task switching"
	PatternDeepWork         = "Deep work session detected"
	PatternRegularBreaks    = "Regular break intervals"
	PatternNoBreaks         = "No breaks detected in recent activity"
)

// FocusedOnPattern returns the dominant-content pattern message for a type
func FocusedOnPattern(t ContentType) string {
	return fmt.Sprintf("Focused on %s", t)
}

// NeutralProductivityScore is returned for an empty history
const NeutralProductivityScore = 50

// CalculateProductivityScore combines per-activity scores into 0..100.
// Activities are oldest first; weights grow linearly from 1.0 for the
// oldest to 1.5 for the newest.
func CalculateProductivityScore(activities []ContentAnalysis, cfg Config) int {
	n := len(activities)
	if n == 0 {
		return NeutralProductivityScore
	}

	var weighted, totalWeight float64
	for i, a := range activities {
		w := 1.0
		if n > 1 {
			w += 0.5 * float64(i) / float64(n-1)
		}
		weighted += w * ActivityScore(a, cfg)
		totalWeight += w
	}

	score := int(math.Round(weighted / totalWeight * 100))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// DetectWorkPatterns describes behavior across the activities, oldest first.
// At least three activities are needed.
func DetectWorkPatterns(activities []ContentAnalysis) []string {
	n := len(activities)
	if n < 3 {
		return nil
	}

	var patterns []string

	counts := make(map[ContentType]int)
	var order []ContentType
	productive := 0
	breaks := 0
	switches := 0
	run, longestRun := 0, 0

	for i, a := range activities {
		if counts[a.ContentType] == 0 {
			order = append(order, a.ContentType)
		}
		counts[a.ContentType]++

		if a.IsProductive {
			productive++
		}
		if a.WorkCategory == CategoryBreakTime {
			breaks++
		}
		if i > 0 && a.ContentType != activities[i-1].ContentType {
			switches++
		}
		if a.WorkCategory == CategoryFocusedWork {
			run++
			if run > longestRun {
				longestRun = run
			}
		} else {
			run = 0
		}
	}

	for _, t := range order {
		if float64(counts[t])/float64(n) >= 0.6 {
			patterns = append(patterns, FocusedOnPattern(t))
			break
		}
	}

	ratio := float64(productive) / float64(n)
	if ratio >= 0.8 {
		patterns = append(patterns, PatternHighProductivity)
	} else if ratio <= 0.3 {
		patterns = append(patterns, PatternLowProductivity)
	}

	if float64(switches)/float64(n-1) >= 0.7 {
		patterns = append(patterns, PatternTaskSwitching)
	}

	if longestRun >= 5 {
		patterns = append(patterns, PatternDeepWork)
	}

	if breaks > 0 {
		patterns = append(patterns, PatternRegularBreaks)
	} else if n >= 10 {
		patterns = append(patterns, PatternNoBreaks)
	}

	return patterns
}

// PredictNextActivity returns the content type with the largest
// recency-weighted frequency (weight 1 + i/n). Ties go to the type seen
// first. An empty history predicts UNKNOWN.
func PredictNextActivity(activities []ContentAnalysis) ContentType {
	n := len(activities)
	if n == 0 {
		return ContentUnknown
	}

	sums := make(map[ContentType]float64)
	var order []ContentType
	for i, a := range activities {
		if _, seen := sums[a.ContentType]; !seen {
			order = append(order, a.ContentType)
		}
		sums[a.ContentType] += 1 + float64(i)/float64(n)
	}

	best := order[0]
	for _, t := range order[1:] {
		if sums[t] > sums[best] {
			best = t
		}
	}
	return best
}

// Report bundles the analytics for one history snapshot
type Report struct {
	Activities        int
	ProductivityScore int
	Patterns          []string
	PredictedNext     ContentType
}

// Analyze computes all analytics over the activities
func Analyze(activities []ContentAnalysis, cfg Config) Report {
	return Report{
		Activities:        len(activities),
		ProductivityScore: CalculateProductivityScore(activities, cfg),
		Patterns:          DetectWorkPatterns(activities),
		PredictedNext:     PredictNextActivity(activities),
	}
}
