// Package score is the deterministic scoring engine.
//
// Score maps a fact set to a 0-100 overall score plus per-category
// breakdowns. Same facts in, same result out, bit for bit: rules are
// evaluated in declaration order, contributions are integer points, and
// rounding is defined once (round half up) and applied once per category
// and once for the total. Missing facts simply leave rules unsatisfied;
// the engine never returns an error.
//
// Any change to rule logic or weights must bump the scoring version
// constant carried by the version registry; run keys depend on it.
package score

import (
	"math"

	"github.com/hazyhaar/storeaudit/audit/internal/facts"
)

// Result is the scoring output for one fact set.
type Result struct {
	Total      int             `json:"total"`
	Categories []CategoryScore `json:"categories"`
}

// CategoryScore is one category's breakdown.
type CategoryScore struct {
	Name   string   `json:"name"`
	Score  int      `json:"score"`  // 0-100 within the category
	Earned int      `json:"earned"` // raw points satisfied
	Max    int      `json:"max"`    // raw points available
	Weight int      `json:"weight"`
	Failed []string `json:"failed,omitempty"` // names of unsatisfied rules, declaration order
}

// Rule contributes a bounded number of points when its predicate holds.
type Rule struct {
	Name      string
	Points    int
	Satisfied func(*facts.Facts) bool
}

// Category is an independent weighted rule set.
type Category struct {
	Name   string
	Weight int
	Rules  []Rule
}

// Score evaluates the weights' rule sets over f. f may be nil or empty;
// every rule then reads its conservative default (unsatisfied).
func Score(f *facts.Facts, categories []Category) Result {
	if f == nil {
		f = &facts.Facts{}
	}

	res := Result{Categories: make([]CategoryScore, 0, len(categories))}
	weightedSum := 0.0
	weightTotal := 0

	for _, cat := range categories {
		cs := CategoryScore{Name: cat.Name, Weight: cat.Weight}
		for _, r := range cat.Rules {
			cs.Max += r.Points
			if r.Satisfied(f) {
				cs.Earned += r.Points
			} else {
				cs.Failed = append(cs.Failed, r.Name)
			}
		}
		if cs.Max > 0 {
			cs.Score = roundHalfUp(100 * float64(cs.Earned) / float64(cs.Max))
		}
		weightedSum += float64(cat.Weight) * float64(cs.Earned) / float64(max(cs.Max, 1))
		weightTotal += cat.Weight
		res.Categories = append(res.Categories, cs)
	}

	if weightTotal > 0 {
		res.Total = roundHalfUp(100 * weightedSum / float64(weightTotal))
	}
	return res
}

// roundHalfUp is the single rounding rule of the engine: .5 always rounds
// away from zero toward the next integer.
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
