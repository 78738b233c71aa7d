// Package eval scores lab-analysis strategies (rule-only, hybrid) against
// annotated report fixtures.
package eval

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/text/cases"

	"github.com/medisphere/labrisk/internal/labanalysis"
)

// GroundTruth is the clinician annotation of a fixture.
type GroundTruth struct {
	Name        string            `json:"name"`
	TypeBilan   string            `json:"type_bilan"`
	DangerLevel string            `json:"danger_level"`
	MinScore    int               `json:"min_score"`
	Anomalies   []ExpectedAnomaly `json:"anomalies"`
}

// ExpectedAnomaly is one abnormal analyte the report should surface.
type ExpectedAnomaly struct {
	Name      string `json:"name"`
	Direction string `json:"direction"`
}

// EvalResult holds metrics from running one strategy on one fixture.
type EvalResult struct {
	Strategy          string
	Fixture           string
	Anomalies         CountMetrics
	DirectionAccuracy float64
	LevelMatch        bool
	LevelDistance     int // ordinal distance between expected and produced level
	ScoreShortfall    int // points below the expected minimum score
	OverallScore      float64
	Duration          time.Duration
	ModelCalls        int
	Error             string
}

// CountMetrics measures anomaly detection performance.
type CountMetrics struct {
	Expected  int
	Detected  int
	Matched   int
	Precision float64
	Recall    float64
	F1        float64
}

type anomalyPair struct {
	detected labanalysis.Anomaly
	truth    ExpectedAnomaly
}

// StrategyFunc analyzes one report text. Returns: result, model call count, error.
type StrategyFunc func(ctx context.Context, text string, rc labanalysis.RequestContext) (labanalysis.AnalysisResult, int, error)

// nameMatchThreshold is the minimum similarity for a detected anomaly name to
// count as the expected one.
const nameMatchThreshold = 0.8

// ComputeMetrics compares a strategy result against the fixture annotation.
func ComputeMetrics(
	strategy string,
	fixture string,
	result labanalysis.AnalysisResult,
	truth *GroundTruth,
	duration time.Duration,
	modelCalls int,
) *EvalResult {
	er := &EvalResult{
		Strategy:   strategy,
		Fixture:    fixture,
		Duration:   duration,
		ModelCalls: modelCalls,
	}

	matched := matchAnomalies(result.Anomalies, truth.Anomalies)

	er.Anomalies = CountMetrics{
		Expected: len(truth.Anomalies),
		Detected: len(result.Anomalies),
		Matched:  len(matched),
	}
	er.Anomalies.Precision = ratio(len(matched), len(result.Anomalies))
	er.Anomalies.Recall = ratio(len(matched), len(truth.Anomalies))
	p, r := er.Anomalies.Precision, er.Anomalies.Recall
	if p+r > 0 {
		er.Anomalies.F1 = 2 * p * r / (p + r)
	}

	if len(matched) > 0 {
		var ok int
		for _, pair := range matched {
			if strings.EqualFold(string(pair.detected.Direction), pair.truth.Direction) {
				ok++
			}
		}
		er.DirectionAccuracy = float64(ok) / float64(len(matched))
	}

	expected, known := labanalysis.ParseLevel(truth.DangerLevel)
	if known {
		er.LevelMatch = expected == result.DangerLevel
		er.LevelDistance = int(result.DangerLevel) - int(expected)
		if er.LevelDistance < 0 {
			er.LevelDistance = -er.LevelDistance
		}
	}
	if result.DangerScore < truth.MinScore {
		er.ScoreShortfall = truth.MinScore - result.DangerScore
	}

	levelScore := 1 - float64(er.LevelDistance)/float64(labanalysis.LevelCritical)
	er.OverallScore = 0.45*er.Anomalies.F1 +
		0.20*er.DirectionAccuracy +
		0.35*levelScore

	return er
}

// ratio treats 0/0 as perfect: nothing expected and nothing found is correct.
func ratio(num, den int) float64 {
	if den == 0 {
		if num == 0 {
			return 1
		}
		return 0
	}
	return float64(num) / float64(den)
}

// matchAnomalies greedily pairs each expected anomaly with the most similar
// unused detection.
func matchAnomalies(detected []labanalysis.Anomaly, truth []ExpectedAnomaly) []anomalyPair {
	used := make([]bool, len(detected))
	var matched []anomalyPair

	for _, t := range truth {
		best, bestSim := -1, 0.0
		for i, d := range detected {
			if used[i] {
				continue
			}
			if sim := nameSimilarity(d.Name, t.Name); sim >= nameMatchThreshold && sim > bestSim {
				best, bestSim = i, sim
			}
		}
		if best >= 0 {
			used[best] = true
			matched = append(matched, anomalyPair{detected: detected[best], truth: t})
		}
	}
	return matched
}

// nameSimilarity returns 1 - normalized edit distance of the case-folded names.
func nameSimilarity(a, b string) float64 {
	fold := cases.Fold()
	ra := []rune(strings.TrimSpace(fold.String(a)))
	rb := []rune(strings.TrimSpace(fold.String(b)))
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	longest := max(len(ra), len(rb))
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// RunEval runs every strategy over every fixture. Strategies run in name order.
func RunEval(ctx context.Context, fixtures []*Fixture, strategies map[string]StrategyFunc) []*EvalResult {
	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	sort.Strings(names)

	var results []*EvalResult
	for _, fix := range fixtures {
		rc := labanalysis.RequestContext{ID: fix.Name, TypeBilan: fix.GroundTruth.TypeBilan}
		for _, name := range names {
			start := time.Now()
			res, calls, err := strategies[name](ctx, fix.Text, rc)
			elapsed := time.Since(start)

			if err != nil {
				results = append(results, &EvalResult{
					Strategy:   name,
					Fixture:    fix.Name,
					Duration:   elapsed,
					ModelCalls: calls,
					Error:      err.Error(),
				})
				continue
			}
			results = append(results, ComputeMetrics(name, fix.Name, res, fix.GroundTruth, elapsed, calls))
		}
	}
	return results
}

// PrintSummary writes a per-run table followed by per-strategy averages.
func PrintSummary(w io.Writer, results []*EvalResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Strategy\tFixture\tP\tR\tF1\tDir\tLevel\tShortfall\tOverall\tCalls\tTime\tError")
	for _, r := range results {
		level := "ok"
		if !r.LevelMatch {
			level = fmt.Sprintf("off by %d", r.LevelDistance)
		}
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%.2f\t%.2f\t%s\t%d\t%.3f\t%d\t%s\t%s\n",
			r.Strategy, r.Fixture,
			r.Anomalies.Precision, r.Anomalies.Recall, r.Anomalies.F1,
			r.DirectionAccuracy, level, r.ScoreShortfall, r.OverallScore,
			r.ModelCalls, r.Duration.Round(time.Microsecond), truncate(r.Error, 40))
	}
	tw.Flush()

	byStrategy := make(map[string][]*EvalResult)
	var order []string
	for _, r := range results {
		if _, seen := byStrategy[r.Strategy]; !seen {
			order = append(order, r.Strategy)
		}
		byStrategy[r.Strategy] = append(byStrategy[r.Strategy], r)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Strategy Averages ===")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Strategy\tAvg F1\tLevel Accuracy\tAvg Overall\tTotal Calls")
	for _, name := range order {
		rs := byStrategy[name]
		var calls, levelOK int
		for _, r := range rs {
			calls += r.ModelCalls
			if r.LevelMatch {
				levelOK++
			}
		}
		fmt.Fprintf(tw, "%s\t%.3f\t%.3f\t%.3f\t%d\n",
			name,
			avg(rs, func(r *EvalResult) float64 { return r.Anomalies.F1 }),
			float64(levelOK)/float64(len(rs)),
			avg(rs, func(r *EvalResult) float64 { return r.OverallScore }),
			calls)
	}
	tw.Flush()
}

func avg(rs []*EvalResult, f func(*EvalResult) float64) float64 {
	if len(rs) == 0 {
		return 0
	}
	var sum float64
	for _, r := range rs {
		sum += f(r)
	}
	return sum / float64(len(rs))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
