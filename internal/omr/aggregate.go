package omr

import "time"

// Aggregator options

type AggOption func(*aggConfig)

type aggConfig struct {
	TrendDays int
	Now       time.Time
}

// WithTrendDays sets the trailing trend window in calendar days.
func WithTrendDays(n int) AggOption {
	return func(c *aggConfig) { c.TrendDays = n }
}

// WithNow anchors the trend window; defaults to the wall clock.
func WithNow(t time.Time) AggOption {
	return func(c *aggConfig) { c.Now = t }
}

// DefaultTrendDays is the trailing trend window used by the dashboard.
const DefaultTrendDays = 7

// Histogram bucket edges. The top bucket is closed: a 100.00 lands in 90-100.
var bucketLabels = []string{"0-50", "50-60", "60-70", "70-80", "80-90", "90-100"}

// Aggregate reduces many scored sheets to cohort statistics. All reductions
// are sums, counts, min and max, so the output does not depend on input
// order. An empty input yields zeroed stats, not an error; the trend always
// has exactly TrendDays entries, zero-filled for days without results.
func Aggregate(recs []ResultRecord, opts ...AggOption) CohortStats {
	cfg := &aggConfig{TrendDays: DefaultTrendDays, Now: time.Now()}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.TrendDays < 1 {
		cfg.TrendDays = 1
	}

	stats := CohortStats{
		TotalResults:       len(recs),
		SubjectPerformance: map[string]SubjectStat{},
		VersionPerformance: map[string]SubjectStat{},
		ScoreDistribution:  make([]Bucket, len(bucketLabels)),
	}
	for i, l := range bucketLabels {
		stats.ScoreDistribution[i].Label = l
	}

	var pctSum float64
	subjSums := map[string]float64{}
	subjCounts := map[string]int{}
	verSums := map[string]float64{}
	verCounts := map[string]int{}
	trendSums := make([]float64, cfg.TrendDays)
	trendCounts := make([]int, cfg.TrendDays)
	today := cfg.Now.Format("2006-01-02")

	for i, r := range recs {
		p := r.Result.Percentage
		pctSum += p
		if i == 0 || p > stats.HighestScore {
			stats.HighestScore = p
		}
		if i == 0 || p < stats.LowestScore {
			stats.LowestScore = p
		}
		stats.ScoreDistribution[bucketFor(p)].Count++

		// Subjects missing from a result are not zero-filled: the mean runs
		// over the results that reported them.
		for subj, correct := range r.Result.SubjectScores {
			subjSums[subj] += float64(correct)
			subjCounts[subj]++
		}
		verSums[r.Version] += p
		verCounts[r.Version]++

		// Day offset from the anchor, by calendar date in the anchor's zone.
		day := r.Timestamp.In(cfg.Now.Location()).Format("2006-01-02")
		ti, ok := dayIndex(day, today, cfg.TrendDays)
		if ok {
			trendSums[ti] += p
			trendCounts[ti]++
		}
	}

	if len(recs) > 0 {
		stats.AverageScore = round2(pctSum / float64(len(recs)))
	}
	for subj, sum := range subjSums {
		stats.SubjectPerformance[subj] = SubjectStat{Average: round2(sum / float64(subjCounts[subj])), Count: subjCounts[subj]}
	}
	for v, sum := range verSums {
		stats.VersionPerformance[v] = SubjectStat{Average: round2(sum / float64(verCounts[v])), Count: verCounts[v]}
	}

	stats.RecentTrend = make([]TrendPoint, cfg.TrendDays)
	for i := 0; i < cfg.TrendDays; i++ {
		d := cfg.Now.AddDate(0, 0, i-cfg.TrendDays+1)
		tp := TrendPoint{Date: d.Format("2006-01-02"), Count: trendCounts[i]}
		if tp.Count > 0 {
			tp.Average = round2(trendSums[i] / float64(tp.Count))
		}
		stats.RecentTrend[i] = tp
	}
	return stats
}

// bucketFor maps a percentage to a histogram bucket index. Out-of-range
// values clamp to the end buckets so counts always sum to the input size.
func bucketFor(p float64) int {
	switch {
	case p < 50:
		return 0
	case p < 60:
		return 1
	case p < 70:
		return 2
	case p < 80:
		return 3
	case p < 90:
		return 4
	default:
		return 5
	}
}

// dayIndex places a YYYY-MM-DD date in the trailing window ending at today.
// Index 0 is the oldest day, days-1 is today; outside the window returns false.
func dayIndex(day, today string, days int) (int, bool) {
	td, err := time.Parse("2006-01-02", today)
	if err != nil {
		return 0, false
	}
	dd, err := time.Parse("2006-01-02", day)
	if err != nil {
		return 0, false
	}
	off := int(td.Sub(dd).Hours() / 24) // both parsed at UTC midnight
	if off < 0 || off >= days {
		return 0, false
	}
	return days - 1 - off, true
}
