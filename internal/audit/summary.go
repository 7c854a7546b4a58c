package audit

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Input quality bucket lower bounds
const (
	HighQuality   = 0.8
	MediumQuality = 0.5
)

// QualityBuckets counts records by input quality
type QualityBuckets struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// LatencySummary describes end-to-end decision latency
type LatencySummary struct {
	Min  time.Duration `json:"min"`
	Max  time.Duration `json:"max"`
	Mean time.Duration `json:"mean"`
}

// AffectSummary aggregates affect readings
type AffectSummary struct {
	Readings       int            `json:"readings"`
	Dominant       map[string]int `json:"dominant_frequency"`
	MostFrequent   string         `json:"most_frequent"`
	MeanConfidence float64        `json:"mean_confidence"`
	MeanIntensity  float64        `json:"mean_intensity"`
}

// MatchSummary aggregates recognition and verification decisions
type MatchSummary struct {
	Decisions      int     `json:"decisions"`
	Accepted       int     `json:"accepted"`
	Rejected       int     `json:"rejected"`
	AcceptanceRate float64 `json:"acceptance_rate"`
	MeanConfidence float64 `json:"mean_confidence"`
}

// Summary is an aggregate view over a set of records
type Summary struct {
	Total       int            `json:"total"`
	ByKind      map[Kind]int   `json:"by_kind"`
	Quality     QualityBuckets `json:"quality"`
	MeanQuality float64        `json:"mean_quality"`
	Latency     LatencySummary `json:"latency"`
	Affect      AffectSummary  `json:"affect"`
	Matches     MatchSummary   `json:"matches"`
	Enrollments int            `json:"enrollments"`
	First       time.Time      `json:"first"`
	Last        time.Time      `json:"last"`
}

// Summarize aggregates records. An empty input yields a zero summary.
func Summarize(records []Record) Summary {
	s := Summary{
		ByKind: make(map[Kind]int),
		Affect: AffectSummary{Dominant: make(map[string]int)},
	}
	if len(records) == 0 {
		return s
	}

	qualities := make([]float64, 0, len(records))
	latencies := make([]float64, 0, len(records))
	var affectConf, affectIntensity, matchConf []float64

	for _, r := range records {
		s.Total++
		s.ByKind[r.Kind]++

		switch {
		case r.InputQuality >= HighQuality:
			s.Quality.High++
		case r.InputQuality >= MediumQuality:
			s.Quality.Medium++
		default:
			s.Quality.Low++
		}
		qualities = append(qualities, r.InputQuality)

		latencies = append(latencies, float64(r.Latency))

		if s.First.IsZero() || r.Timestamp.Before(s.First) {
			s.First = r.Timestamp
		}
		if r.Timestamp.After(s.Last) {
			s.Last = r.Timestamp
		}

		switch {
		case r.Affect != nil:
			s.Affect.Readings++
			s.Affect.Dominant[r.Affect.Dominant]++
			affectConf = append(affectConf, r.Affect.Confidence)
			affectIntensity = append(affectIntensity, r.Affect.Intensity)
		case r.Match != nil:
			s.Matches.Decisions++
			if r.Match.Accepted {
				s.Matches.Accepted++
			} else {
				s.Matches.Rejected++
			}
			matchConf = append(matchConf, r.Match.Confidence)
		case r.Enrollment != nil:
			s.Enrollments++
		}
	}

	s.MeanQuality = stat.Mean(qualities, nil)
	s.Latency = LatencySummary{
		Min:  time.Duration(floats.Min(latencies)),
		Max:  time.Duration(floats.Max(latencies)),
		Mean: time.Duration(stat.Mean(latencies, nil)),
	}

	if s.Affect.Readings > 0 {
		s.Affect.MeanConfidence = stat.Mean(affectConf, nil)
		s.Affect.MeanIntensity = stat.Mean(affectIntensity, nil)
		s.Affect.MostFrequent = mostFrequent(s.Affect.Dominant)
	}
	if s.Matches.Decisions > 0 {
		s.Matches.AcceptanceRate = float64(s.Matches.Accepted) / float64(s.Matches.Decisions)
		s.Matches.MeanConfidence = stat.Mean(matchConf, nil)
	}

	return s
}

// mostFrequent returns the label with the highest count, ties broken by name
func mostFrequent(counts map[string]int) string {
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	best := ""
	for _, l := range labels {
		if best == "" || counts[l] > counts[best] {
			best = l
		}
	}
	return best
}
