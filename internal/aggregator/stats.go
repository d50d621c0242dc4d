package aggregator

import "time"

// 指标分类
var (
	// SummableMetrics are summed per day.
	SummableMetrics = []string{
		"step_count",
		"walking_running_distance",
		"cycling_distance",
		"swimming_distance",
		"active_energy",
		"basal_energy_burned",
		"flights_climbed",
	}

	// AveragedMetrics are averaged over all samples in the window.
	AveragedMetrics = []string{
		"heart_rate",
		"resting_heart_rate",
		"blood_oxygen_saturation",
		"respiratory_rate",
		"body_temperature",
	}

	// SleepMetrics are summed per night and reported in hours.
	SleepMetrics = []string{
		"sleep_analysis",
	}
)

// SleepMinutesThreshold daily sleep totals above this are taken to be minutes.
// Apple exports hours for sleep_analysis, but some exporter versions send minutes.
const SleepMinutesThreshold = 500.0

// SummableStats activity metric summary
type SummableStats struct {
	DailyAvg    float64 `json:"daily_avg"`
	WeeklyTotal float64 `json:"weekly_total"`
	MaxDay      float64 `json:"max_day"`
	Days        int     `json:"days"`
	Unit        string  `json:"unit,omitempty"`
}

// AveragedStats vital metric summary
type AveragedStats struct {
	Avg     float64 `json:"avg"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Samples int     `json:"samples"`
	Unit    string  `json:"unit,omitempty"`
}

// SleepStats sleep summary in hours
type SleepStats struct {
	AvgHours float64 `json:"avg_hours"`
	MinHours float64 `json:"min_hours"`
	Nights   int     `json:"nights"`
}

// Stats per-category summary of one window
type Stats struct {
	Since    time.Time                `json:"since"`
	Until    time.Time                `json:"until"`
	Activity map[string]SummableStats `json:"activity"`
	Vitals   map[string]AveragedStats `json:"vitals"`
	Sleep    map[string]SleepStats    `json:"sleep"`
}

// NewStats creates empty stats for [since, until)
func NewStats(since, until time.Time) *Stats {
	return &Stats{
		Since:    since,
		Until:    until,
		Activity: make(map[string]SummableStats),
		Vitals:   make(map[string]AveragedStats),
		Sleep:    make(map[string]SleepStats),
	}
}

// Empty reports whether no metric had any sample in the window.
func (s *Stats) Empty() bool {
	return s == nil || (len(s.Activity) == 0 && len(s.Vitals) == 0 && len(s.Sleep) == 0)
}

// AllMetrics every metric type the aggregator reads
func AllMetrics() []string {
	out := make([]string, 0, len(SummableMetrics)+len(AveragedMetrics)+len(SleepMetrics))
	out = append(out, SummableMetrics...)
	out = append(out, AveragedMetrics...)
	out = append(out, SleepMetrics...)
	return out
}
