package metrics

// RegistryStats summarizes the state of one metric.
type RegistryStats struct {
	Metric           string `json:"metric"`
	LiveSeries       int    `json:"live_series"`
	SeriesCountLimit int    `json:"series_count_limit"`
	// Redirected counts observations recorded under the fallback series
	// because the series limit was reached.
	Redirected int64 `json:"redirected"`
}

// Saturation returns LiveSeries/SeriesCountLimit.
func (s RegistryStats) Saturation() float64 {
	if s.SeriesCountLimit <= 0 {
		return 0
	}
	return float64(s.LiveSeries) / float64(s.SeriesCountLimit)
}
