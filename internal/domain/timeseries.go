package domain

import "time"

// TimeseriesRecord holds the processed monthly brightness statistics for an
// area. (AreaID, Month) is the unique key; reprocessing upserts in place.
type TimeseriesRecord struct {
	AreaID           int64
	Month            time.Time
	MeanBrightness   float64
	MedianBrightness float64
	SumBrightness    float64
	LitPixelCount    int
	LitPercentage    float64
	TilePathPattern  string
	RasterPath       string
	MinZoom          int
	MaxZoom          int
	BoundingBox      BoundingBox
	Metadata         map[string]any
}

// MonthKey formats a month the way object keys and tile prefixes expect.
func MonthKey(month time.Time) string {
	return month.Format("2006_01")
}

// FirstOfMonth truncates a timestamp to the first day of its month, UTC.
func FirstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthsBetween walks every calendar month from start to end inclusive,
// normalized to first-of-month. An end before start yields only the start
// month.
func MonthsBetween(start, end time.Time) []time.Time {
	first := FirstOfMonth(start)
	last := FirstOfMonth(end)
	if last.Before(first) {
		last = first
	}

	months := make([]time.Time, 0, 4)
	for current := first; !current.After(last); current = current.AddDate(0, 1, 0) {
		months = append(months, current)
	}
	return months
}
