package domain

import (
	"testing"
	"time"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func TestMonthsBetween(t *testing.T) {
	cases := []struct {
		name  string
		start time.Time
		end   time.Time
		want  []time.Time
	}{
		{
			name:  "three months",
			start: date(2024, time.January, 1),
			end:   date(2024, time.March, 1),
			want:  []time.Time{date(2024, time.January, 1), date(2024, time.February, 1), date(2024, time.March, 1)},
		},
		{
			name:  "single month",
			start: date(2024, time.June, 15),
			end:   date(2024, time.June, 20),
			want:  []time.Time{date(2024, time.June, 1)},
		},
		{
			name:  "year boundary",
			start: date(2023, time.December, 1),
			end:   date(2024, time.January, 31),
			want:  []time.Time{date(2023, time.December, 1), date(2024, time.January, 1)},
		},
		{
			name:  "end before start collapses to start",
			start: date(2024, time.May, 1),
			end:   date(2024, time.February, 1),
			want:  []time.Time{date(2024, time.May, 1)},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := MonthsBetween(tc.start, tc.end)
			if len(got) != len(tc.want) {
				t.Fatalf("got %d months, want %d", len(got), len(tc.want))
			}
			for i := range got {
				if !got[i].Equal(tc.want[i]) {
					t.Fatalf("month %d = %v, want %v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestMonthKey(t *testing.T) {
	if key := MonthKey(date(2024, time.March, 1)); key != "2024_03" {
		t.Fatalf("MonthKey = %q, want 2024_03", key)
	}
}

func TestResultToTimeseriesAnnotatesDegradedRuns(t *testing.T) {
	result := ProcessingResult{
		Outcome:        OutcomeDegraded,
		FallbackRaster: true,
		Threshold:      1.0,
		ProcessedAt:    date(2024, time.April, 2),
		ErrorMessage:   "raster not decodable",
	}
	record := result.ToTimeseries(7, date(2024, time.April, 17))

	if !record.Month.Equal(date(2024, time.April, 1)) {
		t.Fatalf("month not normalized to first of month: %v", record.Month)
	}
	if record.Metadata["fallback_raster"] != true {
		t.Fatal("fallback flag missing from metadata")
	}
	if record.Metadata["error"] != "raster not decodable" {
		t.Fatal("error annotation missing from metadata")
	}
	if record.Metadata["outcome"] != "degraded" {
		t.Fatal("outcome annotation missing from metadata")
	}
}
