package domain

import "time"

// ProcessingOutcome tags a raster processing result. The engine never fails
// outright; degraded and failed results still carry whatever statistics
// could be computed so a record is always persisted.
type ProcessingOutcome string

const (
	OutcomeOK       ProcessingOutcome = "ok"
	OutcomeDegraded ProcessingOutcome = "degraded"
	OutcomeFailed   ProcessingOutcome = "failed"
)

// BrightnessStats are zonal statistics over the valid (>0) masked pixels.
type BrightnessStats struct {
	MeanBrightness   float64
	MedianBrightness float64
	SumBrightness    float64
	LitPixelCount    int
	TotalPixelCount  int
	LitPercentage    float64
}

// ProcessingResult is what the raster engine hands back for persistence.
type ProcessingResult struct {
	Outcome         ProcessingOutcome
	FallbackRaster  bool
	Stats           BrightnessStats
	RasterPath      string
	TilePathPattern string
	MinZoom         int
	MaxZoom         int
	TilesUploaded   int
	BoundingBox     BoundingBox
	Threshold       float64
	ProcessedAt     time.Time
	ErrorMessage    string
}

// ToTimeseries flattens a result into the record persisted for
// (areaID, month). Degraded and failed outcomes are annotated in metadata
// rather than dropped.
func (r ProcessingResult) ToTimeseries(areaID int64, month time.Time) TimeseriesRecord {
	metadata := map[string]any{
		"processed_at": r.ProcessedAt.Format(time.RFC3339),
		"threshold":    r.Threshold,
	}
	if r.FallbackRaster {
		metadata["fallback_raster"] = true
	}
	if r.ErrorMessage != "" {
		metadata["error"] = r.ErrorMessage
	}
	if r.Outcome != OutcomeOK {
		metadata["outcome"] = string(r.Outcome)
	}

	return TimeseriesRecord{
		AreaID:           areaID,
		Month:            FirstOfMonth(month),
		MeanBrightness:   r.Stats.MeanBrightness,
		MedianBrightness: r.Stats.MedianBrightness,
		SumBrightness:    r.Stats.SumBrightness,
		LitPixelCount:    r.Stats.LitPixelCount,
		LitPercentage:    r.Stats.LitPercentage,
		TilePathPattern:  r.TilePathPattern,
		RasterPath:       r.RasterPath,
		MinZoom:          r.MinZoom,
		MaxZoom:          r.MaxZoom,
		BoundingBox:      r.BoundingBox,
		Metadata:         metadata,
	}
}
