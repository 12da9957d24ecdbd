package raster

import (
	"sort"

	"github.com/geolumen/nightlights/internal/domain"
)

// ComputeStats calculates zonal statistics over the valid (> 0) pixels of a
// masked raster. "Lit" means value >= threshold. Lit percentage is 0 when
// there are no valid pixels, never NaN.
func ComputeStats(r *Raster, threshold float64) domain.BrightnessStats {
	valid := make([]float64, 0, len(r.Pixels))
	sum := 0.0
	lit := 0
	for _, value := range r.Pixels {
		if value <= 0 {
			continue
		}
		valid = append(valid, value)
		sum += value
		if value >= threshold {
			lit++
		}
	}

	stats := domain.BrightnessStats{
		SumBrightness:   sum,
		LitPixelCount:   lit,
		TotalPixelCount: len(valid),
	}
	if len(valid) == 0 {
		return stats
	}

	stats.MeanBrightness = sum / float64(len(valid))
	stats.LitPercentage = float64(lit) / float64(len(valid)) * 100

	sort.Float64s(valid)
	mid := len(valid) / 2
	if len(valid)%2 == 0 {
		stats.MedianBrightness = (valid[mid-1] + valid[mid]) / 2
	} else {
		stats.MedianBrightness = valid[mid]
	}
	return stats
}
