// Package metric computes image-similarity scores between a golden frame and
// a freshly captured one, and applies the threshold policy that decides
// whether a run passes.
package metric

import (
	"fmt"
	"math"
	"strings"

	"visreg/internal/imaging"
)

// Supported metric names, matched case-insensitively.
const (
	SSIM = "SSIM"
	RMSE = "RMSE"
	MAE  = "MAE"
	PSNR = "PSNR"
)

// Normalize canonicalizes a metric name, rejecting unknown ones.
func Normalize(name string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case SSIM:
		return SSIM, nil
	case RMSE:
		return RMSE, nil
	case MAE:
		return MAE, nil
	case PSNR:
		return PSNR, nil
	default:
		return "", fmt.Errorf("unsupported metric %q, supported metrics: SSIM, RMSE, MAE, PSNR", name)
	}
}

// Compute dispatches to the named metric. The golden frame is always the
// first argument; PSNR and SSIM derive their ranges from it.
func Compute(name string, golden, latest *imaging.Frame) (float64, error) {
	canonical, err := Normalize(name)
	if err != nil {
		return 0, err
	}
	if !golden.SameShape(latest) {
		return 0, fmt.Errorf("image dimensions don't match: %s vs %s", golden.Shape(), latest.Shape())
	}
	switch canonical {
	case SSIM:
		return ComputeSSIM(golden, latest), nil
	case RMSE:
		return ComputeRMSE(golden, latest), nil
	case MAE:
		return ComputeMAE(golden, latest), nil
	default:
		return ComputePSNR(golden, latest), nil
	}
}

// ComputeRMSE returns the root of the mean squared per-sample difference
// across all channels.
func ComputeRMSE(golden, latest *imaging.Frame) float64 {
	return math.Sqrt(meanSquaredError(golden, latest))
}

// ComputeMAE returns the mean absolute per-sample difference across all channels.
func ComputeMAE(golden, latest *imaging.Frame) float64 {
	var sum float64
	for i := range golden.Samples {
		sum += math.Abs(golden.Samples[i] - latest.Samples[i])
	}
	return sum / float64(len(golden.Samples))
}

// ComputePSNR returns the peak signal-to-noise ratio in decibels. The peak
// value is 255 for 8-bit frames and 65535 for 16-bit frames; anything else
// falls back to the golden frame's maximum sample. A zero MSE yields +Inf.
func ComputePSNR(golden, latest *imaging.Frame) float64 {
	var maxPixel float64
	switch {
	case golden.MaxVal <= 255:
		maxPixel = 255
	case golden.MaxVal <= 65535:
		maxPixel = 65535
	}
	if maxPixel == 0 {
		_, maxPixel = golden.Range()
	}

	mse := meanSquaredError(golden, latest)
	if mse == 0 {
		return math.Inf(1)
	}
	return 20 * math.Log10(maxPixel/math.Sqrt(mse))
}

func meanSquaredError(a, b *imaging.Frame) float64 {
	var sum float64
	for i := range a.Samples {
		d := a.Samples[i] - b.Samples[i]
		sum += d * d
	}
	return sum / float64(len(a.Samples))
}
