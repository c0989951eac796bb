package metric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visreg/internal/imaging"
)

// gradientFrame builds a w*h RGB frame with varied intensities so SSIM has
// structure to work with.
func gradientFrame(w, h int) *imaging.Frame {
	f := &imaging.Frame{Width: w, Height: h, Channels: 3, MaxVal: 255}
	f.Samples = make([]float64, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			base := (y*w + x) * 3
			f.Samples[base] = float64((x*13 + y*29) % 256)
			f.Samples[base+1] = float64((x*7 + y*3) % 256)
			f.Samples[base+2] = float64((x + y*11) % 256)
		}
	}
	return f
}

func offsetFrame(src *imaging.Frame, d float64) *imaging.Frame {
	out := &imaging.Frame{
		Width:    src.Width,
		Height:   src.Height,
		Channels: src.Channels,
		MaxVal:   src.MaxVal,
		Samples:  make([]float64, len(src.Samples)),
	}
	for i, s := range src.Samples {
		out.Samples[i] = s + d
	}
	return out
}

func TestIdenticalImages(t *testing.T) {
	golden := gradientFrame(16, 16)
	latest := gradientFrame(16, 16)

	rmse, err := Compute(RMSE, golden, latest)
	require.NoError(t, err)
	assert.Equal(t, 0.0, rmse)

	mae, err := Compute(MAE, golden, latest)
	require.NoError(t, err)
	assert.Equal(t, 0.0, mae)

	psnr, err := Compute(PSNR, golden, latest)
	require.NoError(t, err)
	assert.True(t, math.IsInf(psnr, 1), "PSNR of identical images should be +Inf")

	ssim, err := Compute(SSIM, golden, latest)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, ssim, 1e-12)
}

func TestConstantOffset(t *testing.T) {
	golden := gradientFrame(8, 8)
	latest := offsetFrame(golden, 4)

	rmse, err := Compute(RMSE, golden, latest)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, rmse, 1e-9)

	mae, err := Compute(MAE, golden, latest)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, mae, 1e-9)
}

func TestPSNRValue(t *testing.T) {
	golden := gradientFrame(8, 8)
	latest := offsetFrame(golden, 5)

	psnr, err := Compute(PSNR, golden, latest)
	require.NoError(t, err)
	assert.InDelta(t, 20*math.Log10(255.0/5.0), psnr, 1e-9)
}

func TestPSNRSixteenBitPeak(t *testing.T) {
	golden := gradientFrame(4, 4)
	golden.MaxVal = 65535
	latest := offsetFrame(golden, 2)

	psnr := ComputePSNR(golden, latest)
	assert.InDelta(t, 20*math.Log10(65535.0/2.0), psnr, 1e-9)
}

func TestSSIMDegradesWithNoise(t *testing.T) {
	golden := gradientFrame(32, 32)
	noisy := offsetFrame(golden, 0)
	for i := range noisy.Samples {
		if i%5 == 0 {
			noisy.Samples[i] += 60
		}
	}

	ssim := ComputeSSIM(golden, noisy)
	assert.Less(t, ssim, 1.0)
	assert.Greater(t, ssim, -1.0)
}

func TestSSIMFlatIdenticalImages(t *testing.T) {
	golden := &imaging.Frame{Width: 8, Height: 8, Channels: 1, MaxVal: 255,
		Samples: make([]float64, 64)}
	latest := &imaging.Frame{Width: 8, Height: 8, Channels: 1, MaxVal: 255,
		Samples: make([]float64, 64)}

	assert.Equal(t, 1.0, ComputeSSIM(golden, latest))
}

func TestDimensionMismatch(t *testing.T) {
	golden := gradientFrame(8, 8)
	latest := gradientFrame(8, 9)

	for _, name := range []string{SSIM, RMSE, MAE, PSNR} {
		_, err := Compute(name, golden, latest)
		assert.ErrorContains(t, err, "dimensions don't match", name)
	}
}

func TestUnsupportedMetric(t *testing.T) {
	golden := gradientFrame(4, 4)
	_, err := Compute("NCC", golden, golden)
	require.Error(t, err)
	assert.ErrorContains(t, err, "unsupported metric")
	assert.ErrorContains(t, err, "SSIM, RMSE, MAE, PSNR")
}

func TestNormalizeCaseInsensitive(t *testing.T) {
	for in, want := range map[string]string{
		"rmse": RMSE, "Ssim": SSIM, " mae ": MAE, "psnr": PSNR,
	} {
		got, err := Normalize(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
