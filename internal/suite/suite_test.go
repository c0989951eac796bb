package suite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visreg/internal/config"
	"visreg/internal/metric"
)

func writeSuite(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeSuite(t, `
version: 1
fail_fast: true
tests:
  - name: triangle
  - name: cube
    metric: SSIM
    threshold: 0.98
    direction: higher
    timeout_sec: 30
    frames: 5
    frame_limit: 60
`)

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1, s.Version)
	assert.True(t, s.FailFast)
	require.Len(t, s.Tests, 2)
	assert.Equal(t, "triangle", s.Tests[0].Name)

	cube := s.Tests[1]
	assert.Equal(t, "SSIM", cube.Metric)
	require.NotNil(t, cube.Threshold)
	assert.Equal(t, 0.98, *cube.Threshold)
	assert.Equal(t, "higher", cube.Direction)
	assert.Equal(t, 30, cube.TimeoutSec)
	assert.Equal(t, 5, cube.Frames)
	assert.Equal(t, 60, cube.FrameLimit)
}

func TestLoadValidation(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "failed to read suite")
	})

	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load(writeSuite(t, "tests: [\n"))
		assert.ErrorContains(t, err, "failed to parse suite YAML")
	})

	t.Run("no tests", func(t *testing.T) {
		_, err := Load(writeSuite(t, "version: 1\n"))
		assert.ErrorContains(t, err, "defines no tests")
	})

	t.Run("unnamed test", func(t *testing.T) {
		_, err := Load(writeSuite(t, "tests:\n  - metric: RMSE\n"))
		assert.ErrorContains(t, err, "test 1 has no name")
	})
}

func TestRunSequential(t *testing.T) {
	s := &Suite{Tests: []Entry{{Name: "a"}, {Name: "b"}, {Name: "c"}}}

	var order []string
	results := s.Run(context.Background(), func(_ context.Context, e Entry) Result {
		order = append(order, e.Name)
		return Result{Passed: e.Name != "b", ExitCode: 0}
	})

	assert.Equal(t, []string{"a", "b", "c"}, order)
	require.Len(t, results, 3)
	assert.True(t, results[0].Passed)
	assert.False(t, results[1].Passed)
	assert.Equal(t, "b", results[1].Name)
}

func TestRunFailFast(t *testing.T) {
	s := &Suite{FailFast: true, Tests: []Entry{{Name: "a"}, {Name: "b"}, {Name: "c"}}}

	results := s.Run(context.Background(), func(_ context.Context, e Entry) Result {
		return Result{Passed: e.Name == "a"}
	})

	require.Len(t, results, 2)
	assert.Equal(t, "b", results[1].Name)
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Suite{Tests: []Entry{{Name: "a"}, {Name: "b"}}}

	results := s.Run(ctx, func(_ context.Context, e Entry) Result {
		cancel()
		return Result{Passed: true}
	})

	require.Len(t, results, 1)
}

func TestOverlay(t *testing.T) {
	base := config.Defaults()
	baseThreshold := 5.0
	base.Threshold = &baseThreshold

	t.Run("empty entry keeps base", func(t *testing.T) {
		got := Entry{Name: "x"}.Overlay(base)
		assert.Equal(t, base, got)
	})

	t.Run("overrides apply", func(t *testing.T) {
		threshold := 0.9
		got := Entry{
			Name:       "x",
			Metric:     "SSIM",
			Threshold:  &threshold,
			Direction:  metric.DirectionHigher,
			TimeoutSec: 60,
			Frames:     1,
			FrameLimit: 10,
		}.Overlay(base)

		assert.Equal(t, "SSIM", got.Metric)
		require.NotNil(t, got.Threshold)
		assert.Equal(t, 0.9, *got.Threshold)
		assert.Equal(t, metric.DirectionHigher, got.Direction)
		assert.Equal(t, 60, got.TimeoutSec)
		assert.Equal(t, 1, got.Frames)
		assert.Equal(t, 10, got.FrameLimit)
	})

	t.Run("zero threshold clears base threshold", func(t *testing.T) {
		zero := 0.0
		got := Entry{Name: "x", Threshold: &zero}.Overlay(base)
		assert.Nil(t, got.Threshold)
	})
}
