// Package config resolves the per-run harness configuration from three
// ordered layers: documented defaults, environment variables, and the test's
// compare.cfg file. Later layers win key-by-key, so precedence stays
// auditable.
package config

import (
	"fmt"
	"os"
	"time"

	"visreg/internal/metric"
)

// Environment variables read by ApplyEnv.
const (
	EnvTimeout      = "TEST_TIMEOUT"
	EnvUpdateGolden = "UPDATE_GOLDEN"
	EnvMetric       = "COMPARISON_METRIC"
	EnvThreshold    = "COMPARISON_THRESHOLD"
	EnvDirection    = "COMPARISON_DIRECTION"
	EnvFrames       = "COMPARISON_FRAMES"
	EnvFrameLimit   = "FRAME_LIMIT"
)

// Run is the resolved configuration for a single harness invocation.
// Immutable once resolved; the orchestrator takes it by value.
type Run struct {
	// TimeoutSec bounds the render process, in seconds.
	TimeoutSec int

	// UpdateGolden overwrites the golden image instead of comparing.
	UpdateGolden bool

	// Metric names the comparison metric (SSIM, RMSE, MAE, PSNR).
	Metric string

	// Threshold is nil when no threshold is set; a run without one reports
	// the value but never fails on it. The environment default of 0 counts
	// as unset.
	Threshold *float64

	// Direction is "lower" or "higher"; see metric.Verdict.
	Direction string

	// Frames is the number of frames the screenshot layer should capture.
	Frames int

	// FrameLimit, when non-zero, is forwarded to the build as a define so
	// the render loop stops itself after that many frames.
	FrameLimit int
}

// Defaults returns the documented baseline configuration.
func Defaults() Run {
	return Run{
		TimeoutSec: 15,
		Metric:     metric.RMSE,
		Direction:  metric.DirectionLower,
		Frames:     3,
	}
}

// Resolve builds a Run from defaults, environment, and the compare.cfg file
// at cfgPath (skipped when the file does not exist).
func Resolve(cfgPath string) (Run, error) {
	run := Defaults()
	if err := run.ApplyEnv(); err != nil {
		return run, err
	}
	if cfgPath != "" {
		if _, err := os.Stat(cfgPath); err == nil {
			if err := run.ApplyFile(cfgPath); err != nil {
				return run, err
			}
		}
	}
	if err := run.Validate(); err != nil {
		return run, err
	}
	return run, nil
}

// ApplyEnv overlays same-named environment variables onto the configuration.
func (r *Run) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvTimeout); ok && v != "" {
		n, err := positiveInt(v, EnvTimeout)
		if err != nil {
			return err
		}
		r.TimeoutSec = n
	}
	r.UpdateGolden = os.Getenv(EnvUpdateGolden) == "1"
	if v, ok := os.LookupEnv(EnvMetric); ok && v != "" {
		r.Metric = v
	}
	if v, ok := os.LookupEnv(EnvThreshold); ok && v != "" {
		t, err := thresholdValue(v, EnvThreshold)
		if err != nil {
			return err
		}
		r.Threshold = t
	}
	if v, ok := os.LookupEnv(EnvDirection); ok && v != "" {
		r.Direction = v
	}
	if v, ok := os.LookupEnv(EnvFrames); ok && v != "" {
		n, err := positiveInt(v, EnvFrames)
		if err != nil {
			return err
		}
		r.Frames = n
	}
	if v, ok := os.LookupEnv(EnvFrameLimit); ok && v != "" {
		n, err := positiveInt(v, EnvFrameLimit)
		if err != nil {
			return err
		}
		r.FrameLimit = n
	}
	return nil
}

// ApplyFile overlays recognized keys from a compare.cfg file. Unrecognized
// keys are ignored so test directories can carry extra annotations.
func (r *Run) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	values := ParseCompareCfg(string(data))

	if v, ok := values["metric"]; ok && v != "" {
		r.Metric = v
	}
	if v, ok := values["timeout"]; ok {
		n, err := positiveInt(v, "timeout")
		if err != nil {
			return fmt.Errorf("invalid timeout in %s: %w", path, err)
		}
		r.TimeoutSec = n
	}
	if v, ok := values["threshold"]; ok {
		t, err := thresholdValue(v, "threshold")
		if err != nil {
			return fmt.Errorf("invalid threshold in %s: %w", path, err)
		}
		r.Threshold = t
	}
	if v, ok := values["direction"]; ok && v != "" {
		r.Direction = v
	}
	if v, ok := values["frames"]; ok {
		n, err := positiveInt(v, "frames")
		if err != nil {
			return fmt.Errorf("invalid frames in %s: %w", path, err)
		}
		r.Frames = n
	}
	if v, ok := values["frame_limit"]; ok {
		n, err := positiveInt(v, "frame_limit")
		if err != nil {
			return fmt.Errorf("invalid frame_limit in %s: %w", path, err)
		}
		r.FrameLimit = n
	}
	return nil
}

// Validate canonicalizes the metric and direction, failing fast on unknown
// names before anything is built or run.
func (r *Run) Validate() error {
	canonical, err := metric.Normalize(r.Metric)
	if err != nil {
		return err
	}
	r.Metric = canonical

	dir, err := metric.NormalizeDirection(r.Direction)
	if err != nil {
		return err
	}
	r.Direction = dir

	if r.TimeoutSec <= 0 {
		return fmt.Errorf("timeout must be > 0 (got %d)", r.TimeoutSec)
	}
	if r.Frames <= 0 {
		return fmt.Errorf("frames must be > 0 (got %d)", r.Frames)
	}
	return nil
}

// Timeout returns the render deadline as a duration.
func (r Run) Timeout() time.Duration {
	return time.Duration(r.TimeoutSec) * time.Second
}
