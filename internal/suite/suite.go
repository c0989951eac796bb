// Package suite runs YAML-defined batteries of visual tests sequentially,
// with optional per-test overrides of the resolved run configuration.
package suite

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"visreg/internal/config"
)

// Suite is a collection of visual tests run in order.
type Suite struct {
	Version  int     `yaml:"version"`
	FailFast bool    `yaml:"fail_fast,omitempty"`
	Tests    []Entry `yaml:"tests"`
}

// Entry names one test plus any configuration overrides. Zero-valued fields
// fall through to the suite-wide resolved configuration.
type Entry struct {
	Name       string   `yaml:"name"`
	Metric     string   `yaml:"metric,omitempty"`
	Threshold  *float64 `yaml:"threshold,omitempty"`
	Direction  string   `yaml:"direction,omitempty"`
	TimeoutSec int      `yaml:"timeout_sec,omitempty"`
	Frames     int      `yaml:"frames,omitempty"`
	FrameLimit int      `yaml:"frame_limit,omitempty"`
}

// Result captures the outcome of one suite entry.
type Result struct {
	Name       string
	Passed     bool
	ExitCode   int
	Value      float64
	Error      string
	DurationMs int64
}

// RunFunc executes a single entry and reports its outcome.
type RunFunc func(ctx context.Context, entry Entry) Result

// Load reads a suite definition from disk.
func Load(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite %s: %w", path, err)
	}
	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse suite YAML: %w", err)
	}
	if len(s.Tests) == 0 {
		return nil, fmt.Errorf("suite %s defines no tests", path)
	}
	for i, entry := range s.Tests {
		if entry.Name == "" {
			return nil, fmt.Errorf("suite %s: test %d has no name", path, i+1)
		}
	}
	return &s, nil
}

// Run executes all entries in order. With FailFast set, the first failure
// stops the battery; remaining entries are not reported.
func (s *Suite) Run(ctx context.Context, fn RunFunc) []Result {
	results := make([]Result, 0, len(s.Tests))
	for _, entry := range s.Tests {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		res := fn(ctx, entry)
		res.Name = entry.Name
		if res.DurationMs == 0 {
			res.DurationMs = time.Since(start).Milliseconds()
		}
		results = append(results, res)
		if s.FailFast && !res.Passed {
			break
		}
	}
	return results
}

// Overlay applies the entry's overrides on top of a resolved configuration.
func (e Entry) Overlay(base config.Run) config.Run {
	if e.Metric != "" {
		base.Metric = e.Metric
	}
	if e.Threshold != nil {
		if *e.Threshold == 0 {
			base.Threshold = nil
		} else {
			t := *e.Threshold
			base.Threshold = &t
		}
	}
	if e.Direction != "" {
		base.Direction = e.Direction
	}
	if e.TimeoutSec > 0 {
		base.TimeoutSec = e.TimeoutSec
	}
	if e.Frames > 0 {
		base.Frames = e.Frames
	}
	if e.FrameLimit > 0 {
		base.FrameLimit = e.FrameLimit
	}
	return base
}
