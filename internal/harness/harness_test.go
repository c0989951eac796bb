//go:build !windows

package harness

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"visreg/internal/config"
	"visreg/internal/metric"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// captureScript renders one black-box frame into the screenshot directory,
// standing in for a real binary under the Vulkan layer.
const captureScript = `#!/bin/sh
printf 'P6\n1 1\n255\nABC' > "$VK_SCREENSHOT_DIR/frame_1.ppm"
`

var frameBytes = []byte("P6\n1 1\n255\nABC")

type fixture struct {
	repoRoot     string
	testDir      string
	artifactRoot string
	console      *bytes.Buffer
	h            *Harness
}

// newFixture lays out a fake renderer repository with one visual test whose
// built "binary" is the given shell script.
func newFixture(t *testing.T, testName, script string) *fixture {
	t.Helper()
	repoRoot := t.TempDir()

	testDir := filepath.Join(repoRoot, DefaultTestsRoot, testName)
	require.NoError(t, os.MkdirAll(testDir, 0755))

	binDir := filepath.Join(repoRoot, "bin")
	require.NoError(t, os.MkdirAll(binDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "visual_"+testName), []byte(script), 0755))

	console := &bytes.Buffer{}
	return &fixture{
		repoRoot:     repoRoot,
		testDir:      testDir,
		artifactRoot: filepath.Join(t.TempDir(), "artifacts"),
		console:      console,
		h: &Harness{
			RepoRoot:  repoRoot,
			BuildTool: "true",
			Wrapper:   []string{"/bin/sh", "-c"},
			Console:   console,
		},
	}
}

func (f *fixture) writeGolden(t *testing.T, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.testDir, GoldenName), data, 0644))
}

func testConfig() config.Run {
	return config.Run{
		TimeoutSec: 10,
		Metric:     metric.RMSE,
		Direction:  metric.DirectionLower,
		Frames:     1,
	}
}

func TestUpdateGoldenFlow(t *testing.T) {
	f := newFixture(t, "triangle", captureScript)
	cfg := testConfig()
	cfg.UpdateGolden = true

	outcome, err := f.h.Run(context.Background(), cfg, "triangle", f.artifactRoot)
	require.NoError(t, err)

	assert.Equal(t, 0, outcome.ExitCode)
	assert.True(t, outcome.GoldenUpdate)
	assert.True(t, outcome.Passed)
	assert.False(t, outcome.Compared)

	golden, err := os.ReadFile(filepath.Join(f.testDir, GoldenName))
	require.NoError(t, err)
	assert.Equal(t, frameBytes, golden)
}

func TestIdenticalFramePasses(t *testing.T) {
	f := newFixture(t, "triangle", captureScript)
	f.writeGolden(t, frameBytes)
	cfg := testConfig()
	threshold := 1.0
	cfg.Threshold = &threshold

	outcome, err := f.h.Run(context.Background(), cfg, "triangle", f.artifactRoot)
	require.NoError(t, err)

	assert.Equal(t, 0, outcome.ExitCode)
	assert.True(t, outcome.Passed)
	assert.True(t, outcome.Compared)
	assert.Equal(t, 0.0, outcome.Value)
	assert.Contains(t, f.console.String(), "RMSE for triangle: 0.000000")
}

func TestThresholdViolationFails(t *testing.T) {
	f := newFixture(t, "triangle", captureScript)
	f.writeGolden(t, []byte("P6\n1 1\n255\nAAA"))
	cfg := testConfig()
	threshold := 0.5
	cfg.Threshold = &threshold

	outcome, err := f.h.Run(context.Background(), cfg, "triangle", f.artifactRoot)
	require.Error(t, err)
	assert.ErrorContains(t, err, "exceeds threshold")

	assert.Equal(t, 1, outcome.ExitCode)
	assert.True(t, outcome.Compared)
	assert.False(t, outcome.Passed)
	assert.Greater(t, outcome.Value, 0.0)
}

func TestNoThresholdReportsWithoutFailing(t *testing.T) {
	f := newFixture(t, "triangle", captureScript)
	f.writeGolden(t, []byte("P6\n1 1\n255\nAAA"))

	outcome, err := f.h.Run(context.Background(), testConfig(), "triangle", f.artifactRoot)
	require.NoError(t, err)

	assert.Equal(t, 0, outcome.ExitCode)
	assert.True(t, outcome.Passed)
	assert.Greater(t, outcome.Value, 0.0)
}

func TestMissingGolden(t *testing.T) {
	f := newFixture(t, "triangle", captureScript)

	outcome, err := f.h.Run(context.Background(), testConfig(), "triangle", f.artifactRoot)
	require.Error(t, err)
	assert.ErrorContains(t, err, "golden image missing")
	assert.ErrorContains(t, err, config.EnvUpdateGolden)
	assert.Equal(t, 1, outcome.ExitCode)
}

func TestMissingScreenshot(t *testing.T) {
	f := newFixture(t, "triangle", "#!/bin/sh\ntrue\n")
	f.writeGolden(t, frameBytes)

	outcome, err := f.h.Run(context.Background(), testConfig(), "triangle", f.artifactRoot)
	require.Error(t, err)
	assert.ErrorContains(t, err, "no screenshot produced for triangle")
	assert.Equal(t, 1, outcome.ExitCode)
}

func TestBuildFailurePropagatesExitCode(t *testing.T) {
	f := newFixture(t, "triangle", captureScript)
	f.h.BuildTool = "false"

	outcome, err := f.h.Run(context.Background(), testConfig(), "triangle", f.artifactRoot)
	require.Error(t, err)
	assert.ErrorContains(t, err, "build failed with exit code 1")
	assert.Equal(t, 1, outcome.ExitCode)
}

func TestRenderExitCodeSurvivesPassingComparison(t *testing.T) {
	script := `#!/bin/sh
printf 'P6\n1 1\n255\nABC' > "$VK_SCREENSHOT_DIR/frame_1.ppm"
exit 7
`
	f := newFixture(t, "triangle", script)
	f.writeGolden(t, frameBytes)

	outcome, err := f.h.Run(context.Background(), testConfig(), "triangle", f.artifactRoot)
	require.NoError(t, err)

	assert.Equal(t, 7, outcome.ExitCode)
	assert.True(t, outcome.Passed)
}

func TestTimeoutIsAllowed(t *testing.T) {
	script := `#!/bin/sh
printf 'P6\n1 1\n255\nABC' > "$VK_SCREENSHOT_DIR/frame_1.ppm"
sleep 30
`
	f := newFixture(t, "triangle", script)
	f.writeGolden(t, frameBytes)
	cfg := testConfig()
	cfg.TimeoutSec = 1

	outcome, err := f.h.Run(context.Background(), cfg, "triangle", f.artifactRoot)
	require.NoError(t, err)

	assert.True(t, outcome.TimedOut)
	assert.Equal(t, 0, outcome.ExitCode)
	assert.Contains(t, f.console.String(), "timed out (allowed)")
}

func TestEarlyStopOnFrameCount(t *testing.T) {
	script := `#!/bin/sh
printf 'P6\n1 1\n255\nABC' > "$VK_SCREENSHOT_DIR/frame_1.ppm"
sleep 30
`
	f := newFixture(t, "triangle", script)
	f.writeGolden(t, frameBytes)
	f.h.EarlyStop = true

	outcome, err := f.h.Run(context.Background(), testConfig(), "triangle", f.artifactRoot)
	require.NoError(t, err)

	assert.Equal(t, 0, outcome.ExitCode)
	assert.Contains(t, f.console.String(), "render stopped early")
}

func TestFindTestDir(t *testing.T) {
	f := newFixture(t, "triangle", captureScript)

	t.Run("bare identifier", func(t *testing.T) {
		dir, err := f.h.FindTestDir("triangle")
		require.NoError(t, err)
		assert.Equal(t, f.testDir, dir)
	})

	t.Run("literal path", func(t *testing.T) {
		dir, err := f.h.FindTestDir(f.testDir)
		require.NoError(t, err)
		assert.Equal(t, f.testDir, dir)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := f.h.FindTestDir("no-such-test")
		assert.ErrorContains(t, err, "test directory not found")
	})
}

func TestLogAndArtifactLayout(t *testing.T) {
	f := newFixture(t, "triangle", captureScript)
	f.writeGolden(t, frameBytes)

	outcome, err := f.h.Run(context.Background(), testConfig(), "triangle", f.artifactRoot)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(f.artifactRoot, "triangle"), outcome.ArtifactDir)
	assert.FileExists(t, filepath.Join(f.artifactRoot, "logs", "triangle.log"))
	assert.FileExists(t, filepath.Join(outcome.ArtifactDir, "frame_1.ppm"))
}
