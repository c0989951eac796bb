package runner

import (
	"strconv"
	"strings"
)

// ScreenshotLayer is the Vulkan layer that writes captured frames to disk.
const ScreenshotLayer = "VK_LAYER_LUNARG_screenshot"

// Capture protocol variables consumed by the screenshot layer.
const (
	EnvInstanceLayers   = "VK_INSTANCE_LAYERS"
	EnvScreenshotFrames = "VK_SCREENSHOT_FRAMES"
	EnvScreenshotDir    = "VK_SCREENSHOT_DIR"
)

// CaptureEnv returns a copy of base with the screenshot layer enabled and
// the capture variables pointing at outDir. An already-present screenshot
// layer entry is left alone; other layers in VK_INSTANCE_LAYERS survive.
func CaptureEnv(base []string, frames int, outDir string) []string {
	env := make([]string, len(base))
	copy(env, base)

	layers := envValue(env, EnvInstanceLayers)
	if !containsLayer(layers, ScreenshotLayer) {
		if layers == "" {
			layers = ScreenshotLayer
		} else {
			layers = layers + ":" + ScreenshotLayer
		}
	}
	env = setEnv(env, EnvInstanceLayers, layers)
	env = setEnv(env, EnvScreenshotFrames, strconv.Itoa(frames))
	env = setEnv(env, EnvScreenshotDir, outDir)
	return env
}

func containsLayer(layers, want string) bool {
	for _, l := range strings.Split(layers, ":") {
		if l == want {
			return true
		}
	}
	return false
}

func envValue(env []string, key string) string {
	prefix := key + "="
	for i := len(env) - 1; i >= 0; i-- {
		if strings.HasPrefix(env[i], prefix) {
			return env[i][len(prefix):]
		}
	}
	return ""
}

func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}
