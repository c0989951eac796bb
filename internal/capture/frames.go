package capture

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ListFrames returns the .ppm files in dir, sorted lexicographically. The
// screenshot layer names frames by frame number, so the sort order is also
// capture order.
func ListFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var frames []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(entry.Name()), ".ppm") {
			frames = append(frames, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(frames)
	return frames, nil
}

// FirstFrame returns the lexicographically first captured frame, or "" when
// none exist.
func FirstFrame(dir string) (string, error) {
	frames, err := ListFrames(dir)
	if err != nil {
		return "", err
	}
	if len(frames) == 0 {
		return "", nil
	}
	return frames[0], nil
}
