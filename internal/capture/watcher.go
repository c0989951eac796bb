// Package capture observes the screenshot directory while a render runs.
// The Vulkan layer writes one .ppm per captured frame; once the expected
// count is on disk the render can be stopped early instead of waiting out
// its full deadline.
package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FrameWatcher counts .ppm files appearing in a directory and signals when
// the expected number of frames has been captured.
type FrameWatcher struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	dir     string
	expect  int
	logger  *zap.Logger

	seen    map[string]struct{}
	done    chan struct{}
	stopCh  chan struct{}
	looped  chan struct{}
	running bool
}

// NewFrameWatcher watches dir for frame files. expect must be positive.
func NewFrameWatcher(dir string, expect int, logger *zap.Logger) (*FrameWatcher, error) {
	if expect <= 0 {
		return nil, fmt.Errorf("expected frame count must be > 0 (got %d)", expect)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	return &FrameWatcher{
		watcher: watcher,
		dir:     dir,
		expect:  expect,
		logger:  logger,
		seen:    make(map[string]struct{}),
		done:    make(chan struct{}),
		stopCh:  make(chan struct{}),
		looped:  make(chan struct{}),
	}, nil
}

// Start begins counting. Frames already on disk when the watcher starts are
// counted too, so a fast render cannot race the watcher setup.
func (fw *FrameWatcher) Start() {
	fw.mu.Lock()
	if fw.running {
		fw.mu.Unlock()
		return
	}
	fw.running = true
	fw.mu.Unlock()

	go fw.run()

	entries, err := os.ReadDir(fw.dir)
	if err != nil {
		fw.logger.Debug("frame watcher initial scan failed", zap.Error(err))
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			fw.record(filepath.Join(fw.dir, entry.Name()))
		}
	}
}

// Done is closed once the expected frame count has been observed.
func (fw *FrameWatcher) Done() <-chan struct{} {
	return fw.done
}

// Count returns the number of distinct frame files seen so far.
func (fw *FrameWatcher) Count() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return len(fw.seen)
}

// Stop shuts the watcher down and waits for its goroutine to exit.
func (fw *FrameWatcher) Stop() {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.stopCh)
	<-fw.looped
	if err := fw.watcher.Close(); err != nil {
		fw.logger.Debug("frame watcher close failed", zap.Error(err))
	}
}

func (fw *FrameWatcher) run() {
	defer close(fw.looped)
	for {
		select {
		case <-fw.stopCh:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				fw.record(event.Name)
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Debug("frame watcher error", zap.Error(err))
		}
	}
}

func (fw *FrameWatcher) record(path string) {
	if !strings.HasSuffix(strings.ToLower(path), ".ppm") {
		return
	}
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, dup := fw.seen[path]; dup {
		return
	}
	fw.seen[path] = struct{}{}
	fw.logger.Debug("frame captured",
		zap.String("path", path),
		zap.Int("count", len(fw.seen)),
		zap.Int("expect", fw.expect))
	if len(fw.seen) == fw.expect {
		close(fw.done)
	}
}
