// Package watch counts filesystem changes under source folders between copies.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const countedOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

// Tracker watches source trees recursively and counts change events per root.
type Tracker struct {
	watcher *fsnotify.Watcher
	roots   []string // longest first, so nested roots win
	counts  map[string]*atomic.Int64

	mu      sync.Mutex
	watched map[string]bool

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started atomic.Bool
}

// NewTracker 为每个根目录及其子目录建立监听
func NewTracker(roots []string) (*Tracker, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())

	t := &Tracker{
		watcher: w,
		counts:  make(map[string]*atomic.Int64),
		watched: make(map[string]bool),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, root := range roots {
		root = filepath.Clean(root)
		if _, ok := t.counts[root]; ok {
			continue
		}
		t.counts[root] = &atomic.Int64{}
		t.roots = append(t.roots, root)
	}
	sort.Slice(t.roots, func(i, j int) bool { return len(t.roots[i]) > len(t.roots[j]) })

	for _, root := range t.roots {
		if err := w.Add(root); err != nil {
			w.Close()
			cancel()
			return nil, fmt.Errorf("failed to watch %s: %w", root, err)
		}
		t.watched[root] = true
		t.addTree(root)
	}
	return t, nil
}

// addTree 递归监听子目录，无法读取的目录只记录日志
func (t *Tracker) addTree(dir string) {
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Debug().Err(err).Str("dir", path).Msg("skipping unreadable directory")
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.watched[path] {
			return nil
		}
		if err := t.watcher.Add(path); err != nil {
			log.Debug().Err(err).Str("dir", path).Msg("failed to watch directory")
			return nil
		}
		t.watched[path] = true
		return nil
	})
}

// Start processes events until Close.
func (t *Tracker) Start() {
	if t.started.CompareAndSwap(false, true) {
		go t.run()
	}
}

func (t *Tracker) run() {
	defer close(t.done)
	for {
		select {
		case <-t.ctx.Done():
			return
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			t.handle(event)
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("watch error")
		}
	}
}

func (t *Tracker) handle(event fsnotify.Event) {
	root := t.rootOf(event.Name)
	if root == "" || event.Op&countedOps == 0 {
		return
	}
	t.counts[root].Add(1)

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			t.addTree(event.Name)
		}
	}
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		t.mu.Lock()
		delete(t.watched, event.Name)
		t.mu.Unlock()
	}
}

func (t *Tracker) rootOf(path string) string {
	for _, root := range t.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return root
		}
	}
	return ""
}

// Pending returns the number of changes under root since its last Reset.
func (t *Tracker) Pending(root string) int64 {
	if c, ok := t.counts[filepath.Clean(root)]; ok {
		return c.Load()
	}
	return 0
}

func (t *Tracker) Reset(root string) {
	if c, ok := t.counts[filepath.Clean(root)]; ok {
		c.Store(0)
	}
}

func (t *Tracker) Close() error {
	t.cancel()
	err := t.watcher.Close()
	if t.started.Load() {
		<-t.done
	}
	return err
}
