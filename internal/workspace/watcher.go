package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tunex-app/tunex/internal/campaignstore"
)

// ChangeCallback receives the IDs of campaigns whose config changed on disk
// outside this process.
type ChangeCallback func(campaignIDs []string)

// Watcher monitors a workspace's campaigns directory for external config
// edits, e.g. a synced folder or a second tunex instance. Events are
// debounced so a burst of writes produces one callback.
type Watcher struct {
	watcher  *fsnotify.Watcher
	callback ChangeCallback
	debounce time.Duration

	mu      sync.Mutex
	root    string
	pending map[string]struct{}
	timer   *time.Timer

	cancel context.CancelFunc
}

// NewWatcher creates a watcher over the workspace root.
func NewWatcher(root string, callback ChangeCallback) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher:  fw,
		callback: callback,
		debounce: 500 * time.Millisecond,
		root:     root,
		pending:  make(map[string]struct{}),
	}
	campaignsDir := filepath.Join(root, campaignstore.CampaignsDirName)
	if _, err := os.Stat(campaignsDir); err == nil {
		if err := fw.Add(campaignsDir); err != nil {
			fw.Close()
			return nil, err
		}
		entries, _ := os.ReadDir(campaignsDir)
		for _, e := range entries {
			if e.IsDir() {
				fw.Add(filepath.Join(campaignsDir, e.Name()))
			}
		}
	}
	return w, nil
}

// Start begins delivering change callbacks until the context is cancelled or
// Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handleEvent(event)
			case _, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.watcher.Close()
}

// SetDebounce sets the debounce window. Tests shorten it.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// A new campaign directory needs its own watch.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.watcher.Add(event.Name)
			return
		}
	}
	if filepath.Base(event.Name) != "config.json" {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	id := w.campaignID(event.Name)
	if id == "" {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[id] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

// campaignID extracts the campaign directory name from a config path under
// the campaigns dir.
func (w *Watcher) campaignID(path string) string {
	campaignsDir := filepath.Join(w.root, campaignstore.CampaignsDirName) + string(filepath.Separator)
	if !strings.HasPrefix(path, campaignsDir) {
		return ""
	}
	rel := strings.TrimPrefix(path, campaignsDir)
	parts := strings.SplitN(rel, string(filepath.Separator), 2)
	return parts[0]
}

func (w *Watcher) flush() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	if w.callback == nil || len(pending) == 0 {
		return
	}
	ids := make([]string, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	w.callback(ids)
}
