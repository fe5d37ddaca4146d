package local

import (
	"context"
	"fmt"
	"io/fs"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/notifier"
	"lyrics-sync-go/utils"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Supported file extensions
const (
	ExtLRC  = ".lrc"
	ExtTTML = ".ttml"
)

// rebuildDelay coalesces bursts of filesystem events into one re-index.
const rebuildDelay = 500 * time.Millisecond

// Index maps "artist - title" keys to lyric files under a directory.
type Index struct {
	dir string

	mu    sync.RWMutex
	files map[string]string
}

// NewIndex creates an empty index for dir. Call Rebuild to populate it.
func NewIndex(dir string) *Index {
	if strings.HasPrefix(dir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, dir[2:])
		}
	}
	return &Index{dir: dir, files: make(map[string]string)}
}

// Dir returns the indexed directory.
func (i *Index) Dir() string {
	return i.dir
}

// Key builds the lookup key for an artist and title.
func Key(artist, title string) string {
	return utils.NormalizeKey(artist + " - " + title)
}

// keyFromFilename returns the key for "Artist - Title.ext", or false when the
// name does not follow that pattern or has an unsupported extension.
func keyFromFilename(name string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext != ExtLRC && ext != ExtTTML {
		return "", false
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	artist, title, ok := strings.Cut(base, " - ")
	if !ok || strings.TrimSpace(artist) == "" || strings.TrimSpace(title) == "" {
		return "", false
	}
	return Key(artist, title), true
}

// Rebuild walks the directory and replaces the index. When both an .lrc and
// a .ttml exist for the same key, the .ttml wins.
func (i *Index) Rebuild() error {
	files := make(map[string]string)
	err := filepath.WalkDir(i.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		key, ok := keyFromFilename(d.Name())
		if !ok {
			return nil
		}
		if existing, dup := files[key]; dup && strings.EqualFold(filepath.Ext(existing), ExtTTML) {
			return nil
		}
		files[key] = path
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to index %s: %w", i.dir, err)
	}

	i.mu.Lock()
	i.files = files
	i.mu.Unlock()

	log.Infof("%s Indexed %d lyric files in %s", logcolors.LogLocal, len(files), i.dir)
	return nil
}

// Lookup returns the file for an artist and title.
func (i *Index) Lookup(artist, title string) (string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	path, ok := i.files[Key(artist, title)]
	return path, ok
}

// Len returns the number of indexed files.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.files)
}

// Watch re-indexes whenever the directory changes, until ctx is done.
// Only the top-level directory is watched.
func (i *Index) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(i.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", i.dir, err)
	}
	log.Infof("%s Watching %s", logcolors.LogWatcher, i.dir)

	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			log.Debugf("%s %s %s", logcolors.LogWatcher, event.Op, event.Name)
			if timer == nil {
				timer = time.NewTimer(rebuildDelay)
			} else {
				timer.Reset(rebuildDelay)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			if err := i.Rebuild(); err != nil {
				log.Errorf("%s %v", logcolors.LogWatcher, err)
				notifier.PublishLocalIndexFailed(i.dir, err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Errorf("%s Watcher error: %v", logcolors.LogWatcher, err)
		}
	}
}
