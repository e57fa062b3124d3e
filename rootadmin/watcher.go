package rootadmin

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the allowlist whenever the env file changes on disk,
// so edits made outside the engine take effect without a restart.
type Watcher struct {
	list    *Allowlist
	path    string
	log     *slog.Logger
	fw      *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	closeMu sync.Once
}

// Watch starts watching the env file's directory. Watching the directory
// rather than the file keeps the watch alive across editors that replace
// the file on save.
func Watch(list *Allowlist, path string, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w := &Watcher{
		list: list,
		path: path,
		log:  log,
		fw:   fw,
		done: make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer w.wg.Done()

	target := filepath.Clean(w.path)
	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("allowlist watch error", "error", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	emails, err := LoadFile(w.path)
	if err != nil {
		w.log.Warn("allowlist reload failed", "path", w.path, "error", err)
		return
	}
	if len(emails) == 0 {
		w.log.Warn("allowlist file has no root admins, keeping previous set", "path", w.path)
		return
	}
	if err := w.list.Replace(emails); err != nil {
		w.log.Warn("allowlist reload rejected", "path", w.path, "error", err)
		return
	}
	w.log.Info("root admin allowlist reloaded", "count", len(emails))
}

// Close stops the watcher and waits for the loop to exit.
func (w *Watcher) Close() error {
	if w == nil {
		return nil
	}
	var err error
	w.closeMu.Do(func() {
		close(w.done)
		err = w.fw.Close()
		w.wg.Wait()
	})
	return err
}
