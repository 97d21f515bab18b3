package refresh

import (
	"log"

	"github.com/dimakogan/tiptoe-simplepir/corpus"
	"github.com/fsnotify/fsnotify"
)

// Watcher triggers Manager.Refresh whenever the watched corpus directory
// changes, the same event-driven rebuild shape as the teacher's
// proxy/local_index.go, reworked to call Manager.Refresh (an atomic
// snapshot swap) instead of rebuilding a lock-guarded map in place.
type Watcher struct {
	fs      *fsnotify.Watcher
	mgr     *Manager
	load    func() ([]corpus.Document, error)
	closeCh chan struct{}
}

// WatchDir starts watching dir for writes, calling load() and
// mgr.Refresh() each time a write event fires. The returned Watcher must
// be closed to stop the background goroutine.
func WatchDir(dir string, mgr *Manager, load func() ([]corpus.Document, error)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{fs: fw, mgr: mgr, load: load, closeCh: make(chan struct{})}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				log.Printf("refresh: corpus change detected: %s", event.Name)
				docs, err := w.load()
				if err != nil {
					log.Printf("refresh: failed to reload corpus: %v", err)
					continue
				}
				if err := w.mgr.Refresh(docs); err != nil {
					log.Printf("refresh: rebuild failed: %v", err)
				}
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Printf("refresh: watcher error: %v", err)
		case <-w.closeCh:
			return
		}
	}
}

// Close stops the watcher goroutine and releases the underlying fsnotify
// watcher.
func (w *Watcher) Close() error {
	close(w.closeCh)
	return w.fs.Close()
}
