package storage

import (
	"github.com/fsnotify/fsnotify"
)

// Watch starts watching the storage file for external edits (e.g. an
// operator hand-editing the cache, or a synced copy arriving from
// another node's backup) and reloads on write events. The returned
// stop function closes the watcher; callers should defer it.
func (s *Store) Watch() (stop func() error, err error) {
	if s.path == "" {
		return func() error { return nil }, nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(s.path); err != nil {
		w.Close()
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := s.Load(); err != nil {
					s.log.Error(err, "storage reload after external edit failed", "path", s.path)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Error(err, "storage watcher error", "path", s.path)
			case <-done:
				return
			}
		}
	}()
	return func() error {
		close(done)
		return w.Close()
	}, nil
}
