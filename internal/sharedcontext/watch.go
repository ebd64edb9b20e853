package sharedcontext

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchDocuments watches the documents directory for file writes and
// creations, including edits made outside the daemon process (an operator
// editing a file directly on disk), and republishes each as a system-kind
// channel log entry, so agents polling the channel notice the change. The
// daemon's own writes are reported too. Runs until ctx is cancelled.
func (p *Provider) WatchDocuments(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	docsDir := filepath.Join(p.dir, "documents")
	if err := watcher.Add(docsDir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if _, err := p.AppendChannel("system", "document changed: "+name, AppendOptions{Kind: KindSystem}); err != nil {
				slog.Warn("sharedcontext.watch.append_failed", "file", name, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("sharedcontext.watch.error", "error", err)
		}
	}
}
