package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watch emits a notification whenever either credential file is created,
// written, renamed, or removed. Subsystems that gate authenticated requests
// on HasCredential can react to logins and logouts without polling.
// The watcher runs until ctx is cancelled; the returned channel is closed on
// shutdown.
func (s *CredentialStore) Watch(ctx context.Context) (<-chan struct{}, error) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create data dir failed: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("store: create watcher failed: %w", err)
	}
	if err = watcher.Add(s.dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("store: watch %s failed: %w", s.dir, err)
	}

	events := make(chan struct{}, 1)
	go func() {
		defer close(events)
		defer func() {
			_ = watcher.Close()
		}()

		credentialOps := fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				name := filepath.Base(event.Name)
				if name != encryptedFileName && name != fallbackFileName {
					continue
				}
				if event.Op&credentialOps == 0 {
					continue
				}
				// Coalesce: a pending notification already covers this change.
				select {
				case events <- struct{}{}:
				default:
				}
			case errWatch, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("credential watcher error: %v", errWatch)
			}
		}
	}()

	return events, nil
}
