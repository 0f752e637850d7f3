package app

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"

	"github.com/go-plugr/plugr/log"
)

// Watch blocks, loading manifests as they appear in the plugin directory,
// until the context is canceled. Already-registered plugins are left alone;
// a rewritten manifest for an installed plugin is logged and skipped.
func (m *Manager) Watch(ctx context.Context) error {
	if m.cfg.PluginDir == "" {
		return fmt.Errorf("watch: no plugin directory configured")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(m.cfg.PluginDir); err != nil {
		return fmt.Errorf("watch %s: %w", m.cfg.PluginDir, err)
	}
	log.Infof("watching %s for plugin manifests", m.cfg.PluginDir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isManifestName(event.Name) {
				continue
			}
			if err := m.loadManifestFile(event.Name); err != nil {
				log.Warnf("manifest %s not loaded: %v", event.Name, err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Errorf("plugin directory watcher: %v", err)
		}
	}
}
