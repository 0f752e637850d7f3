package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/go-plugr/plugr/log"
)

// LoadAll installs every queued built-in plugin and then discovers and
// loads manifest-declared plugins from the plugin directory. A failing
// plugin is logged and skipped; it never aborts the rest of the load. The
// returned count is the number of plugins successfully installed.
func (m *Manager) LoadAll(ctx context.Context) (int, error) {
	loaded := 0

	m.mu.RLock()
	builtins := append([]builtin(nil), m.builtins...)
	m.mu.RUnlock()

	for _, b := range builtins {
		if err := ctx.Err(); err != nil {
			return loaded, err
		}
		if err := m.RegisterPlugin(b.id, b.plugin); err != nil {
			log.Errorf("builtin plugin %s failed to load: %v", b.id, err)
			continue
		}
		loaded++
	}

	if m.cfg.PluginDir == "" {
		return loaded, nil
	}
	manifests, err := m.discoverManifests()
	if err != nil {
		return loaded, err
	}

	if m.cfg.MaxParallelLoads > 1 {
		n, err := m.loadParallel(ctx, manifests)
		return loaded + n, err
	}

	for _, path := range manifests {
		if err := ctx.Err(); err != nil {
			return loaded, err
		}
		if err := m.loadManifestFile(path); err != nil {
			log.Errorf("manifest %s failed to load: %v", path, err)
			continue
		}
		loaded++
	}
	return loaded, nil
}

// discoverManifests lists manifest files in the plugin directory,
// skipping oversized ones.
func (m *Manager) discoverManifests() ([]string, error) {
	entries, err := os.ReadDir(m.cfg.PluginDir)
	if err != nil {
		return nil, fmt.Errorf("scan plugin dir %s: %w", m.cfg.PluginDir, err)
	}

	var manifests []string
	for _, entry := range entries {
		if entry.IsDir() || !isManifestName(entry.Name()) {
			continue
		}
		path := filepath.Join(m.cfg.PluginDir, entry.Name())
		if fi, err := entry.Info(); err == nil && m.cfg.MaxManifestBytes > 0 && fi.Size() > m.cfg.MaxManifestBytes {
			log.Warnf("manifest %s skipped: %d bytes exceeds the %d byte ceiling",
				path, fi.Size(), m.cfg.MaxManifestBytes)
			continue
		}
		manifests = append(manifests, path)
	}
	return manifests, nil
}

func isManifestName(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// loadParallel loads manifests through a bounded worker pool. Registration
// itself is serialized per plugin id by the lifecycle machine; the pool
// bounds the file parsing and construction work.
func (m *Manager) loadParallel(ctx context.Context, manifests []string) (int, error) {
	sem := semaphore.NewWeighted(int64(m.cfg.MaxParallelLoads))
	g, ctx := errgroup.WithContext(ctx)
	var loaded atomic.Int64

	for _, path := range manifests {
		path := path
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			if err := m.loadManifestFile(path); err != nil {
				log.Errorf("manifest %s failed to load: %v", path, err)
				return nil
			}
			loaded.Add(1)
			return nil
		})
	}
	err := g.Wait()
	return int(loaded.Load()), err
}

// loadManifestFile parses one manifest, constructs its plugin through the
// factory, and registers it.
func (m *Manager) loadManifestFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	manifest, err := ParseManifest(data)
	if err != nil {
		return err
	}

	meta := manifest.Metadata()
	p, err := m.factory.Create(manifest.ConstructorName(), meta)
	if err != nil {
		return err
	}
	return m.RegisterPlugin(manifest.Name, p)
}
