package skills

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/vinayprograms/agentkit/logging"
)

// Registry resolves skills by name. Lookups accept the exact name, a
// category-qualified alias (category/name), or the SKILL.md filename
// stem. The registry reloads itself when a watched skill directory
// changes.
type Registry struct {
	mu     sync.RWMutex
	paths  []string
	byName map[string]*Skill
	logger *logging.Logger
}

// NewRegistry creates a registry over the given skill directories and
// performs an initial load.
func NewRegistry(paths []string) *Registry {
	r := &Registry{
		paths:  paths,
		byName: make(map[string]*Skill),
		logger: logging.New().WithComponent("skills"),
	}
	r.Reload()
	return r
}

// Reload re-discovers skills from all configured paths.
func (r *Registry) Reload() {
	loaded := make(map[string]*Skill)
	for _, dir := range r.paths {
		found, err := Discover(dir)
		if err != nil {
			r.logger.Warn("skill discovery failed", map[string]interface{}{
				"dir":   dir,
				"error": err.Error(),
			})
			continue
		}
		for _, s := range found {
			loaded[s.Name] = s
		}
	}

	r.mu.Lock()
	r.byName = loaded
	r.mu.Unlock()

	r.logger.Info("skills loaded", map[string]interface{}{
		"count": len(loaded),
	})
}

// Add registers a skill directly. Used by tests and embedded setups
// that do not load from disk.
func (r *Registry) Add(s *Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[s.Name] = s
}

// Get resolves a skill by exact name, qualified alias, or filename.
// Returns nil when the skill is unknown.
func (r *Registry) Get(name string) *Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.byName[name]; ok {
		return s
	}

	// Path-like alias: "general/research" matches a skill named
	// "research" in category "general", or just the last segment.
	if strings.Contains(name, "/") {
		for _, s := range r.byName {
			if s.QualifiedName() == name {
				return s
			}
		}
		base := name[strings.LastIndex(name, "/")+1:]
		if s, ok := r.byName[base]; ok {
			return s
		}
	}

	// Filename stem: "research.md" -> "research".
	if stem := strings.TrimSuffix(name, filepath.Ext(name)); stem != name {
		if s, ok := r.byName[stem]; ok {
			return s
		}
	}

	return nil
}

// Names returns the known skill names, including qualified aliases.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName)*2)
	for _, s := range r.byName {
		names = append(names, s.Name)
		if q := s.QualifiedName(); q != s.Name {
			names = append(names, q)
		}
	}
	return names
}

// All returns the loaded skills.
func (r *Registry) All() []*Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Skill, 0, len(r.byName))
	for _, s := range r.byName {
		out = append(out, s)
	}
	return out
}

// Watch reloads the registry whenever a watched directory changes.
// Blocks until ctx is cancelled.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, dir := range r.paths {
		if err := watcher.Add(dir); err != nil {
			r.logger.Warn("cannot watch skill dir", map[string]interface{}{
				"dir":   dir,
				"error": err.Error(),
			})
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				r.Reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("skill watcher error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}
