// Copyright 2026 Weft Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package skill

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/weftdb/weft/internal/log"
)

// reloadDebounce delays reloads until editor save bursts settle.
const reloadDebounce = 500 * time.Millisecond

// Registry discovers skills from the personal and project directories.
// Personal skills shadow project skills of the same name.
type Registry struct {
	personalDir string
	projectDir  string

	mu     sync.RWMutex
	skills map[string]*Skill

	watcher        *fsnotify.Watcher
	debounceTimers map[string]*time.Timer
	debounceMu     sync.Mutex
	stopCh         chan struct{}
	stopOnce       sync.Once
}

// NewRegistry creates a registry over the two skill directories and
// performs the initial load. Missing directories are not an error.
func NewRegistry(personalDir, projectDir string) *Registry {
	r := &Registry{
		personalDir:    personalDir,
		projectDir:     projectDir,
		skills:         make(map[string]*Skill),
		debounceTimers: make(map[string]*time.Timer),
		stopCh:         make(chan struct{}),
	}
	r.Reload()
	return r
}

// Reload re-scans both directories from scratch.
func (r *Registry) Reload() {
	loaded := make(map[string]*Skill)

	// Project first so personal entries overwrite on name conflict.
	for _, s := range scanDir(r.projectDir, false) {
		loaded[s.Name] = s
	}
	for _, s := range scanDir(r.personalDir, true) {
		loaded[s.Name] = s
	}

	r.mu.Lock()
	r.skills = loaded
	r.mu.Unlock()

	log.Debug("skills loaded", zap.Int("count", len(loaded)))
}

// scanDir loads every <dir>/<name>/SKILL.md.
func scanDir(dir string, personal bool) []*Skill {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var skills []*Skill
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name(), FileName)
		s, err := Parse(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				log.Warn("skipping unparseable skill", zap.String("path", path), zap.Error(err))
			}
			continue
		}
		s.Personal = personal
		skills = append(skills, s)
	}
	return skills
}

// Get looks a skill up by name.
func (r *Registry) Get(name string) (*Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	return s, ok
}

// List returns all skills sorted by name.
func (r *Registry) List() []*Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	skills := make([]*Skill, 0, len(r.skills))
	for _, s := range r.skills {
		skills = append(skills, s)
	}
	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })
	return skills
}

// ModelInvocable returns the skills that belong in the tool catalog.
func (r *Registry) ModelInvocable() []*Skill {
	var out []*Skill
	for _, s := range r.List() {
		if s.ModelInvocable {
			out = append(out, s)
		}
	}
	return out
}

// Watch starts hot reload: any SKILL.md change in either tree triggers
// a debounced full re-scan. Call Stop to shut the watcher down.
func (r *Registry) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	r.watcher = watcher

	for _, dir := range []string{r.personalDir, r.projectDir} {
		if dir == "" {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			log.Debug("skill directory not watchable", zap.String("dir", dir), zap.Error(err))
			continue
		}
		// Watch each skill subdirectory so SKILL.md edits are seen.
		entries, _ := os.ReadDir(dir)
		for _, entry := range entries {
			if entry.IsDir() {
				_ = watcher.Add(filepath.Join(dir, entry.Name()))
			}
		}
	}

	go r.watchLoop()
	return nil
}

func (r *Registry) watchLoop() {
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			r.handleEvent(event)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("skill watcher error", zap.Error(err))
		case <-r.stopCh:
			return
		}
	}
}

func (r *Registry) handleEvent(event fsnotify.Event) {
	base := filepath.Base(event.Name)

	// A new skill directory needs its own watch.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = r.watcher.Add(event.Name)
			return
		}
	}

	if base != FileName {
		return
	}
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return
	}

	r.debounce(event.Name, func() {
		log.Info("skill file changed, reloading",
			zap.String("file", event.Name),
			zap.String("operation", event.Op.String()))
		r.Reload()
	})
}

// debounce coalesces rapid events per file.
func (r *Registry) debounce(key string, fn func()) {
	r.debounceMu.Lock()
	defer r.debounceMu.Unlock()

	if timer, exists := r.debounceTimers[key]; exists {
		timer.Stop()
	}
	r.debounceTimers[key] = time.AfterFunc(reloadDebounce, func() {
		fn()
		r.debounceMu.Lock()
		delete(r.debounceTimers, key)
		r.debounceMu.Unlock()
	})
}

// Stop shuts down the watcher if Watch was started.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		if r.watcher != nil {
			_ = r.watcher.Close()
		}
	})
}
