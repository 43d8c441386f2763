package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"atsboost/internal/errors"

	"github.com/fsnotify/fsnotify"
)

// PromptSet is the pair of analysis prompts delivered on reload
type PromptSet struct {
	System string
	User   string
}

// PromptWatcher watches prompt files and hands fresh content to a callback
type PromptWatcher struct {
	mu sync.RWMutex

	files       []string
	systemFile  string
	userFile    string
	lastModTime map[string]time.Time

	fsWatcher     *fsnotify.Watcher
	debounceDelay time.Duration
	debounceTimer *time.Timer

	stopChan   chan struct{}
	reloadChan chan struct{}

	onReload func(PromptSet)
	logger   *errors.Logger

	running bool
}

// NewPromptWatcher creates a watcher for the prompt files in cfg. It returns
// nil when no prompt file is configured.
func NewPromptWatcher(cfg PromptConfig, debounceDelay time.Duration, onReload func(PromptSet), logger *errors.Logger) *PromptWatcher {
	var files []string
	if cfg.SystemFile != "" {
		files = append(files, cfg.SystemFile)
	}
	if cfg.UserFile != "" {
		files = append(files, cfg.UserFile)
	}
	if len(files) == 0 {
		return nil
	}
	if debounceDelay == 0 {
		debounceDelay = time.Second
	}
	if logger == nil {
		logger = errors.NewNopLogger()
	}

	return &PromptWatcher{
		files:         files,
		systemFile:    cfg.SystemFile,
		userFile:      cfg.UserFile,
		lastModTime:   make(map[string]time.Time),
		debounceDelay: debounceDelay,
		reloadChan:    make(chan struct{}, 1),
		onReload:      onReload,
		logger:        logger,
	}
}

// Start begins watching the prompt files
func (pw *PromptWatcher) Start() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.running {
		return fmt.Errorf("prompt watcher is already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	pw.fsWatcher = watcher
	pw.stopChan = make(chan struct{})

	for _, file := range pw.files {
		if stat, err := os.Stat(file); err == nil {
			pw.lastModTime[file] = stat.ModTime()
		}
		// Watch the directory so atomic replace-by-rename is seen
		dir := filepath.Dir(file)
		if err := pw.fsWatcher.Add(dir); err != nil {
			pw.logger.Warn("Failed to watch prompt directory", "directory", dir, "error", err)
		}
	}

	pw.running = true
	go pw.watchLoop(watcher, pw.stopChan)

	pw.logger.Info("Prompt file watcher started", "files", pw.files, "debounce_delay", pw.debounceDelay)
	return nil
}

// Stop stops the watcher. It is safe to call more than once.
func (pw *PromptWatcher) Stop() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if !pw.running {
		return nil
	}

	close(pw.stopChan)
	if pw.debounceTimer != nil {
		pw.debounceTimer.Stop()
	}
	pw.running = false

	if err := pw.fsWatcher.Close(); err != nil {
		pw.logger.LogError(err, "Failed to close prompt file watcher")
		return err
	}

	pw.logger.Info("Prompt file watcher stopped")
	return nil
}

// IsRunning returns whether the watcher is currently running
func (pw *PromptWatcher) IsRunning() bool {
	pw.mu.RLock()
	defer pw.mu.RUnlock()
	return pw.running
}

func (pw *PromptWatcher) watchLoop(watcher *fsnotify.Watcher, stop <-chan struct{}) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if pw.shouldProcessEvent(event) {
				pw.scheduleReload()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			pw.logger.LogError(err, "Prompt file watcher error")

		case <-pw.reloadChan:
			if pw.hasAnyFileChanged() {
				pw.reload()
			}

		case <-stop:
			return
		}
	}
}

func (pw *PromptWatcher) shouldProcessEvent(event fsnotify.Event) bool {
	watched := slices.ContainsFunc(pw.files, func(file string) bool {
		return event.Name == file || filepath.Base(event.Name) == filepath.Base(file)
	})
	if !watched {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (pw *PromptWatcher) hasFileChanged(file string) bool {
	stat, err := os.Stat(file)
	if err != nil {
		return false
	}
	pw.mu.Lock()
	defer pw.mu.Unlock()

	lastMod, exists := pw.lastModTime[file]
	if !exists || stat.ModTime().After(lastMod) {
		pw.lastModTime[file] = stat.ModTime()
		return true
	}
	return false
}

func (pw *PromptWatcher) hasAnyFileChanged() bool {
	changed := false
	// evaluate every file so all modification times are refreshed
	for _, file := range pw.files {
		if pw.hasFileChanged(file) {
			changed = true
		}
	}
	return changed
}

// reload re-reads both files. A file that fails to load keeps the watcher
// silent for this round; the previous prompts stay active.
func (pw *PromptWatcher) reload() {
	var set PromptSet
	if pw.systemFile != "" {
		content, err := loadPromptFromFile(pw.systemFile, "system")
		if err != nil {
			pw.logger.LogError(err, "Failed to reload system prompt", "file", pw.systemFile)
			return
		}
		set.System = content
	}
	if pw.userFile != "" {
		content, err := loadPromptFromFile(pw.userFile, "user")
		if err != nil {
			pw.logger.LogError(err, "Failed to reload user prompt", "file", pw.userFile)
			return
		}
		set.User = content
	}

	pw.logger.Info("Prompt files changed, applying new prompts")
	if pw.onReload != nil {
		pw.onReload(set)
	}
}

func (pw *PromptWatcher) scheduleReload() {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.debounceTimer != nil {
		pw.debounceTimer.Stop()
	}
	pw.debounceTimer = time.AfterFunc(pw.debounceDelay, func() {
		select {
		case pw.reloadChan <- struct{}{}:
		default:
		}
	})
}
