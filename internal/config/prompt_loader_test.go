package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPrompts(t *testing.T) {
	dir := t.TempDir()
	systemFile := filepath.Join(dir, "system.txt")
	userFile := filepath.Join(dir, "user.txt")
	require.NoError(t, os.WriteFile(systemFile, []byte("  You are an ATS reviewer.  \n"), 0644))
	require.NoError(t, os.WriteFile(userFile, []byte("CV:\n{{cv}}"), 0644))

	cfg := &Config{AI: AIConfig{Prompts: PromptConfig{SystemFile: systemFile, UserFile: userFile}}}
	require.NoError(t, cfg.LoadPrompts())

	assert.Equal(t, "You are an ATS reviewer.", cfg.AI.Prompts.System)
	assert.Equal(t, "CV:\n{{cv}}", cfg.AI.Prompts.User)
}

func TestLoadPromptsInlineWins(t *testing.T) {
	cfg := &Config{AI: AIConfig{Prompts: PromptConfig{
		System:     "inline",
		SystemFile: "/does/not/exist",
	}}}
	require.NoError(t, cfg.LoadPrompts())
	assert.Equal(t, "inline", cfg.AI.Prompts.System)
}

func TestLoadPromptFromFileErrors(t *testing.T) {
	_, err := loadPromptFromFile(filepath.Join(t.TempDir(), "missing.txt"), "system")
	assert.ErrorContains(t, err, "not found")

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("  \n\t"), 0644))
	_, err = loadPromptFromFile(empty, "user")
	assert.ErrorContains(t, err, "is empty")
}

func TestNewPromptWatcherWithoutFiles(t *testing.T) {
	assert.Nil(t, NewPromptWatcher(PromptConfig{System: "inline"}, 0, nil, nil))
}

func TestPromptWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	systemFile := filepath.Join(dir, "system.txt")
	require.NoError(t, os.WriteFile(systemFile, []byte("v1"), 0644))

	var (
		mu  sync.Mutex
		got []PromptSet
	)
	w := NewPromptWatcher(PromptConfig{SystemFile: systemFile}, 20*time.Millisecond, func(p PromptSet) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	}, nil)
	require.NotNil(t, w)
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Stop() })
	assert.True(t, w.IsRunning())

	// ensure a newer modification time than the initial stat
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.WriteFile(systemFile, []byte("v2"), 0644))
	require.NoError(t, os.Chtimes(systemFile, future, future))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 3*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "v2", got[len(got)-1].System)
	mu.Unlock()

	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
	assert.NoError(t, w.Stop())
}

func TestPromptWatcherDoubleStart(t *testing.T) {
	file := filepath.Join(t.TempDir(), "user.txt")
	require.NoError(t, os.WriteFile(file, []byte("u"), 0644))

	w := NewPromptWatcher(PromptConfig{UserFile: file}, 0, nil, nil)
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Stop() })
	assert.Error(t, w.Start())
}

func TestPromptWatcherReloadsAfterRestart(t *testing.T) {
	file := filepath.Join(t.TempDir(), "user.txt")
	require.NoError(t, os.WriteFile(file, []byte("u1"), 0644))

	var (
		mu  sync.Mutex
		got []PromptSet
	)
	w := NewPromptWatcher(PromptConfig{UserFile: file}, 20*time.Millisecond, func(p PromptSet) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	}, nil)
	require.NoError(t, w.Start())
	require.NoError(t, w.Stop())
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Stop() })

	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.WriteFile(file, []byte("u2"), 0644))
	require.NoError(t, os.Chtimes(file, future, future))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0 && got[len(got)-1].User == "u2"
	}, 3*time.Second, 20*time.Millisecond)
}
