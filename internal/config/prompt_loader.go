package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// LoadPrompts resolves prompt file references into the inline prompt
// fields. Inline values already set take precedence over files.
func (c *Config) LoadPrompts() error {
	p := &c.AI.Prompts

	if p.System == "" && p.SystemFile != "" {
		content, err := loadPromptFromFile(p.SystemFile, "system")
		if err != nil {
			return err
		}
		p.System = content
	}

	if p.User == "" && p.UserFile != "" {
		content, err := loadPromptFromFile(p.UserFile, "user")
		if err != nil {
			return err
		}
		p.User = content
	}

	if p.System == "" && p.User == "" {
		log.Println("[CONFIG] No custom prompts loaded - using built-in defaults")
	}
	return nil
}

// loadPromptFromFile loads a prompt from a file with proper error handling and logging
func loadPromptFromFile(filePath, promptType string) (string, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %s prompt file '%s': %w", promptType, filePath, err)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s prompt file not found: %s", promptType, absPath)
		}
		return "", fmt.Errorf("failed to read %s prompt file '%s': %w", promptType, absPath, err)
	}

	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" {
		return "", fmt.Errorf("%s prompt file '%s' is empty", promptType, absPath)
	}

	log.Printf("[CONFIG] Successfully loaded %s prompt from file: %s (%d characters)",
		promptType, absPath, len(trimmed))

	return trimmed, nil
}
