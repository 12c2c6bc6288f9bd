// Package workspace manages per-mission working directories and
// validated file writes. A write whose validation fails restores the
// file's prior content so a bad patch never leaves the tree broken.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"forgeline/internal/events"
)

// Validator checks new file content before a write is kept. Returning
// an error rejects the write and restores the previous content.
type Validator func(path string, content []byte) error

// Manager creates and tracks mission workspaces under a base directory
type Manager struct {
	baseDir string
	bus     *events.Bus
}

// NewManager creates a manager rooted at baseDir, creating it if
// needed. The bus may be nil when no event publication is wanted.
func NewManager(baseDir string, bus *events.Bus) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace base: %w", err)
	}
	return &Manager{baseDir: baseDir, bus: bus}, nil
}

// Create makes the workspace directory for a mission and seeds it
// with a README and .gitignore. Creating an existing workspace is a
// no-op returning its path.
func (m *Manager) Create(missionID, description string) (string, error) {
	dir := filepath.Join(m.baseDir, missionID)
	if _, err := os.Stat(dir); err == nil {
		return dir, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating workspace: %w", err)
	}

	readme := fmt.Sprintf("# %s\n\n%s\n", missionID, description)
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte(readme), 0o644); err != nil {
		return "", fmt.Errorf("seeding README: %w", err)
	}
	gitignore := "__pycache__/\n*.pyc\nnode_modules/\n.env\n"
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(gitignore), 0o644); err != nil {
		return "", fmt.Errorf("seeding .gitignore: %w", err)
	}

	m.publish(events.EventWorkspaceCreated, missionID, map[string]any{"path": dir})
	return dir, nil
}

// Get returns the workspace path for a mission, or "" when none exists
func (m *Manager) Get(missionID string) string {
	dir := filepath.Join(m.baseDir, missionID)
	if _, err := os.Stat(dir); err != nil {
		return ""
	}
	return dir
}

// Delete removes a mission workspace and everything in it
func (m *Manager) Delete(missionID string) error {
	dir := filepath.Join(m.baseDir, missionID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("deleting workspace: %w", err)
	}
	return nil
}

// WriteFile writes content to relPath inside the mission workspace.
// When a validator is given and rejects the content, the file's prior
// content is restored (or the file removed if it did not exist) and
// the validation error is returned.
func (m *Manager) WriteFile(missionID, relPath string, content []byte, validate Validator) error {
	dir := filepath.Join(m.baseDir, missionID)
	path := filepath.Join(dir, relPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating parent dir: %w", err)
	}

	prior, readErr := os.ReadFile(path)
	existed := readErr == nil

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", relPath, err)
	}

	if validate != nil {
		if err := validate(path, content); err != nil {
			if existed {
				if restoreErr := os.WriteFile(path, prior, 0o644); restoreErr != nil {
					return fmt.Errorf("restoring %s after failed validation: %w", relPath, restoreErr)
				}
			} else {
				os.Remove(path)
			}
			return fmt.Errorf("validating %s: %w", relPath, err)
		}
	}

	m.publish(events.EventFileModified, missionID, map[string]any{"path": path})
	return nil
}

func (m *Manager) publish(eventType events.EventType, missionID string, payload map[string]any) {
	if m.bus == nil {
		return
	}
	payload["mission_id"] = missionID
	m.bus.PublishSync(events.New(eventType, payload, "workspace"))
}
