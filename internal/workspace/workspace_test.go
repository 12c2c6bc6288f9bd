package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"forgeline/internal/events"
)

func newTestManager(t *testing.T) (*Manager, *events.Bus) {
	t.Helper()
	bus := events.NewBus()
	m, err := NewManager(t.TempDir(), bus)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, bus
}

func TestCreateSeedsWorkspace(t *testing.T) {
	m, bus := newTestManager(t)

	var created []events.Event
	bus.Subscribe(events.EventWorkspaceCreated, func(e events.Event) error {
		created = append(created, e)
		return nil
	})

	dir, err := m.Create("m1", "build a json formatter")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, name := range []string{"README.md", ".gitignore"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("seed file %s missing: %v", name, err)
		}
	}
	if len(created) != 1 {
		t.Fatalf("got %d workspace.created events, want 1", len(created))
	}
	if m.Get("m1") != dir {
		t.Fatalf("Get = %q, want %q", m.Get("m1"), dir)
	}
}

func TestCreateExistingIsNoOp(t *testing.T) {
	m, _ := newTestManager(t)

	dir, err := m.Create("m1", "first")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	marker := filepath.Join(dir, "marker.txt")
	if err := os.WriteFile(marker, []byte("keep"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	if _, err := m.Create("m1", "second"); err != nil {
		t.Fatalf("re-Create: %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatal("re-create wiped workspace contents")
	}
}

func TestWriteFileValidationRestoresPrior(t *testing.T) {
	m, _ := newTestManager(t)
	dir, err := m.Create("m1", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := m.WriteFile("m1", "main.py", []byte("print('v1')\n"), nil); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	reject := func(string, []byte) error { return errors.New("syntax error") }
	err = m.WriteFile("m1", "main.py", []byte("broken("), reject)
	if err == nil {
		t.Fatal("rejected write returned nil error")
	}

	content, readErr := os.ReadFile(filepath.Join(dir, "main.py"))
	if readErr != nil {
		t.Fatalf("read after restore: %v", readErr)
	}
	if string(content) != "print('v1')\n" {
		t.Fatalf("prior content not restored, got %q", content)
	}
}

func TestWriteFileValidationRemovesNewFile(t *testing.T) {
	m, _ := newTestManager(t)
	dir, err := m.Create("m1", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	reject := func(string, []byte) error { return errors.New("denied") }
	if err := m.WriteFile("m1", "evil.py", []byte("import os"), reject); err == nil {
		t.Fatal("rejected write returned nil error")
	}
	if _, err := os.Stat(filepath.Join(dir, "evil.py")); !os.IsNotExist(err) {
		t.Fatal("rejected new file left on disk")
	}
}

func TestWriteFilePublishesModification(t *testing.T) {
	m, bus := newTestManager(t)
	if _, err := m.Create("m1", ""); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var modified int
	bus.Subscribe(events.EventFileModified, func(events.Event) error {
		modified++
		return nil
	})

	if err := m.WriteFile("m1", "src/app.py", []byte("pass\n"), nil); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if modified != 1 {
		t.Fatalf("got %d file.modified events, want 1", modified)
	}
}

func TestDelete(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Create("m1", ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Delete("m1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if m.Get("m1") != "" {
		t.Fatal("workspace still resolvable after delete")
	}
}
