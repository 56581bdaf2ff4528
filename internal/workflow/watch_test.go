package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flow.yaml")

	initial := "name: v1\ntasks:\n  - id: a\n    command: \"true\"\n"
	if err := os.WriteFile(path, []byte(initial), 0644); err != nil {
		t.Fatalf("write workflow: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *File, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(f *File) { reloaded <- f })
	}()

	// Give the watcher a moment to register before modifying the file.
	time.Sleep(100 * time.Millisecond)

	updated := "name: v2\ntasks:\n  - id: a\n    command: \"true\"\n  - id: b\n    command: \"true\"\n"
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatalf("rewrite workflow: %v", err)
	}

	select {
	case f := <-reloaded:
		if f.Name != "v2" || len(f.Tasks) != 2 {
			t.Errorf("unexpected reloaded file: name=%s tasks=%d", f.Name, len(f.Tasks))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed after write")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}

func TestWatchSkipsInvalidEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flow.yaml")

	if err := os.WriteFile(path, []byte("name: ok\ntasks:\n  - id: a\n    command: \"true\"\n"), 0644); err != nil {
		t.Fatalf("write workflow: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *File, 4)
	go func() { _ = Watch(ctx, path, func(f *File) { reloaded <- f }) }()
	time.Sleep(100 * time.Millisecond)

	// Broken edit: no tasks. The callback must not fire.
	if err := os.WriteFile(path, []byte("name: broken\ntasks: []\n"), 0644); err != nil {
		t.Fatalf("rewrite workflow: %v", err)
	}

	select {
	case f := <-reloaded:
		t.Errorf("invalid edit must not trigger reload, got %s", f.Name)
	case <-time.After(700 * time.Millisecond):
	}
}
