package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, level string) {
	t.Helper()
	content := "log:\n  level: " + level + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, "info")

	w, err := NewWatcher(path, WithWatchInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if w.Config().Log.Level != "info" {
		t.Fatalf("initial level = %s", w.Config().Log.Level)
	}

	changed := make(chan *Config, 1)
	w.OnChange(func(cfg *Config) {
		select {
		case changed <- cfg:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	// Rewriting with a bumped mtime triggers a reload.
	writeConfig(t, path, "debug")
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	select {
	case cfg := <-changed:
		if cfg.Log.Level != "debug" {
			t.Errorf("reloaded level = %s", cfg.Log.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}
	if w.Config().Log.Level != "debug" {
		t.Errorf("Config() not updated: %s", w.Config().Log.Level)
	}
}

func TestWatcherKeepsLastGoodConfigOnBrokenEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, "info")

	w, err := NewWatcher(path, WithWatchInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	if err := os.WriteFile(path, []byte("log: [broken"), 0o644); err != nil {
		t.Fatalf("write broken config: %v", err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	// Give the poller a few cycles to notice and reject the edit.
	time.Sleep(100 * time.Millisecond)
	if w.Config().Log.Level != "info" {
		t.Errorf("broken edit replaced config: level = %s", w.Config().Log.Level)
	}
}

func TestWatcherWithoutPath(t *testing.T) {
	w, err := NewWatcher("")
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if w.Config().Log.Level != "info" {
		t.Errorf("default level = %s", w.Config().Log.Level)
	}
	w.Start(context.Background())
	w.Stop() // must not hang with nothing to poll
}

func TestReloadableConfig(t *testing.T) {
	base, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	r := NewReloadableConfig(base)
	if r.Log().Level != "info" {
		t.Fatalf("level = %s", r.Log().Level)
	}

	next := *base
	next.Log.Level = "debug"
	next.Inference.Model = "other"
	r.Update(&next)

	if r.Log().Level != "debug" || r.Inference().Model != "other" {
		t.Errorf("update not visible: %+v", r.Get())
	}
}
