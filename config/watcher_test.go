package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestNewWatcher(t *testing.T) {
	t.Run("valid config path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "recall.yaml")
		writeConfig(t, path, "app:\n  name: test\n")

		w, err := NewWatcher(path)
		if err != nil {
			t.Fatalf("NewWatcher failed: %v", err)
		}
		defer w.Stop()

		if w.ConfigPath() != path {
			t.Errorf("expected config path %s, got %s", path, w.ConfigPath())
		}
		if w.IsRunning() {
			t.Error("watcher should not be running before Watch")
		}
	})

	t.Run("empty config path", func(t *testing.T) {
		if _, err := NewWatcher(""); err == nil {
			t.Fatal("expected error for empty config path")
		}
	})

	t.Run("with debounce option", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "recall.yaml")
		writeConfig(t, path, "app:\n  name: test\n")

		w, err := NewWatcher(path, WithDebounce(50*time.Millisecond))
		if err != nil {
			t.Fatalf("NewWatcher failed: %v", err)
		}
		defer w.Stop()

		if w.debounce != 50*time.Millisecond {
			t.Errorf("expected debounce 50ms, got %v", w.debounce)
		}
	})
}

func TestWatcher_ReloadOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recall.yaml")
	writeConfig(t, path, "jobs:\n  token: one\n")

	w, err := NewWatcher(path, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Stop()

	got := make(chan *Config, 4)
	w.OnChange(func(cfg *Config) { got <- cfg })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Watch(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !w.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	writeConfig(t, path, "jobs:\n  token: two\n")

	select {
	case cfg := <-got:
		if cfg.Jobs.Token != "two" {
			t.Errorf("expected reloaded token 'two', got %q", cfg.Jobs.Token)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcher_InvalidReloadReportsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recall.yaml")
	writeConfig(t, path, "app:\n  name: ok\n")

	errs := make(chan error, 4)
	w, err := NewWatcher(path,
		WithDebounce(20*time.Millisecond),
		WithErrorHandler(func(err error) { errs <- err }),
	)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Stop()

	called := make(chan struct{}, 1)
	w.OnChange(func(*Config) { called <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	writeConfig(t, path, "server:\n  port: 0\n")

	select {
	case <-errs:
	case <-time.After(3 * time.Second):
		t.Fatal("expected reload error")
	}
	select {
	case <-called:
		t.Error("callback must not run for an invalid config")
	default:
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recall.yaml")
	writeConfig(t, path, "")

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("first Stop: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestHotReloadable_Changed(t *testing.T) {
	a := ExtractHotReloadable(DefaultConfig())
	b := a
	if a.Changed(b) {
		t.Error("identical values reported as changed")
	}
	b.JobToken = "rotated"
	if !a.Changed(b) {
		t.Error("token rotation not detected")
	}
}
