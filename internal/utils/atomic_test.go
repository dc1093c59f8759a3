package utils

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteFileAtomicReplacesContent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	err := WriteFileAtomic(context.Background(), path, 0o600, func(w io.Writer) error {
		_, err := io.WriteString(w, "new")
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(data) != "new" {
		t.Fatalf("expected new content, got %q", data)
	}

	assertNoTempFiles(t, filepath.Dir(path))
}

func TestWriteFileAtomicKeepsOriginalOnInterruptedWrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte(`{"ok":true}`), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	interrupted := errors.New("interrupted")
	err := WriteFileAtomic(context.Background(), path, 0o644, func(w io.Writer) error {
		if _, err := io.WriteString(w, `{"partial`); err != nil {
			return err
		}
		return interrupted
	})
	if !errors.Is(err, interrupted) {
		t.Fatalf("expected interrupted error, got %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Fatalf("original file modified: %q", data)
	}

	assertNoTempFiles(t, filepath.Dir(path))
}

func TestWriteFileAtomicRespectsCanceledContext(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WriteFileAtomic(ctx, path, 0o644, func(w io.Writer) error {
		_, err := io.WriteString(w, "data")
		return err
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no file to be created, stat err: %v", err)
	}
}

func TestWaitForHonorsContext(t *testing.T) {
	original := sleep
	block := make(chan struct{})
	sleep = func(time.Duration) { <-block }
	defer func() {
		close(block)
		sleep = original
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := WaitFor(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if err := WaitFor(context.Background(), 0); err != nil {
		t.Fatalf("expected zero duration to return immediately, got %v", err)
	}
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) != ".json" {
			t.Fatalf("unexpected leftover file %s", entry.Name())
		}
	}
}
