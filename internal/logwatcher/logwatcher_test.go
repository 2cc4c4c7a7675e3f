package logwatcher

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"
)

var panicRe = regexp.MustCompile(`Kernel panic - not syncing`)

func TestWatch_Match(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "virt-install.log")
	logFile, err := os.Create(logPath)
	if err != nil {
		t.Fatalf("Failed to create log file: %v", err)
	}
	defer logFile.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	matches, err := Watch(ctx, logPath, regexp.MustCompile(`Call Trace:`), panicRe)
	if err != nil {
		t.Fatalf("Watch() returned an error: %v", err)
	}

	// Give the watcher a moment to start
	time.Sleep(100 * time.Millisecond)

	if _, err := logFile.WriteString("[    1.000000] Booting\n[    2.345678] Kernel panic - not syncing: VFS: Unable to mount root fs\n"); err != nil {
		t.Fatalf("Failed to write to log file: %v", err)
	}

	select {
	case m, ok := <-matches:
		if !ok {
			t.Fatal("Watch() closed the channel without a match")
		}
		if m.Pattern != panicRe {
			t.Errorf("Watch() matched pattern %v, want %v", m.Pattern, panicRe)
		}
		if m.Line != "[    2.345678] Kernel panic - not syncing: VFS: Unable to mount root fs" {
			t.Errorf("Watch() matched line %q", m.Line)
		}
	case <-ctx.Done():
		t.Fatal("Watch() did not report the match in time")
	}
}

func TestWatch_FileCreatedLater(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "virt-install.log")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	matches, err := Watch(ctx, logPath, panicRe)
	if err != nil {
		t.Fatalf("Watch() returned an error: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(logPath, []byte("Kernel panic - not syncing: Fatal exception\n"), 0644); err != nil {
		t.Fatalf("Failed to write log file: %v", err)
	}

	select {
	case _, ok := <-matches:
		if !ok {
			t.Fatal("Watch() closed the channel without a match")
		}
	case <-ctx.Done():
		t.Fatal("Watch() did not report the match in time")
	}
}

func TestWatch_CancelClosesChannel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "virt-install.log")
	if err := os.WriteFile(logPath, []byte("nothing interesting\n"), 0644); err != nil {
		t.Fatalf("Failed to write log file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	matches, err := Watch(ctx, logPath, panicRe)
	if err != nil {
		t.Fatalf("Watch() returned an error: %v", err)
	}
	cancel()

	select {
	case _, ok := <-matches:
		if ok {
			t.Error("Watch() reported a match for a log without one")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch() did not close the channel after cancel")
	}
}
