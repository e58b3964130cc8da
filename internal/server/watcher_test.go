package server

import (
	"testing"
	"time"
)

func TestImportGuardSuppressesBursts(t *testing.T) {
	g := newImportGuard(100 * time.Millisecond)

	if !g.allow("/media/a.mp4") {
		t.Fatalf("first event suppressed")
	}
	if g.allow("/media/a.mp4") {
		t.Errorf("duplicate event inside window not suppressed")
	}
	if !g.allow("/media/b.mp4") {
		t.Errorf("unrelated path suppressed")
	}

	time.Sleep(120 * time.Millisecond)
	if !g.allow("/media/a.mp4") {
		t.Errorf("event after window still suppressed")
	}
}

func TestImportGuardDisabled(t *testing.T) {
	g := newImportGuard(0)

	// A zero window disables suppression entirely.
	for i := 0; i < 3; i++ {
		if !g.allow("/media/a.mp4") {
			t.Fatalf("event %d suppressed with suppression disabled", i)
		}
	}
}

func TestImportGuardPrunesStaleEntries(t *testing.T) {
	g := newImportGuard(10 * time.Millisecond)

	g.allow("/media/a.mp4")
	g.allow("/media/b.mp4")
	time.Sleep(20 * time.Millisecond)

	// The next allow call prunes everything outside the window.
	g.allow("/media/c.mp4")

	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.recent) != 1 {
		t.Errorf("stale entries not pruned: %d remaining", len(g.recent))
	}
}
