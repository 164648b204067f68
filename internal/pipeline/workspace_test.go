package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *WorkspaceManager {
	t.Helper()
	m, err := NewWorkspaceManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestAcquire_PathsDeriveFromToken(t *testing.T) {
	m := newTestManager(t)

	ws := m.Acquire("run-1")
	if ws.Token != "run-1" {
		t.Errorf("Token = %q, want %q", ws.Token, "run-1")
	}
	if got := filepath.Base(ws.SourcePath); got != "code_run-1.cpp" {
		t.Errorf("source file = %q, want code_run-1.cpp", got)
	}
	if got := filepath.Base(ws.BinaryPath); got != "code_run-1" {
		t.Errorf("binary file = %q, want code_run-1", got)
	}
	if got := filepath.Base(ws.InputPath); got != "input_run-1.txt" {
		t.Errorf("input file = %q, want input_run-1.txt", got)
	}
	for _, p := range ws.paths() {
		if filepath.Dir(p) != m.Root() {
			t.Errorf("path %q is not under scratch root %q", p, m.Root())
		}
	}
}

func TestAcquire_EmptyTokenMintsUnique(t *testing.T) {
	m := newTestManager(t)

	a := m.Acquire("")
	b := m.Acquire("")
	if a.Token == "" {
		t.Fatal("empty token not replaced")
	}
	if a.Token == b.Token {
		t.Errorf("tokens collide: %q", a.Token)
	}
}

func TestAcquire_CreatesNoFiles(t *testing.T) {
	m := newTestManager(t)

	m.Acquire("x")

	entries, err := os.ReadDir(m.Root())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Acquire created %d files, want 0", len(entries))
	}
}

func TestRelease_RemovesWhateverExists(t *testing.T) {
	m := newTestManager(t)
	ws := m.Acquire("r")

	// Source and binary written, input never was.
	if err := os.WriteFile(ws.SourcePath, []byte("int main() {}"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ws.BinaryPath, []byte("\x7fELF"), 0700); err != nil { // #nosec G306
		t.Fatal(err)
	}

	if err := m.Release(ws); err != nil {
		t.Fatalf("Release: %v", err)
	}

	entries, err := os.ReadDir(m.Root())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("scratch root has %d entries after release, want 0", len(entries))
	}
}

func TestRelease_Idempotent(t *testing.T) {
	m := newTestManager(t)
	ws := m.Acquire("r")

	if err := os.WriteFile(ws.SourcePath, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := m.Release(ws); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if err := m.Release(ws); err != nil {
		t.Errorf("second Release: %v, want nil", err)
	}
	if err := m.Release(nil); err != nil {
		t.Errorf("Release(nil): %v, want nil", err)
	}
}

func TestRelease_LeavesOtherWorkspacesAlone(t *testing.T) {
	m := newTestManager(t)
	a := m.Acquire("a")
	b := m.Acquire("b")

	for _, ws := range []*Workspace{a, b} {
		if err := os.WriteFile(ws.SourcePath, []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
	}

	if err := m.Release(a); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(b.SourcePath); err != nil {
		t.Errorf("releasing workspace a removed b's source: %v", err)
	}
}

func TestSweepOrphans(t *testing.T) {
	m := newTestManager(t)
	stale := time.Now().Add(-2 * time.Hour)

	deadSource := filepath.Join(m.Root(), "code_dead.cpp")
	deadInput := filepath.Join(m.Root(), "input_dead.txt")
	liveSource := filepath.Join(m.Root(), "code_live.cpp")
	unrelated := filepath.Join(m.Root(), "README")

	for _, p := range []string{deadSource, deadInput, liveSource, unrelated} {
		if err := os.WriteFile(p, []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
	}
	for _, p := range []string{deadSource, deadInput, unrelated} {
		if err := os.Chtimes(p, stale, stale); err != nil {
			t.Fatal(err)
		}
	}

	n, err := m.SweepOrphans(30 * time.Minute)
	if err != nil {
		t.Fatalf("SweepOrphans: %v", err)
	}
	if n != 2 {
		t.Errorf("swept %d entries, want 2", n)
	}
	if _, err := os.Stat(deadSource); !os.IsNotExist(err) {
		t.Error("stale source survived the sweep")
	}
	if _, err := os.Stat(liveSource); err != nil {
		t.Error("fresh workspace file was swept")
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Error("file outside the naming scheme was swept")
	}
}
