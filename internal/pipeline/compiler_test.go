package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeScript drops an executable shell script into a temp dir and returns
// its path. Tests use scripts as stand-in compilers and binaries so the
// subprocess plumbing is exercised without a real toolchain.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool.sh")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0700); err != nil { // #nosec G306 -- must be executable
		t.Fatal(err)
	}
	return path
}

// fakeCompiler returns a script that acts like a compiler: it writes a shell
// script with the given program body to the -o target and marks it
// executable. Argv arrives as [source, -o, binary, flags...].
func fakeCompiler(t *testing.T, program string) string {
	t.Helper()
	body := "cat > \"$3\" <<'PROG'\n#!/bin/sh\n" + program + "\nPROG\nchmod +x \"$3\""
	return writeScript(t, body)
}

func TestResolveCompiler_NotFound(t *testing.T) {
	_, err := resolveCompiler("definitely-not-a-real-compiler-p9q8")
	if !errors.Is(err, ErrCompilerNotFound) {
		t.Errorf("error = %v, want ErrCompilerNotFound", err)
	}
}

func TestResolveCompiler_ExplicitPath(t *testing.T) {
	script := writeScript(t, "exit 0")

	got, err := resolveCompiler(script)
	if err != nil {
		t.Fatalf("resolveCompiler(%q) = %v", script, err)
	}
	if got != script {
		t.Errorf("resolved to %q, want %q", got, script)
	}
}

func TestCompile_Success(t *testing.T) {
	m := newTestManager(t)
	ws := m.Acquire("ok")
	c := &Compiler{bin: writeScript(t, "exit 0"), diagCap: 1024}

	out, err := c.Compile(context.Background(), "int main() { return 0; }", ws, nil, 5*time.Second)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !out.OK {
		t.Errorf("OK = false, diagnostics %q", out.Diagnostics)
	}
	if out.TimedOut {
		t.Error("TimedOut = true")
	}
	if out.Duration <= 0 {
		t.Errorf("Duration = %v, want > 0", out.Duration)
	}
}

func TestCompile_WritesSourceVerbatim(t *testing.T) {
	m := newTestManager(t)
	ws := m.Acquire("src")
	c := &Compiler{bin: writeScript(t, "exit 0"), diagCap: 1024}

	source := "#include <iostream>\nint main() { std::cout << \"hi\\n\"; }\n"
	if _, err := c.Compile(context.Background(), source, ws, nil, 5*time.Second); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(ws.SourcePath)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != source {
		t.Errorf("source on disk = %q, want %q", got, source)
	}
}

func TestCompile_ArgvShape(t *testing.T) {
	m := newTestManager(t)
	ws := m.Acquire("argv")
	// Echo argv back through stderr so the outcome carries it.
	c := &Compiler{bin: writeScript(t, `printf '%s\n' "$@" >&2; exit 1`), diagCap: 4096}

	out, err := c.Compile(context.Background(), "x", ws, []string{"-O2", "-std=c++17"}, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if out.OK {
		t.Fatal("OK = true, want compile failure")
	}

	got := strings.Split(strings.TrimRight(out.Diagnostics, "\n"), "\n")
	want := []string{ws.SourcePath, "-o", ws.BinaryPath, "-O2", "-std=c++17"}
	if len(got) != len(want) {
		t.Fatalf("argv = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("argv[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCompile_FailureCarriesDiagnostics(t *testing.T) {
	m := newTestManager(t)
	ws := m.Acquire("bad")
	script := `echo "x.cpp:3:5: error: expected ';' before 'return'" >&2; exit 1`
	c := &Compiler{bin: writeScript(t, script), diagCap: 1024}

	out, err := c.Compile(context.Background(), "x", ws, nil, 5*time.Second)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if out.OK || out.TimedOut {
		t.Fatalf("outcome = %+v, want plain failure", out)
	}
	if !strings.Contains(out.Diagnostics, "expected ';'") {
		t.Errorf("Diagnostics = %q, missing compiler message", out.Diagnostics)
	}
}

func TestCompile_DiagnosticsCapped(t *testing.T) {
	m := newTestManager(t)
	ws := m.Acquire("cap")
	script := `i=0; while [ $i -lt 100 ]; do echo "e.cpp:1:1: error: overlong diagnostic line" >&2; i=$((i+1)); done; exit 1`
	c := &Compiler{bin: writeScript(t, script), diagCap: 64}

	out, err := c.Compile(context.Background(), "x", ws, nil, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(out.Diagnostics, truncateMarker) {
		t.Errorf("capped diagnostics missing marker: %q", out.Diagnostics)
	}
	if len(out.Diagnostics) != 64+len(truncateMarker) {
		t.Errorf("len(Diagnostics) = %d, want %d", len(out.Diagnostics), 64+len(truncateMarker))
	}
}

func TestCompile_Timeout(t *testing.T) {
	m := newTestManager(t)
	ws := m.Acquire("slow")
	c := &Compiler{bin: writeScript(t, "sleep 5"), diagCap: 1024}

	start := time.Now()
	out, err := c.Compile(context.Background(), "x", ws, nil, 150*time.Millisecond)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !out.TimedOut {
		t.Fatalf("TimedOut = false, outcome %+v", out)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("compile wound down in %v, want well under the script's 5s sleep", elapsed)
	}
}

func TestCompile_CallerCancellation(t *testing.T) {
	m := newTestManager(t)
	ws := m.Acquire("cancel")
	c := &Compiler{bin: writeScript(t, "sleep 5"), diagCap: 1024}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := c.Compile(ctx, "x", ws, nil, 10*time.Second)
	if err == nil {
		t.Fatal("Compile = nil error, want caller-cancellation fault")
	}
	if !strings.Contains(err.Error(), "compile canceled") {
		t.Errorf("error = %v, want compile canceled", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want wrapped context.Canceled", err)
	}
}

func TestCompile_StartFailure(t *testing.T) {
	m := newTestManager(t)
	ws := m.Acquire("nobin")
	c := &Compiler{bin: filepath.Join(t.TempDir(), "missing"), diagCap: 1024}

	_, err := c.Compile(context.Background(), "x", ws, nil, time.Second)
	if err == nil || !strings.Contains(err.Error(), "starting compiler") {
		t.Errorf("error = %v, want starting compiler fault", err)
	}
}

func TestCompilerVersion(t *testing.T) {
	script := `echo "fake-g++ (scripted) 13.2.0"; echo "Copyright line"`
	c := &Compiler{bin: writeScript(t, script), diagCap: 1024}

	got, err := c.Version(context.Background())
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if got != "fake-g++ (scripted) 13.2.0" {
		t.Errorf("Version() = %q, want first output line only", got)
	}
}
