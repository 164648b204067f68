package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Workspace is the filesystem identity of one in-flight run: a unique token
// and the three paths derived from it. None of the paths exist when the
// workspace is acquired; the source file appears at compile, the binary after
// a successful compile, the input file only when stdin is supplied.
type Workspace struct {
	Token      string
	SourcePath string
	BinaryPath string
	InputPath  string
}

func (w *Workspace) paths() []string {
	return []string{w.SourcePath, w.BinaryPath, w.InputPath}
}

// WorkspaceManager hands out collision-free workspaces under a single
// scratch root and deletes whatever a run left behind. The root is created
// once at construction and shared by all runs; names are unique, so no
// locking is needed.
type WorkspaceManager struct {
	root string
}

// NewWorkspaceManager creates the scratch root if absent.
func NewWorkspaceManager(root string) (*WorkspaceManager, error) {
	if root == "" {
		return nil, fmt.Errorf("scratch root is empty")
	}
	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("creating scratch root: %w", err)
	}
	return &WorkspaceManager{root: root}, nil
}

// Root returns the scratch root path.
func (m *WorkspaceManager) Root() string {
	return m.root
}

// Acquire allocates a workspace for the given run token, minting a fresh
// random one when the token is empty. It creates no files.
func (m *WorkspaceManager) Acquire(token string) *Workspace {
	if token == "" {
		token = uuid.New().String()
	}
	return &Workspace{
		Token:      token,
		SourcePath: filepath.Join(m.root, "code_"+token+".cpp"),
		BinaryPath: filepath.Join(m.root, "code_"+token),
		InputPath:  filepath.Join(m.root, "input_"+token+".txt"),
	}
}

// Release deletes whichever of the workspace's paths exist. Missing files are
// not an error; delete failures are joined and returned for logging only and
// must never replace a run's primary result.
func (m *WorkspaceManager) Release(ws *Workspace) error {
	if ws == nil {
		return nil
	}
	var errs []error
	for _, p := range ws.paths() {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SweepOrphans removes scratch entries that match the workspace naming
// scheme and are older than maxAge. Files this old can only be leftovers
// from a previous process that died mid-run; live workspaces are far
// younger. Returns the number of entries removed.
func (m *WorkspaceManager) SweepOrphans(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return 0, fmt.Errorf("reading scratch root: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	var swept int
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "code_") && !strings.HasPrefix(name, "input_") {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(m.root, name)); err != nil {
			log.Warn().Err(err).Str("file", name).Msg("failed to remove orphaned workspace file")
			continue
		}
		log.Info().Str("file", name).Msg("removed orphaned workspace file")
		swept++
	}
	return swept, nil
}
