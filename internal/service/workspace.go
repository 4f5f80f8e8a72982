package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/bnema/scribe/internal/domain"
)

const (
	segmentsDir = "segments"
	audioDir    = "audio"
	maxIDLen    = 64
)

// Workspaces hands out per-job directories under one base directory and
// remembers which of them are in use.
type Workspaces struct {
	base   string
	mu     sync.Mutex
	active map[string]struct{}
}

func NewWorkspaces(base string) *Workspaces {
	return &Workspaces{base: base, active: make(map[string]struct{})}
}

func (w *Workspaces) Base() string {
	return w.base
}

// Workspace is the set of directories owned by one job run.
type Workspace struct {
	JobID      string
	Root       string
	SegmentDir string
	AudioDir   string

	owner    *Workspaces
	released sync.Once
	err      error
}

// NewWorkspace creates a fresh workspace for jobID. Two calls with the same
// jobID never share a directory.
func (w *Workspaces) NewWorkspace(jobID string) (*Workspace, error) {
	root := filepath.Join(w.base, dirName(jobID)+"-"+uuid.NewString()[:8])
	fail := func(err error) (*Workspace, error) {
		return nil, &domain.WorkspaceError{Op: "create", Path: root, Err: err}
	}

	if err := os.MkdirAll(w.base, 0o755); err != nil {
		return fail(err)
	}
	if err := os.Mkdir(root, 0o700); err != nil {
		return fail(err)
	}

	ws := &Workspace{
		JobID:      jobID,
		Root:       root,
		SegmentDir: filepath.Join(root, segmentsDir),
		AudioDir:   filepath.Join(root, audioDir),
		owner:      w,
	}
	for _, dir := range []string{ws.SegmentDir, ws.AudioDir} {
		if err := os.Mkdir(dir, 0o700); err != nil {
			_ = os.RemoveAll(root)
			return fail(err)
		}
	}

	w.mu.Lock()
	w.active[root] = struct{}{}
	w.mu.Unlock()
	return ws, nil
}

// IsActive reports whether root belongs to a workspace that has not been
// released.
func (w *Workspaces) IsActive(root string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.active[root]
	return ok
}

func (w *Workspaces) ActiveCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.active)
}

func (ws *Workspace) AudioPath(index int) string {
	return filepath.Join(ws.AudioDir, fmt.Sprintf("segment_%05d.wav", index))
}

// Release deletes the workspace. Subsequent calls return the first result.
func (ws *Workspace) Release() error {
	ws.released.Do(func() {
		if err := os.RemoveAll(ws.Root); err != nil {
			ws.err = &domain.WorkspaceError{Op: "cleanup", Path: ws.Root, Err: err}
			return
		}
		ws.owner.mu.Lock()
		delete(ws.owner.active, ws.Root)
		ws.owner.mu.Unlock()
	})
	return ws.err
}

// dirName maps a job identifier onto a safe single path element.
func dirName(jobID string) string {
	var b strings.Builder
	for _, r := range jobID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= maxIDLen {
			break
		}
	}
	if b.Len() == 0 {
		return "job"
	}
	return b.String()
}
