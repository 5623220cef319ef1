package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/loqalabs/loqa-narrator/internal/segment"
)

// Artifact is the synthesized audio for one chunk.
type Artifact struct {
	Index    int
	Path     string
	Duration time.Duration
}

// Run is the scratch context of one pipeline execution. It owns every file it
// hands out through Path and removes them, and its directory, on Close.
type Run struct {
	ID           string
	Dir          string
	Chunks       []segment.Chunk
	Artifacts    []Artifact
	ManifestPath string

	root        string
	createdRoot bool

	mu    sync.Mutex
	files map[string]struct{}
	once  sync.Once
	err   error
}

// NewRun creates <root>/<id> and returns a run bound to it.
func NewRun(root, id string) (*Run, error) {
	if id == "" {
		return nil, errors.New("run id must not be empty")
	}
	createdRoot := false
	if _, err := os.Stat(root); os.IsNotExist(err) {
		createdRoot = true
	}
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Run{
		ID:          id,
		Dir:         dir,
		root:        root,
		createdRoot: createdRoot,
		files:       make(map[string]struct{}),
	}, nil
}

// Path returns a scratch path for name and takes ownership of it.
func (r *Run) Path(name string) string {
	p := filepath.Join(r.Dir, name)
	r.mu.Lock()
	r.files[p] = struct{}{}
	r.mu.Unlock()
	return p
}

// Release deletes one scratch file early.
func (r *Run) Release(path string) error {
	r.mu.Lock()
	_, ok := r.files[path]
	delete(r.files, path)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Pending returns the number of scratch files not yet released.
func (r *Run) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.files)
}

func (r *Run) register(a Artifact) error {
	if a.Index != len(r.Artifacts) {
		return fmt.Errorf("artifact %d registered out of order, expected %d", a.Index, len(r.Artifacts))
	}
	r.Artifacts = append(r.Artifacts, a)
	return nil
}

// ArtifactPaths lists artifact files in playback order.
func (r *Run) ArtifactPaths() []string {
	paths := make([]string, 0, len(r.Artifacts))
	for _, a := range r.Artifacts {
		paths = append(paths, a.Path)
	}
	return paths
}

// Close releases all scratch files and removes the scratch directory. The
// scratch root is removed too when this run created it and it is now empty.
// Close is safe to call more than once.
func (r *Run) Close() error {
	r.once.Do(func() {
		r.mu.Lock()
		paths := make([]string, 0, len(r.files))
		for p := range r.files {
			paths = append(paths, p)
		}
		r.files = map[string]struct{}{}
		r.mu.Unlock()

		var errs []error
		for _, p := range paths {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				errs = append(errs, err)
			}
		}
		if err := os.Remove(r.Dir); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove scratch dir: %w", err))
		}
		if r.createdRoot {
			_ = os.Remove(r.root)
		}
		r.err = errors.Join(errs...)
	})
	return r.err
}
