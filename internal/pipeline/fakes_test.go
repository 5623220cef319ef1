package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/loqa-narrator/internal/media"
	"github.com/loqalabs/loqa-narrator/internal/tts"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSynth writes each chunk's text as its "audio" so that concatenated
// output can be compared with the input.
type fakeSynth struct {
	mu     sync.Mutex
	calls  []int
	fail   map[int]error
	delay  func(index int) time.Duration
	active int
	peak   int
}

func chunkIndex(path string) int {
	var index int
	base := filepath.Base(path)
	if _, err := fmt.Sscanf(base, "chunk_%d.txt", &index); err != nil {
		return -1
	}
	return index
}

func (f *fakeSynth) Synthesize(ctx context.Context, req tts.SynthRequest) error {
	index := chunkIndex(req.TextPath)
	f.mu.Lock()
	f.calls = append(f.calls, index)
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	failErr := f.fail[index]
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.delay != nil {
		select {
		case <-time.After(f.delay(index)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if failErr != nil {
		return failErr
	}
	data, err := os.ReadFile(req.TextPath)
	if err != nil {
		return err
	}
	return os.WriteFile(req.OutputPath, data, 0o644)
}

func (f *fakeSynth) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeProcessor joins files byte-wise and copies for tempo. A failing mode
// writes partial output before returning its error unless failClean is set.
type fakeProcessor struct {
	failClean    bool
	concatErr    error
	tempoErr     error
	concatCalls  int
	tempoCalls   int
	manifest     []string
	lastTempoReq media.TempoRequest
}

func (p *fakeProcessor) Concat(ctx context.Context, req media.ConcatRequest) error {
	p.concatCalls++
	files, err := media.ReadManifest(req.ManifestPath)
	if err != nil {
		return err
	}
	p.manifest = files
	var merged strings.Builder
	for _, name := range files {
		data, err := os.ReadFile(name)
		if err != nil {
			return err
		}
		merged.Write(data)
	}
	if p.concatErr != nil {
		if !p.failClean {
			_ = os.WriteFile(req.OutputPath, []byte("partial"), 0o644)
		}
		return p.concatErr
	}
	return os.WriteFile(req.OutputPath, []byte(merged.String()), 0o644)
}

func (p *fakeProcessor) Tempo(ctx context.Context, req media.TempoRequest) error {
	p.tempoCalls++
	p.lastTempoReq = req
	if p.tempoErr != nil {
		if !p.failClean {
			_ = os.WriteFile(req.OutputPath, []byte("partial"), 0o644)
		}
		return p.tempoErr
	}
	data, err := os.ReadFile(req.InputPath)
	if err != nil {
		return err
	}
	return os.WriteFile(req.OutputPath, data, 0o644)
}

// recorder collects observer events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Observe(_ context.Context, evt Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []State
	for _, evt := range r.events {
		if evt.Type == EventState {
			out = append(out, evt.State)
		}
	}
	return out
}

func (r *recorder) artifactIndexes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, evt := range r.events {
		if evt.Type == EventArtifact {
			out = append(out, evt.Artifact.Index)
		}
	}
	return out
}

func commandFailure(stderr string) error {
	return &tts.CommandError{Command: "gtts-cli", Err: errors.New("exit status 1"), Stderr: stderr}
}
