package pipeline

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRunCloseRemovesScratch(t *testing.T) {
	root := filepath.Join(t.TempDir(), "tts_temp")
	run, err := NewRun(root, "run-1")
	if err != nil {
		t.Fatalf("new run: %v", err)
	}
	for _, name := range []string{"chunk_0.txt", "chunk_0.mp3", "list.txt"} {
		if err := os.WriteFile(run.Path(name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// Owned but never written.
	run.Path("chunk_1.mp3")
	if run.Pending() != 4 {
		t.Fatalf("expected 4 pending files, got %d", run.Pending())
	}
	if err := run.Release(filepath.Join(run.Dir, "chunk_0.txt")); err != nil {
		t.Fatalf("release: %v", err)
	}
	if run.Pending() != 3 {
		t.Fatalf("expected 3 pending files, got %d", run.Pending())
	}

	if err := run.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := run.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Fatalf("expected created root to be removed, stat err=%v", err)
	}
}

func TestRunKeepsExistingRoot(t *testing.T) {
	root := t.TempDir()
	run, err := NewRun(root, "run-2")
	if err != nil {
		t.Fatalf("new run: %v", err)
	}
	if err := os.WriteFile(run.Path("list.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := run.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(run.Dir); !os.IsNotExist(err) {
		t.Fatalf("expected run dir removed, stat err=%v", err)
	}
	if _, err := os.Stat(root); err != nil {
		t.Fatalf("pre-existing root should remain: %v", err)
	}
}

func TestRunRegisterEnforcesOrder(t *testing.T) {
	run, err := NewRun(t.TempDir(), "run-3")
	if err != nil {
		t.Fatal(err)
	}
	defer run.Close()
	if err := run.register(Artifact{Index: 1}); err == nil {
		t.Fatal("expected out-of-order registration to fail")
	}
	if err := run.register(Artifact{Index: 0, Path: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := run.register(Artifact{Index: 1, Path: "b"}); err != nil {
		t.Fatal(err)
	}
	if paths := run.ArtifactPaths(); len(paths) != 2 || paths[0] != "a" || paths[1] != "b" {
		t.Fatalf("unexpected paths %v", paths)
	}
}

func TestNewRunRequiresID(t *testing.T) {
	if _, err := NewRun(t.TempDir(), ""); err == nil {
		t.Fatal("expected error for empty id")
	}
}
