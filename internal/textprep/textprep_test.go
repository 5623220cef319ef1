package textprep

import (
	"os"
	"path/filepath"
	"testing"
)

func TestClean(t *testing.T) {
	cases := map[string]string{
		"# Title\n":                  " Title",
		"**bold** and _em_":          "bold and em",
		"> quoted `code`":            " quoted code",
		"line one.\r\nline two.":     "line one.line two.",
		"สวัสดีครับ. ทดสอบ!":         "สวัสดีครับ. ทดสอบ!",
		"":                           "",
		"no markup, just text? yes.": "no markup, just text? yes.",
		"###\n***\n___\n```\n>>>":     "",
	}
	for in, want := range cases {
		if got := Clean(in); got != want {
			t.Errorf("Clean(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.text")
	if err := os.WriteFile(path, []byte("# Heading\nHello *world*.\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != " HeadingHello world." {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestReadFileMissing(t *testing.T) {
	if _, err := ReadFile(filepath.Join(t.TempDir(), "nope.text")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
