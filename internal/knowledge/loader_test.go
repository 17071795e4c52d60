package knowledge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/sensei/internal/extract"
)

func TestLoadDir_jsonListAndDefaults(t *testing.T) {
	dir := t.TempDir()
	data := `[{"title": "Big-O", "text": "  Big-O  bounds growth.  "}, {"id": "empty", "text": ""}]`
	if err := os.WriteFile(filepath.Join(dir, "complexity.json"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := LoadDir(dir, extract.NewExtractor(), zap.NewNop())
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1 (blank text dropped)", len(got))
	}
	if got[0].ID != "complexity.json#0" || got[0].Text != "Big-O bounds growth." {
		t.Errorf("snippet = %+v", got[0])
	}
}

func TestLoadDir_chunksLongDocuments(t *testing.T) {
	dir := t.TempDir()
	text := strings.Repeat("word ", chunkWords+50)
	if err := os.WriteFile(filepath.Join(dir, "handout.md"), []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := LoadDir(dir, extract.NewExtractor(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 chunks", len(got))
	}
	if got[0].Title != "handout (part 1)" || got[1].ID != "handout.md#1" {
		t.Errorf("chunks = %+v / %+v", got[0].Title, got[1].ID)
	}
	if got[0].Category != "" {
		t.Errorf("root-level file category = %q, want empty", got[0].Category)
	}
}

func TestLoadDir_skipsHiddenAndUnsupported(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(filepath.Join(dir, ".git", "notes.txt"), []byte("hidden"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "image.png"), []byte{0x89, 0x50}, 0o644)
	got, err := LoadDir(dir, extract.NewExtractor(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %d snippets, want 0", len(got))
	}
}

func TestLoadDir_missingDir(t *testing.T) {
	if _, err := LoadDir(filepath.Join(t.TempDir(), "nope"), extract.NewExtractor(), zap.NewNop()); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestIsKnowledgeFile(t *testing.T) {
	for path, want := range map[string]bool{
		"notes/cs1010.yaml": true,
		"faq.JSON":          true,
		"lecture.pdf":       true,
		"readme.md":         true,
		"photo.png":         false,
		"Makefile":          false,
	} {
		if got := IsKnowledgeFile(path); got != want {
			t.Errorf("IsKnowledgeFile(%q) = %v, want %v", path, got, want)
		}
	}
}
