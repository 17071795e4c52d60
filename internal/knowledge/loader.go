package knowledge

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/sensei/internal/extract"
	"github.com/hyperjump/sensei/internal/models"
)

const (
	chunkWords   = 200
	chunkOverlap = 30
)

// snippetFile is the on-disk shape of a YAML or JSON snippet list. A bare list is accepted too.
type snippetFile struct {
	Category string                    `yaml:"category"`
	Snippets []models.KnowledgeSnippet `yaml:"snippets"`
}

// IsSnippetFile reports whether path is a structured snippet list.
func IsSnippetFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// IsKnowledgeFile reports whether LoadDir would read path.
func IsKnowledgeFile(path string) bool {
	return IsSnippetFile(path) || extract.Supported(filepath.Ext(path))
}

// LoadDir reads every snippet file and supported document under dir, in lexical path order.
// Documents become one snippet per chunk: the title is the file name and the category is the
// parent directory. Unreadable documents are logged and skipped; malformed snippet files fail
// the load so a typo in curated content is not silently ignored.
func LoadDir(dir string, extractor *extract.Extractor, logger *zap.Logger) ([]models.KnowledgeSnippet, error) {
	if dir == "" {
		return nil, nil
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("knowledge directory: %w", err)
	}
	var out []models.KnowledgeSnippet
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(dir, path)
		rel = filepath.ToSlash(rel)
		switch {
		case IsSnippetFile(path):
			snippets, err := loadSnippetFile(path, rel)
			if err != nil {
				return err
			}
			out = append(out, snippets...)
		case extract.Supported(filepath.Ext(path)):
			text, err := extractor.Extract(path)
			if err != nil {
				logger.Warn("skipping knowledge document", zap.String("path", path), zap.Error(err))
				return nil
			}
			out = append(out, documentSnippets(rel, text)...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func loadSnippetFile(path, rel string) ([]models.KnowledgeSnippet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	// YAML is a superset of JSON, so one decoder handles both.
	var file snippetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		var list []models.KnowledgeSnippet
		if listErr := yaml.Unmarshal(data, &list); listErr != nil {
			return nil, fmt.Errorf("parse %s: %w", rel, err)
		}
		file.Snippets = list
	}
	out := make([]models.KnowledgeSnippet, 0, len(file.Snippets))
	for i, s := range file.Snippets {
		s.Text = Preprocess(s.Text)
		if s.Text == "" {
			continue
		}
		if s.ID == "" {
			s.ID = fmt.Sprintf("%s#%d", rel, i)
		}
		if s.Category == "" {
			s.Category = file.Category
		}
		out = append(out, s)
	}
	return out, nil
}

func documentSnippets(rel, text string) []models.KnowledgeSnippet {
	title := strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))
	category := filepath.Base(filepath.Dir(rel))
	if category == "." {
		category = ""
	}
	chunks := Chunk(Preprocess(text), chunkWords, chunkOverlap)
	out := make([]models.KnowledgeSnippet, len(chunks))
	for i, c := range chunks {
		t := title
		if len(chunks) > 1 {
			t = fmt.Sprintf("%s (part %d)", title, i+1)
		}
		out[i] = models.KnowledgeSnippet{
			ID:       fmt.Sprintf("%s#%d", rel, i),
			Title:    t,
			Category: category,
			Text:     c,
		}
	}
	return out
}
