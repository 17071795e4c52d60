package knowledge

import (
	"strings"
	"unicode"
)

// Chunk splits text into overlapping word windows of size words. Course handouts run to many
// pages, and one snippet per page range keeps retrieved context focused.
func Chunk(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if size <= 0 || len(words) <= size {
		return []string{strings.Join(words, " ")}
	}
	step := size - overlap
	if step <= 0 {
		step = 1
	}
	var chunks []string
	for i := 0; i < len(words); i += step {
		end := i + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
		if end >= len(words) {
			break
		}
	}
	return chunks
}

// Preprocess normalizes text for indexing (trim, collapse whitespace).
func Preprocess(text string) string {
	var b strings.Builder
	wasSpace := false
	for _, r := range strings.TrimSpace(text) {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
			continue
		}
		b.WriteRune(r)
		wasSpace = false
	}
	return b.String()
}
