package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	docxDefaultBody  = "word/document.xml"
	docxContentTypes = "[Content_Types].xml"
	docxMainType     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

var (
	// wtTag matches <w:t>text</w:t> with any attributes.
	wtTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	// overrideTag matches one Override element of [Content_Types].xml.
	overrideTag  = regexp.MustCompile(`<Override[^>]*/?>`)
	partNameAttr = regexp.MustCompile(`PartName="([^"]+)"`)
)

// extractDOCX reads every <w:t> run of the main document part. Paragraph elements in real
// documents carry attributes, so runs are matched directly instead of whole paragraphs.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	bodyPath := docxDefaultBody
	if ct, ok := files[docxContentTypes]; ok {
		if data, err := readZipFile(ct); err == nil {
			if p := mainPartName(string(data)); p != "" {
				bodyPath = p
			}
		}
	}
	body, ok := files[bodyPath]
	if !ok {
		return "", fmt.Errorf("extract DOCX: %s not found", bodyPath)
	}
	xml, err := readZipFile(body)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: read %s: %w", bodyPath, err)
	}

	runs := wtTag.FindAllStringSubmatch(string(xml), -1)
	parts := make([]string, 0, len(runs))
	for _, r := range runs {
		if s := strings.TrimSpace(r[1]); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " "), nil
}

func mainPartName(contentTypes string) string {
	for _, o := range overrideTag.FindAllString(contentTypes, -1) {
		if !strings.Contains(o, `ContentType="`+docxMainType+`"`) {
			continue
		}
		if m := partNameAttr.FindStringSubmatch(o); len(m) > 1 {
			return strings.TrimPrefix(m[1], "/")
		}
	}
	return ""
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
