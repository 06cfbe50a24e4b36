package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"
)

// odtContentPath is the main content part of an OpenDocument Text file.
const odtContentPath = "content.xml"

var (
	// odtBlock matches paragraphs and headings in document order.
	odtBlock = regexp.MustCompile(`(?s)<text:(p|h)(?:\s[^>]*)?>(.*?)</text:(?:p|h)>`)
	xmlTag   = regexp.MustCompile(`<[^>]+>`)
)

// extractODT returns the text of an .odt document, one line per paragraph or heading.
func extractODT(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract ODT: not a zip: %w", err)
	}
	contentXML, err := readZipEntry(zr, odtContentPath)
	if err != nil {
		return "", fmt.Errorf("extract ODT: %w", err)
	}
	if contentXML == nil {
		return "", fmt.Errorf("extract ODT: %s not found", odtContentPath)
	}
	var lines []string
	for _, m := range odtBlock.FindAllStringSubmatch(string(contentXML), -1) {
		// Inline spans and links are flattened.
		text := html.UnescapeString(xmlTag.ReplaceAllString(m[2], ""))
		if text = strings.TrimSpace(text); text != "" {
			lines = append(lines, text)
		}
	}
	return strings.Join(lines, "\n"), nil
}
