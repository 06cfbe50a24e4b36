// Package models defines core data structures for theses, queries, and retrieval results.
package models

import "strings"

// Placeholders used when a stored thesis has no title or author.
const (
	UntitledThesis = "No Title"
	UnknownAuthor  = "Unknown Author"
)

// ThesisDocument is a thesis as held by the external document store.
// FullText is optional and only populated when explicitly requested.
type ThesisDocument struct {
	ID       string `json:"id" yaml:"id"`
	Title    string `json:"title" yaml:"title"`
	Author   string `json:"author" yaml:"author"`
	Abstract string `json:"abstract" yaml:"abstract"`
	FullText string `json:"full_text,omitempty" yaml:"full_text,omitempty"`
	// FilePath points at the thesis file on disk; only used by the importer.
	FilePath string `json:"file_path,omitempty" yaml:"file_path,omitempty"`
}

// EmbeddingText returns the text to embed for d. With preferFullText the
// full text is used when non-blank, falling back to the abstract.
// Returns "" when neither has content.
func (d *ThesisDocument) EmbeddingText(preferFullText bool) string {
	if preferFullText {
		if ft := strings.TrimSpace(d.FullText); ft != "" {
			return ft
		}
	}
	return strings.TrimSpace(d.Abstract)
}

// Metadata returns the lightweight record stored alongside d's vector.
func (d *ThesisDocument) Metadata() MetadataRecord {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		title = UntitledThesis
	}
	author := strings.TrimSpace(d.Author)
	if author == "" {
		author = UnknownAuthor
	}
	return MetadataRecord{
		ID:       d.ID,
		Title:    title,
		Author:   author,
		Abstract: d.Abstract,
	}
}

// MetadataRecord describes the thesis at one index position.
type MetadataRecord struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	Abstract string `json:"abstract,omitempty"`
}
