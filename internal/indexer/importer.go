package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/thesislens/internal/extract"
	"github.com/hyperjump/thesislens/internal/fileid"
	"github.com/hyperjump/thesislens/internal/models"
	"github.com/hyperjump/thesislens/internal/storage"
)

// ImportStats summarizes one import run.
type ImportStats struct {
	Imported      int
	Extracted     int
	ExtractFailed int
}

// Importer loads a thesis list file into a writable store, filling full text
// from each thesis file when one is referenced.
type Importer struct {
	writer    storage.DocumentWriter
	extractor *extract.Extractor
	logger    *zap.Logger
}

// ImportOption configures an Importer.
type ImportOption func(*Importer)

// WithImportLogger sets the logger for import progress.
func WithImportLogger(l *zap.Logger) ImportOption {
	return func(im *Importer) {
		if l != nil {
			im.logger = l
		}
	}
}

// NewImporter creates an Importer. extractor may be nil, in which case file
// paths are stored but no full text is extracted.
func NewImporter(writer storage.DocumentWriter, extractor *extract.Extractor, opts ...ImportOption) *Importer {
	im := &Importer{writer: writer, extractor: extractor, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// ParseThesisList decodes a JSON (.json) or YAML (.yaml, .yml) list of theses.
func ParseThesisList(data []byte, ext string) ([]*models.ThesisDocument, error) {
	var docs []*models.ThesisDocument
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("parse thesis list: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("parse thesis list: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported thesis list format %q (supported: .json, .yaml, .yml)", ext)
	}
	return docs, nil
}

// ImportFile reads the list at listPath and upserts every thesis in list order.
// Relative file paths in the list resolve against the list's directory. A file
// that cannot be extracted is logged and imported without full text.
func (im *Importer) ImportFile(ctx context.Context, listPath string) (ImportStats, error) {
	var stats ImportStats
	data, err := os.ReadFile(listPath)
	if err != nil {
		return stats, fmt.Errorf("read thesis list: %w", err)
	}
	docs, err := ParseThesisList(data, filepath.Ext(listPath))
	if err != nil {
		return stats, err
	}
	baseDir := filepath.Dir(listPath)

	for i, doc := range docs {
		if doc == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if doc.FilePath != "" && !filepath.IsAbs(doc.FilePath) {
			doc.FilePath = filepath.Join(baseDir, doc.FilePath)
		}
		if doc.ID == "" {
			doc.ID = generateID(doc)
		}
		if doc.FilePath != "" && doc.FullText == "" && im.extractor != nil {
			text, err := im.extractor.Extract(doc.FilePath)
			if err != nil {
				stats.ExtractFailed++
				im.logger.Warn("full text extraction failed",
					zap.Int("entry", i),
					zap.String("id", doc.ID),
					zap.String("path", doc.FilePath),
					zap.Error(err))
			} else {
				doc.FullText = Preprocess(text)
				stats.Extracted++
			}
		}
		if err := im.writer.UpsertDocument(ctx, doc); err != nil {
			return stats, fmt.Errorf("import entry %d (%s): %w", i, doc.ID, err)
		}
		stats.Imported++
		im.logger.Debug("thesis imported", zap.String("id", doc.ID), zap.String("title", doc.Title))
	}
	return stats, nil
}

// generateID derives a stable id from the thesis file when there is one.
func generateID(doc *models.ThesisDocument) string {
	if doc.FilePath != "" {
		return fileid.ThesisID(doc.FilePath)
	}
	return uuid.NewString()
}
