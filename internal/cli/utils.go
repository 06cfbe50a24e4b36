// Package cli formats thesislens query results for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/thesislens/internal/models"
	"github.com/hyperjump/thesislens/pkg/utils"
)

// OutputFormat is the format for result output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one line per result.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const (
	abstractPreviewRunes = 200
	compactTitleWords    = 12
)

// ParseOutputFormat validates s as an output format. "" means text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return OutputText, nil
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (supported: text, compact, json)", s)
	}
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for i, hit := range response.Results {
			fmt.Fprintf(w, "%d\t%.4f\t%s\t%s\n", i+1, hit.RelevanceScore, hit.ID, TruncateWords(displayTitle(hit.Title), compactTitleWords))
		}
		return nil
	default:
		fmt.Fprintf(w, "\nFound %d results for %q in %dms (lower distance is closer)\n\n",
			len(response.Results), response.Query, response.QueryTime)
		for i, hit := range response.Results {
			writeDivider(w)
			fmt.Fprintf(w, "Rank: %d | Distance: %.4f\n", i+1, hit.RelevanceScore)
			fmt.Fprintf(w, "ID: %s\n", hit.ID)
			fmt.Fprintf(w, "Title: %s\n", displayTitle(hit.Title))
			fmt.Fprintf(w, "Author: %s\n\n", displayAuthor(hit.Author))
		}
		return nil
	}
}

// WriteRecommendations writes recommendations to w in the given format.
func WriteRecommendations(w io.Writer, response *models.RecommendResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for i, rec := range response.Recommendations {
			fmt.Fprintf(w, "%d\t%.4f\t%s\t%s\n", i+1, rec.SimilarityScore, rec.ID, TruncateWords(displayTitle(rec.Title), compactTitleWords))
		}
		return nil
	default:
		fmt.Fprintf(w, "\n%d theses similar to %s (%dms)\n\n",
			len(response.Recommendations), response.ThesisID, response.QueryTime)
		for i, rec := range response.Recommendations {
			writeDivider(w)
			fmt.Fprintf(w, "Rank: %d | Distance: %.4f\n", i+1, rec.SimilarityScore)
			fmt.Fprintf(w, "ID: %s\n", rec.ID)
			fmt.Fprintf(w, "Title: %s\n", displayTitle(rec.Title))
			fmt.Fprintf(w, "Author: %s\n", displayAuthor(rec.Author))
			if rec.Abstract != "" {
				fmt.Fprintf(w, "\n%s\n", utils.Truncate(rec.Abstract, abstractPreviewRunes))
			}
			fmt.Fprintln(w)
		}
		return nil
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeDivider(w io.Writer) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
}

func displayTitle(title string) string {
	return utils.FirstNonEmpty(title, models.UntitledThesis)
}

func displayAuthor(author string) string {
	return utils.FirstNonEmpty(author, models.UnknownAuthor)
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
