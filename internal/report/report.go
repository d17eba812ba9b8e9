// Package report renders crawl reports for terminals and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"linkcrawler/pkg/types"
)

// Supported output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Write renders r to w in the requested format.
func Write(w io.Writer, r *types.Report, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		return WriteText(w, r)
	case FormatJSON:
		return WriteJSON(w, r)
	default:
		return fmt.Errorf("unsupported report format %q", format)
	}
}

// WriteText prints the header, both totals and one "label -> url" line per
// collected link. Links are expected to be sorted already.
func WriteText(w io.Writer, r *types.Report) error {
	var b strings.Builder
	b.WriteString("--- Crawling Results ---\n")
	fmt.Fprintf(&b, "Total pages visited: %d\n", r.VisitedCount())
	fmt.Fprintf(&b, "Total links found: %d\n", r.LinkCount())
	if r != nil {
		for _, link := range r.Links {
			b.WriteString(link.String())
			b.WriteByte('\n')
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r *types.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
