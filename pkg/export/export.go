// Package export renders tabular datasets as CSV or PDF documents.
package export

import (
	"fmt"
	"strings"
)

// Format names a supported output encoding.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// ParseFormat accepts "csv" or "pdf" in any case; empty defaults to CSV.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "text/csv; charset=utf-8"
}

// Dataset defines tabular export content. Title and Subtitle are only rendered by PDF.
type Dataset struct {
	Title    string
	Subtitle string
	Headers  []string
	Rows     []map[string]string
}

// Exporter renders a dataset.
type Exporter interface {
	Render(data Dataset) ([]byte, error)
}

// Render encodes data using the exporter registered for format.
func Render(format Format, data Dataset) ([]byte, error) {
	var exporter Exporter
	switch format {
	case FormatCSV:
		exporter = NewCSVExporter()
	case FormatPDF:
		exporter = NewPDFExporter()
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	return exporter.Render(data)
}
