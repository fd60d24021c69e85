package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// CSVExporter writes rosters for spreadsheet tools. Cells a spreadsheet would evaluate
// as a formula are prefixed with a single quote.
type CSVExporter struct{}

func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Write(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write streams data to w in header order. Missing columns render as empty cells.
func (e *CSVExporter) Write(w io.Writer, data Dataset) error {
	if len(data.Headers) == 0 {
		return errors.New("csv export needs at least one column")
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(data.Headers); err != nil {
		return fmt.Errorf("csv header: %w", err)
	}
	record := make([]string, len(data.Headers))
	for n, row := range data.Rows {
		for i, column := range data.Headers {
			record[i] = neutralize(row[column])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("csv row %d: %w", n+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func neutralize(cell string) string {
	if cell != "" && strings.ContainsRune("=+-@\t\r", rune(cell[0])) {
		return "'" + cell
	}
	return cell
}
