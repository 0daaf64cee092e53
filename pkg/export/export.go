// Package export renders tabular roster data into user-facing files.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Dataset is an ordered table. Rows shorter than Headers are padded with
// empty cells.
type Dataset struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// Renderer encodes a Dataset into a file format.
type Renderer interface {
	Render(data Dataset) ([]byte, error)
}

// Formats lists the file extensions ForPath accepts.
var Formats = []string{".csv", ".pdf", ".xlsx"}

// ForPath picks a renderer from the file extension of path.
func ForPath(path string) (Renderer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return NewCSVRenderer(), nil
	case ".pdf":
		return NewPDFRenderer(), nil
	case ".xlsx":
		return NewXLSXRenderer(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", filepath.Ext(path))
	}
}

// WriteFile renders data with the renderer matching path and writes it there.
func WriteFile(path string, data Dataset) error {
	renderer, err := ForPath(path)
	if err != nil {
		return err
	}
	body, err := renderer.Render(data)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("prepare export directory: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

func (d Dataset) record(i int) []string {
	record := make([]string, len(d.Headers))
	copy(record, d.Rows[i])
	return record
}
