package services

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/models"
)

const exportTimeLayout = "20060102-150405.000000"

// ResultExporter writes validation previews as CSV files under one directory.
type ResultExporter struct {
	dir string
}

// NewResultExporter creates an exporter rooted at dir.
func NewResultExporter(dir string) *ResultExporter {
	return &ResultExporter{dir: dir}
}

// Export writes {dir}/{session}/{timestamp}.csv and returns the path relative to dir.
func (e *ResultExporter) Export(sessionID string, v *models.SQLValidateResult, at time.Time) (string, error) {
	rel := filepath.Join(safeSegment(sessionID), at.UTC().Format(exportTimeLayout)+".csv")
	path := filepath.Join(e.dir, rel)

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(v.Columns); err != nil {
		return "", fmt.Errorf("write export header: %w", err)
	}
	record := make([]string, len(v.Columns))
	for _, row := range v.Result {
		for i, col := range v.Columns {
			record[i] = cellText(row[col])
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("write export row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush export: %w", err)
	}
	return filepath.ToSlash(rel), nil
}

func cellText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}

// safeSegment keeps a session id usable as a single path element.
func safeSegment(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
