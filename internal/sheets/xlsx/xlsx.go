// Package xlsx renders payoff timelines as Excel workbooks.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/xuri/excelize/v2"

	"winterstorm/internal/core"
	ports "winterstorm/internal/sheets"
)

var _ ports.TimelineExporter = (*Writer)(nil)

// maxSheetName is Excel's limit on worksheet name length.
const maxSheetName = 31

// Writer writes timelines to .xlsx files in Dir.
type Writer struct {
	Dir string
	// FileName is used when the timeline has no title.
	FileName string
}

// New returns a Writer that saves workbooks under dir.
func New(dir, fileName string) *Writer {
	if strings.TrimSpace(fileName) == "" {
		fileName = core.DefaultFileName
	}
	return &Writer{Dir: dir, FileName: fileName}
}

// ExportTimeline saves the workbook and returns its path.
func (w *Writer) ExportTimeline(ctx context.Context, t core.Timeline) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(w.Dir, w.fileName(t.Title))

	f, err := Build(t)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	return path, nil
}

// WriteTo streams the workbook for t to out.
func WriteTo(out io.Writer, t core.Timeline) error {
	f, err := Build(t)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Build lays the timeline out on a single sheet: the header row first, then
// one row per month. The caller must close the returned file.
func Build(t core.Timeline) (*excelize.File, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	sheet := SheetName(t.Sheet())

	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	for i, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			f.Close()
			return nil, err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	last, err := excelize.ColumnNumberToName(len(t.Rows[0]))
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := f.SetColWidth(sheet, "A", last, 14); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		XSplit:      1,
		YSplit:      1,
		TopLeftCell: "B2",
		ActivePane:  "bottomRight",
	}); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// SheetName strips characters Excel forbids in sheet names and truncates to
// 31 characters.
func SheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return -1
		}
		return r
	}, strings.TrimSpace(name))
	name = strings.Trim(name, "'")
	if r := []rune(name); len(r) > maxSheetName {
		name = string(r[:maxSheetName])
	}
	if name == "" {
		return core.DefaultSheetName
	}
	return name
}

func (w *Writer) fileName(title string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			return r
		case unicode.IsSpace(r):
			return '_'
		}
		return -1
	}, strings.TrimSpace(title))
	if slug == "" {
		return w.FileName
	}
	return slug + ".xlsx"
}

// ErrNoDir is returned by Validate when the writer has nowhere to save.
var ErrNoDir = errors.New("xlsx: export directory is required")

// Validate checks the writer configuration.
func (w *Writer) Validate() error {
	if strings.TrimSpace(w.Dir) == "" {
		return ErrNoDir
	}
	return nil
}
