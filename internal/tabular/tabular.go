// Package tabular reads CSV, TSV and XLSX exports into raw rows.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/KaramelBytes/trialfunnel-cli/internal/model"
)

// Options controls how a file is read.
type Options struct {
	// MaxRows limits data rows read; 0 means unlimited.
	MaxRows int
	// Delimiter for CSV. If 0, sniffed from the file extension.
	Delimiter rune
	// Sheet selects an XLSX sheet by name; empty uses SheetIndex.
	Sheet string
	// SheetIndex is 1-based; <= 0 means the first sheet.
	SheetIndex int
}

// DefaultOptions reads up to 500k rows from the first sheet.
func DefaultOptions() Options {
	return Options{MaxRows: 500000}
}

// ReadFile dispatches on extension: .xlsx/.xlsm go through excelize,
// everything else is treated as delimited text.
func ReadFile(path string, opt Options) ([]model.RawRow, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(path, opt)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open csv: %w", err)
		}
		defer f.Close()
		if opt.Delimiter == 0 {
			opt.Delimiter = sniffDelimiter(path)
		}
		rows, err := ReadCSV(f, opt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		return rows, nil
	}
}

// ReadCSV reads delimited text with a header row.
func ReadCSV(r io.Reader, opt Options) ([]model.RawRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	if opt.Delimiter != 0 {
		cr.Comma = opt.Delimiter
	}
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []model.RawRow{}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	header = cleanHeader(header)

	rows := []model.RawRow{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows)+2, err)
		}
		if opt.MaxRows > 0 && len(rows) >= opt.MaxRows {
			slog.Warn("row limit reached, ignoring the rest", "max_rows", opt.MaxRows)
			break
		}
		if row := toRow(header, rec); row != nil {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// ReadXLSX reads one worksheet; the first row is the header.
func ReadXLSX(path string, opt Options) ([]model.RawRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return []model.RawRow{}, nil
	}
	sheet := ""
	if opt.Sheet != "" {
		for _, s := range sheets {
			if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(opt.Sheet)) {
				sheet = s
				break
			}
		}
		if sheet == "" {
			return nil, fmt.Errorf("sheet '%s' not found in workbook '%s'.\nAvailable sheets: %s",
				opt.Sheet, filepath.Base(path), strings.Join(sheets, ", "))
		}
	} else {
		idx := opt.SheetIndex
		if idx <= 0 {
			idx = 1
		}
		if idx > len(sheets) {
			return nil, fmt.Errorf("sheet index %d out of range (workbook has %d sheets)", idx, len(sheets))
		}
		sheet = sheets[idx-1]
	}

	grid, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(grid) == 0 {
		return []model.RawRow{}, nil
	}
	header := cleanHeader(grid[0])
	rows := make([]model.RawRow, 0, len(grid)-1)
	for _, rec := range grid[1:] {
		if opt.MaxRows > 0 && len(rows) >= opt.MaxRows {
			slog.Warn("row limit reached, ignoring the rest", "sheet", sheet, "max_rows", opt.MaxRows)
			break
		}
		if row := toRow(header, rec); row != nil {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func sniffDelimiter(path string) rune {
	if strings.HasSuffix(strings.ToLower(path), ".tsv") {
		return '\t'
	}
	return ','
}

// cleanHeader trims labels and names blank columns so they never collide.
func cleanHeader(h []string) []string {
	out := make([]string, len(h))
	for i, s := range h {
		s = strings.TrimSpace(s)
		if s == "" {
			s = fmt.Sprintf("column_%d", i+1)
		}
		out[i] = s
	}
	return out
}

// toRow zips a record with the header. Fully blank records return nil.
func toRow(header, rec []string) model.RawRow {
	row := make(model.RawRow, len(header))
	blank := true
	for i, h := range header {
		v := ""
		if i < len(rec) {
			v = strings.TrimSpace(rec[i])
		}
		if v != "" {
			blank = false
		}
		if _, dup := row[h]; dup && v == "" {
			continue
		}
		row[h] = v
	}
	if blank {
		return nil
	}
	return row
}
