package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"realtor_scraper/models"
)

const (
	defaultSheet    = "Sheet1"
	postalColumn    = "Postal Code"
	partitionSuffix = "_by_postal"
)

var ErrNoPostalGroups = errors.New("no rows with an M1-M9 postal prefix")

// SpreadsheetName builds "<prefix><MMDD>_<City>.xlsx".
func SpreadsheetName(prefix, city string, now time.Time) string {
	return fmt.Sprintf("%s%02d%02d_%s.xlsx", prefix, int(now.Month()), now.Day(), capitalize(city))
}

// WriteSpreadsheet writes the records to a dated workbook in dir and returns
// its path. Rows that are exact duplicates of an earlier row are dropped.
func WriteSpreadsheet(records []models.ListingRecord, city, dir, prefix string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, r.Row())
	}
	rows = DedupeRows(rows)

	f := excelize.NewFile()
	defer f.Close()

	if err := writeSheet(f, defaultSheet, models.Columns, rows); err != nil {
		return "", err
	}

	path := filepath.Join(dir, SpreadsheetName(prefix, city, now))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	return path, nil
}

// ReadSpreadsheet returns the header and data rows of the first sheet. Rows
// are padded to the header width.
func ReadSpreadsheet(path string) ([]string, [][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("%s has no sheets", path)
	}
	return readSheet(f, sheets[0])
}

// PartitionByPostalPrefix splits an exported workbook into one sheet per
// postal prefix M1..M9 and saves it next to the source as
// "<stem>_by_postal.xlsx". Rows outside those prefixes are left out.
func PartitionByPostalPrefix(path string) (string, error) {
	header, rows, err := ReadSpreadsheet(path)
	if err != nil {
		return "", err
	}

	col := -1
	for i, name := range header {
		if name == postalColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return "", fmt.Errorf("%s: no %q column", path, postalColumn)
	}

	groups := GroupByPostalPrefix(rows, col)
	if len(groups) == 0 {
		return "", ErrNoPostalGroups
	}

	f := excelize.NewFile()
	defer f.Close()

	for _, g := range groups {
		if _, err := f.NewSheet(g.Prefix); err != nil {
			return "", fmt.Errorf("create sheet %s: %w", g.Prefix, err)
		}
		if err := writeSheet(f, g.Prefix, header, g.Rows); err != nil {
			return "", err
		}
	}
	if err := f.DeleteSheet(defaultSheet); err != nil {
		return "", fmt.Errorf("remove default sheet: %w", err)
	}
	f.SetActiveSheet(0)

	out := PartitionPath(path)
	if err := f.SaveAs(out); err != nil {
		return "", fmt.Errorf("save %s: %w", out, err)
	}
	return out, nil
}

// PartitionPath is the output path used by PartitionByPostalPrefix.
func PartitionPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + partitionSuffix + ".xlsx"
}

type PostalGroup struct {
	Prefix string
	Rows   [][]string
}

// GroupByPostalPrefix buckets rows by M1..M9, in prefix order, skipping empty
// buckets.
func GroupByPostalPrefix(rows [][]string, col int) []PostalGroup {
	var groups []PostalGroup
	for digit := 1; digit <= 9; digit++ {
		prefix := fmt.Sprintf("M%d", digit)
		var matched [][]string
		for _, row := range rows {
			if col < len(row) && strings.HasPrefix(row[col], prefix) {
				matched = append(matched, row)
			}
		}
		if len(matched) > 0 {
			groups = append(groups, PostalGroup{Prefix: prefix, Rows: matched})
		}
	}
	return groups
}

// DedupeRows drops rows equal to an earlier row, keeping first occurrences.
func DedupeRows(rows [][]string) [][]string {
	seen := make(map[string]struct{}, len(rows))
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		key := strings.Join(row, "\x1f")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, row)
	}
	return out
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]string) error {
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	for i, row := range rows {
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, rowNum int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, rowNum, err)
	}
	return nil
}

func readSheet(f *excelize.File, sheet string) ([]string, [][]string, error) {
	all, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(all) == 0 {
		return nil, nil, nil
	}

	header := all[0]
	rows := make([][]string, 0, len(all)-1)
	for _, row := range all[1:] {
		padded := make([]string, len(header))
		copy(padded, row)
		rows = append(rows, padded)
	}
	return header, rows, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
	return string(runes)
}
