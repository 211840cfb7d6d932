// Package timecode extracts validated cut instructions from the rows of a
// time-code spreadsheet.
package timecode

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cutmassively/cutm/internal/naming"
	"github.com/cutmassively/cutm/internal/timing"
)

// SelectedValue is the lower-cased selector cell text that marks a row for cutting.
const SelectedValue = "true"

var (
	ErrColumnNotFound = errors.New("column not found")
	ErrHeaderRow      = errors.New("header row out of range")
)

// TimeCode is one cut instruction. Start and End are canonical HH:MM:SS.
type TimeCode struct {
	Row   int    `json:"row"`
	Start string `json:"start"`
	End   string `json:"end"`
	Name  string `json:"name"`
}

// Bounds returns Start and End in seconds. Both fields are FormatTime
// output, which ParseTime always accepts, so no error is returned.
func (tc TimeCode) Bounds() (start, end int) {
	start, _ = timing.ParseTime(tc.Start)
	end, _ = timing.ParseTime(tc.End)
	return start, end
}

// Duration returns the clip length in seconds.
func (tc TimeCode) Duration() int {
	start, end := tc.Bounds()
	return end - start
}

// TabColumns holds the header labels of the four columns the extractor reads.
type TabColumns struct {
	Selector string `json:"slice" toml:"slice"`
	Start    string `json:"start" toml:"start"`
	End      string `json:"end" toml:"end"`
	Name     string `json:"name" toml:"name"`
}

type columnIndex struct {
	selector, start, end, name int
}

// Extractor turns raw sheet values into TimeCodes.
type Extractor struct {
	columns TabColumns
	logger  *slog.Logger
}

func NewExtractor(columns TabColumns, logger *slog.Logger) *Extractor {
	return &Extractor{columns: columns, logger: logger}
}

// LoadTable splits all sheet values into the header (1-based headRow) and
// the data rows that follow the first nHeadRows rows.
func LoadTable(values [][]string, headRow, nHeadRows int) ([]string, [][]string, error) {
	if headRow < 1 || headRow > len(values) {
		return nil, nil, fmt.Errorf("%w: row %d of %d", ErrHeaderRow, headRow, len(values))
	}
	if nHeadRows < 0 {
		nHeadRows = 0
	}
	if nHeadRows > len(values) {
		nHeadRows = len(values)
	}
	return values[headRow-1], values[nHeadRows:], nil
}

// ExtractTable is LoadTable followed by Extract.
func (e *Extractor) ExtractTable(values [][]string, headRow, nHeadRows int) ([]TimeCode, error) {
	header, rows, err := LoadTable(values, headRow, nHeadRows)
	if err != nil {
		return nil, err
	}
	return e.Extract(header, rows, nHeadRows)
}

// Extract validates the selected rows and returns them in sheet order.
// dataOffset is the number of sheet rows preceding rows[0]. Unselected or
// malformed rows are skipped, never reported as errors; only an unknown
// column label fails the extraction.
func (e *Extractor) Extract(header []string, rows [][]string, dataOffset int) ([]TimeCode, error) {
	idx, err := e.resolve(header)
	if err != nil {
		return nil, err
	}

	var codes []TimeCode
	for i, row := range rows {
		rowNum := dataOffset + i + 1

		if !strings.EqualFold(cell(row, idx.selector), SelectedValue) {
			e.drop(rowNum, "unselected")
			continue
		}

		start, end := cell(row, idx.start), cell(row, idx.end)
		if !timing.IsValidTimeFormat(start) {
			e.drop(rowNum, "invalid start time", "start", start)
			continue
		}
		if !timing.IsValidTimeFormat(end) {
			e.drop(rowNum, "invalid end time", "end", end)
			continue
		}

		s, err := timing.ParseTime(start)
		if err != nil {
			e.drop(rowNum, "unparsable start time", "start", start)
			continue
		}
		en, err := timing.ParseTime(end)
		if err != nil {
			e.drop(rowNum, "unparsable end time", "end", end)
			continue
		}
		if en-s <= 0 {
			e.drop(rowNum, "non-positive duration", "start", start, "end", end)
			continue
		}

		codes = append(codes, TimeCode{
			Row:   rowNum,
			Start: timing.FormatTime(s),
			End:   timing.FormatTime(en),
			Name:  naming.AsVideoName(cell(row, idx.name)),
		})
	}

	if e.logger != nil {
		e.logger.Info("time codes extracted", "rows", len(rows), "selected", len(codes))
	}
	return codes, nil
}

func (e *Extractor) resolve(header []string) (columnIndex, error) {
	cleaned := naming.CleanWhitespace(header)
	if e.logger != nil {
		e.logger.Debug("table header", "header", cleaned, "columns", e.columns)
	}

	find := func(label string) (int, error) {
		want := naming.CleanWhitespace([]string{label})[0]
		for i, h := range cleaned {
			if h == want {
				return i, nil
			}
		}
		return -1, fmt.Errorf("%w: %q", ErrColumnNotFound, label)
	}

	var idx columnIndex
	var err error
	if idx.selector, err = find(e.columns.Selector); err != nil {
		return idx, err
	}
	if idx.start, err = find(e.columns.Start); err != nil {
		return idx, err
	}
	if idx.end, err = find(e.columns.End); err != nil {
		return idx, err
	}
	if idx.name, err = find(e.columns.Name); err != nil {
		return idx, err
	}
	return idx, nil
}

func (e *Extractor) drop(row int, reason string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Debug("row skipped", append([]any{"row", row, "reason", reason}, args...)...)
}

// cell returns "" for cells past the end of a short row; the Sheets API
// trims trailing empty cells.
func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
