// Package sheet reads recipient lists from spreadsheets.
package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupported is returned for files that are neither xlsx nor csv.
var ErrUnsupported = errors.New("sheet: unsupported file type")

// zipMagic starts every OOXML workbook.
var zipMagic = []byte("PK\x03\x04")

// Rows returns the cells of the first worksheet. The format is chosen by
// extension and, when that is missing or unknown, by content sniffing.
func Rows(name string, data []byte) ([][]string, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return xlsxRows(data)
	case ".csv", ".txt":
		return csvRows(data)
	}
	if bytes.HasPrefix(data, zipMagic) {
		return xlsxRows(data)
	}
	if len(data) > 0 && isText(data) {
		return csvRows(data)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, name)
}

func xlsxRows(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("sheet: open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("sheet: workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("sheet: read rows: %w", err)
	}
	return rows, nil
}

func csvRows(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	// Semicolon-separated exports are common where the comma is the decimal mark.
	if firstLine, _, _ := bytes.Cut(data, []byte("\n")); bytes.Count(firstLine, []byte(";")) > bytes.Count(firstLine, []byte(",")) {
		r.Comma = ';'
	}

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("sheet: read csv: %w", err)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// Recipients extracts addresses from the first column, skipping the header
// row. Cells are trimmed; only values containing "@" are kept.
func Recipients(rows [][]string) []string {
	var out []string
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		v := strings.TrimSpace(row[0])
		if strings.Contains(v, "@") {
			out = append(out, v)
		}
	}
	return out
}

func isText(data []byte) bool {
	sample := data
	if len(sample) > 512 {
		sample = sample[:512]
	}
	return !bytes.ContainsRune(sample, 0)
}
