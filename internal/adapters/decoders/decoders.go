// Package decoders turns uploaded files into the text and rows extraction
// works on. Spreadsheets are read with excelize; everything else is treated
// as text, with a Windows-1252 fallback for legacy bank exports. Files that
// are neither are handed on as binary for the AI fallback.
package decoders

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"github.com/eshaffer321/contribution-reconciler/internal/application/reconcile"
)

// ErrEmptyFile is returned for zero-length input
var ErrEmptyFile = errors.New("empty file")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode converts raw file content into a reconcile.File. The file name's
// extension picks the decoder.
func Decode(name string, data []byte) (reconcile.File, error) {
	if len(data) == 0 {
		return reconcile.File{}, fmt.Errorf("%w: %s", ErrEmptyFile, name)
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		rows, err := SpreadsheetRows(data)
		if err != nil {
			return reconcile.File{}, fmt.Errorf("decode %s: %w", name, err)
		}
		return reconcile.File{Name: name, Rows: rows, Text: rowsToText(rows)}, nil
	case ".pdf", ".xls", ".png", ".jpg", ".jpeg":
		return reconcile.File{Name: name, RawBinary: data}, nil
	}

	if isBinary(data) {
		return reconcile.File{Name: name, RawBinary: data}, nil
	}
	return reconcile.File{Name: name, Text: Text(data)}, nil
}

// SpreadsheetRows returns the cell text of the first sheet that has any.
func SpreadsheetRows(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", sheet, err)
		}
		rows = trimRows(rows)
		if len(rows) > 0 {
			return rows, nil
		}
	}
	return nil, nil
}

// Text decodes file bytes as UTF-8, falling back to Windows-1252 when the
// content is not valid UTF-8.
func Text(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data)
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "�")
	}
	return string(decoded)
}

// trimRows drops fully blank rows and trailing empty cells.
func trimRows(rows [][]string) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		end := len(row)
		for end > 0 && strings.TrimSpace(row[end-1]) == "" {
			end--
		}
		if end == 0 {
			continue
		}
		out = append(out, row[:end])
	}
	return out
}

func rowsToText(rows [][]string) string {
	lines := make([]string, len(rows))
	for i, row := range rows {
		lines[i] = strings.Join(row, ";")
	}
	return strings.Join(lines, "\n")
}

// isBinary treats NUL bytes in the first block as a binary signature.
func isBinary(data []byte) bool {
	head := data
	if len(head) > 8000 {
		head = head[:8000]
	}
	return bytes.IndexByte(head, 0) >= 0
}
