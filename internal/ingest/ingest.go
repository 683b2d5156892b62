// Package ingest parses bulk transaction files (CSV or XLSX) into raw
// tables. Ministry exports carry a multi-line preamble before the header
// row and often arrive EUC-KR encoded; both are handled here.
package ingest

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/korean"
)

// Table is a raw tabular dataset: a header row plus records. No typing or
// normalization has happened yet.
type Table struct {
	Header []string
	Rows   [][]string
}

// Options configures parsing.
type Options struct {
	SkipRows int // preamble lines before the header row (default 15 for ministry CSV exports)
}

// DefaultSkipRows matches the preamble length of ministry transaction exports.
const DefaultSkipRows = 15

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadFile parses a transaction file, dispatching on extension.
func ReadFile(path string, opts Options) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(path, opts)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ReadCSV(f, opts)
	}
}

// ReadCSV parses CSV bytes, decoding EUC-KR when the input is not valid
// UTF-8, skipping the preamble, and treating the first remaining row as the
// header. Ragged records are tolerated.
func ReadCSV(r io.Reader, opts Options) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read input")
	}
	raw = decodeKorean(raw)

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.FieldsPerRecord = -1 // allow variable fields
	reader.LazyQuotes = true

	var (
		table   Table
		skipped int
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "ingest: read csv row")
		}
		if skipped < opts.SkipRows {
			skipped++
			continue
		}
		if table.Header == nil {
			table.Header = record
			continue
		}
		table.Rows = append(table.Rows, record)
	}

	if table.Header == nil {
		return nil, eris.New("ingest: no header row after preamble")
	}
	zap.L().Debug("csv parsed",
		zap.Int("columns", len(table.Header)),
		zap.Int("rows", len(table.Rows)),
	)
	return &table, nil
}

// ReadXLSX parses the first sheet of an XLSX file with the same preamble
// handling as ReadCSV.
func ReadXLSX(path string, opts Options) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("ingest: xlsx has no sheets")
	}

	var table Table
	for i, row := range f.Sheets[0].Rows {
		if i < opts.SkipRows {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		if table.Header == nil {
			table.Header = cells
			continue
		}
		table.Rows = append(table.Rows, cells)
	}

	if table.Header == nil {
		return nil, eris.New("ingest: no header row after preamble")
	}
	return &table, nil
}

// decodeKorean strips a UTF-8 BOM and transcodes EUC-KR input. Valid UTF-8
// passes through untouched.
func decodeKorean(raw []byte) []byte {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if utf8.Valid(raw) {
		return raw
	}
	decoded, err := korean.EUCKR.NewDecoder().Bytes(raw)
	if err != nil {
		zap.L().Warn("euc-kr decode failed, using raw bytes", zap.Error(err))
		return raw
	}
	return decoded
}
