package fetcher

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/IshaanNene/homestalk/internal/types"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseCSV reads a bulk export. The first non-blank line is the header.
// Rows shorter than the header are kept; missing cells read as blank.
// Rows longer than the header are a format error.
func ParseCSV(data []byte) (*types.RawTable, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return &types.RawTable{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}
	if len(header) == 0 || (len(header) == 1 && header[0] == "") {
		return nil, errors.New("empty header row")
	}

	table := &types.RawTable{Columns: header}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(table.Rows)+1, err)
		}
		if len(rec) > len(header) {
			line, _ := r.FieldPos(0)
			return nil, fmt.Errorf("line %d: %d fields, header has %d", line, len(rec), len(header))
		}
		table.Rows = append(table.Rows, rec)
	}
	return table, nil
}
