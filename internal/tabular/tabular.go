// Package tabular parses delimited event logs into EventRows.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	elerrors "github.com/eventload/eventload/internal/errors"
	"github.com/eventload/eventload/pkg/types"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is a parsed file: a normalized header and its records.
type Table struct {
	// Header holds the column names lowercased and trimmed.
	Header  []string
	Records [][]string

	index map[string]int
}

// Parse reads comma-delimited UTF-8 text with a header row. The header must
// name every column in types.EventColumns; other columns are kept but never
// loaded.
func Parse(data []byte) (*Table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = 0

	header, err := reader.Read()
	if err == io.EOF {
		return nil, elerrors.NewParseError(elerrors.CodeParseError, "input is empty", errors.New("no header row"))
	}
	if err != nil {
		return nil, elerrors.NewParseError(elerrors.CodeParseError, "failed to read header", err)
	}

	t := &Table{
		Header: make([]string, len(header)),
		index:  make(map[string]int, len(header)),
	}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		t.Header[i] = name
		if _, dup := t.index[name]; !dup {
			t.index[name] = i
		}
	}

	var missing []string
	for _, col := range types.EventColumns {
		if _, ok := t.index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, elerrors.NewParseError(elerrors.CodeMissingColumn, "header is missing required columns",
			fmt.Errorf("missing %s", strings.Join(missing, ", "))).
			WithDetails(map[string]interface{}{"missing": missing, "header": t.Header})
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, elerrors.NewParseError(elerrors.CodeParseError, "malformed record", err)
		}
		t.Records = append(t.Records, record)
	}
	return t, nil
}

// HasColumn reports whether the header names col.
func (t *Table) HasColumn(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Rows converts the records into EventRows. A count column, when present,
// must hold a non-negative integer or be empty.
func (t *Table) Rows() ([]types.EventRow, error) {
	countIdx, hasCount := t.index[types.ColumnCount]

	rows := make([]types.EventRow, 0, len(t.Records))
	for i, rec := range t.Records {
		get := func(col string) string { return rec[t.index[col]] }
		row := types.EventRow{
			ID:        get(types.ColumnID),
			Timestamp: get(types.ColumnTimestamp),
			Email:     get(types.ColumnEmail),
			Country:   get(types.ColumnCountry),
			IP:        get(types.ColumnIP),
			URI:       get(types.ColumnURI),
			Action:    get(types.ColumnAction),
			Tags:      get(types.ColumnTags),
		}
		if hasCount {
			raw := strings.TrimSpace(rec[countIdx])
			if raw != "" {
				n, err := strconv.ParseInt(raw, 10, 64)
				if err != nil || n < 0 {
					if err == nil {
						err = fmt.Errorf("negative count %d", n)
					}
					return nil, elerrors.NewParseError(elerrors.CodeParseError, "invalid count", err).
						WithDetails(map[string]interface{}{"record": i + 1, "value": raw})
				}
				row.Count = n
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ParseRows is Parse followed by Rows.
func ParseRows(data []byte) ([]types.EventRow, error) {
	t, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return t.Rows()
}
