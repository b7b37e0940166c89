package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/justapithecus/maxreport/types"
)

// TableFromResults converts an inline JSON body into a table. Each element
// of the top-level "results" array becomes one row. Column order is the
// order keys were first seen; values keep their JSON form, with numbers
// as json.Number and strings untouched.
func TableFromResults(body []byte) (*types.Table, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, malformed("body", err)
	}

	var table *types.Table
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, malformed("body", err)
		}
		key, _ := tok.(string)
		if key != "results" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, malformed(key, err)
			}
			continue
		}
		table, err = decodeResults(dec)
		if err != nil {
			return nil, err
		}
	}

	if table == nil {
		return nil, fmt.Errorf("%w: missing results field", ErrMalformedResponse)
	}
	return table, nil
}

func decodeResults(dec *json.Decoder) (*types.Table, error) {
	table := types.NewTable()

	tok, err := dec.Token()
	if err != nil {
		return nil, malformed("results", err)
	}
	if tok == nil {
		return table, nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, fmt.Errorf("%w: results is not an array", ErrMalformedResponse)
	}

	seen := make(map[string]struct{})
	for i := 0; dec.More(); i++ {
		row, keys, err := decodeRow(dec)
		if err != nil {
			return nil, malformed(fmt.Sprintf("results[%d]", i), err)
		}
		for _, k := range keys {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				table.Columns = append(table.Columns, k)
			}
		}
		table.Rows = append(table.Rows, row)
	}

	if err := expectDelim(dec, ']'); err != nil {
		return nil, malformed("results", err)
	}
	return table, nil
}

func decodeRow(dec *json.Decoder) (types.Row, []string, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, nil, err
	}
	row := types.Row{}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, _ := tok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, nil, err
		}
		if _, dup := row[key]; !dup {
			keys = append(keys, key)
		}
		row[key] = v
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, nil, err
	}
	return row, keys, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func malformed(where string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, where, err)
}

// indirectBody is the user revenue endpoint's 200 response.
type indirectBody struct {
	URL string `json:"ad_revenue_report_url"`
}

// ReportURLFromBody extracts the CSV download URL from an indirect response.
func ReportURLFromBody(body []byte) (string, error) {
	var b indirectBody
	if err := json.Unmarshal(body, &b); err != nil {
		return "", malformed("body", err)
	}
	if b.URL == "" {
		return "", fmt.Errorf("%w: missing ad_revenue_report_url", ErrMalformedResponse)
	}
	return b.URL, nil
}

// TableFromCSV reads a header row followed by records. Every value is
// kept as the string the file contained. An empty input yields an
// empty table.
func TableFromCSV(r io.Reader) (*types.Table, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return types.NewTable(), nil
	}
	if err != nil {
		return nil, malformed("csv header", err)
	}
	if len(header) > 0 {
		header[0] = trimBOM(header[0])
	}

	table := types.NewTable(header...)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, malformed("csv", err)
		}
		row := make(types.Row, len(header))
		for i, col := range header {
			row[col] = rec[i]
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func trimBOM(s string) string {
	const bom = "\ufeff"
	if len(s) >= len(bom) && s[:len(bom)] == bom {
		return s[len(bom):]
	}
	return s
}
