package types

// Row is one record keyed by column name. Values are kept as the service
// returned them: json.Number or string for inline reports, string for CSV.
type Row map[string]any

// Table is an ordered sequence of rows with the column order observed
// while reading them.
type Table struct {
	Columns []string `json:"columns" msgpack:"columns"`
	Rows    []Row    `json:"rows" msgpack:"rows"`
}

// NewTable returns an empty table with the given columns.
func NewTable(columns ...string) *Table {
	return &Table{Columns: columns, Rows: []Row{}}
}

// Len returns the number of rows. A nil table has none.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool { return t.Len() == 0 }

// Append adds other's rows, extending Columns with any unseen names.
func (t *Table) Append(other *Table) {
	if other == nil {
		return
	}
	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		seen[c] = struct{}{}
	}
	for _, c := range other.Columns {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			t.Columns = append(t.Columns, c)
		}
	}
	t.Rows = append(t.Rows, other.Rows...)
}

// Page is the result of one paginated round trip.
type Page struct {
	Table  *Table `json:"table" msgpack:"table"`
	Offset int    `json:"offset" msgpack:"offset"`
	Size   int    `json:"size" msgpack:"size"`
}

// Count returns the number of rows the page returned.
func (p *Page) Count() int { return p.Table.Len() }

// Last reports whether the page ends the sequence: it came back short.
func (p *Page) Last() bool { return p.Count() < p.Size }
