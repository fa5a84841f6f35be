package types

// Column names of the events table, in storage order.
const (
	ColumnID        = "id"
	ColumnTimestamp = "timestamp"
	ColumnEmail     = "email"
	ColumnCountry   = "country"
	ColumnIP        = "ip"
	ColumnURI       = "uri"
	ColumnAction    = "action"
	ColumnTags      = "tags"
	ColumnCount     = "count"
)

// EventColumns lists the columns every source file must provide.
// The optional count column is not part of it.
var EventColumns = []string{
	ColumnID,
	ColumnTimestamp,
	ColumnEmail,
	ColumnCountry,
	ColumnIP,
	ColumnURI,
	ColumnAction,
	ColumnTags,
}

// AllColumns returns the full events table column list, count last.
func AllColumns() []string {
	cols := make([]string, 0, len(EventColumns)+1)
	cols = append(cols, EventColumns...)
	return append(cols, ColumnCount)
}
