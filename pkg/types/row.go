// Package types provides core data types for eventload.
package types

// EventRow represents a single ingested row in the events table.
type EventRow struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Email     string `json:"email"`
	Country   string `json:"country"`
	IP        string `json:"ip"`
	URI       string `json:"uri"`
	Action    string `json:"action"`
	Tags      string `json:"tags"`

	// Count is the number of identical raw rows this row stands for.
	// Zero means the row was not aggregated and represents one raw line.
	Count int64 `json:"count,omitempty"`
}

// Aggregated reports whether the row carries a count.
func (r EventRow) Aggregated() bool {
	return r.Count > 0
}

// Weight returns how many raw rows this row represents.
func (r EventRow) Weight() int64 {
	if r.Count > 0 {
		return r.Count
	}
	return 1
}

// Values returns the non-count fields in EventColumns order.
func (r EventRow) Values() []string {
	return []string{r.ID, r.Timestamp, r.Email, r.Country, r.IP, r.URI, r.Action, r.Tags}
}
