// Package reconcile joins a master roster against collected form responses
// and produces the compliance tracker rows.
package reconcile

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Shailesh-Murmu/AutoMpp/internal/gateway"
)

// Response and roster column names.
const (
	ColumnEmail     = "Email"
	ColumnLocation  = "Location"
	ColumnDocuments = "Upload the Applicable Documents"
	ColumnTimestamp = "Timestamp"

	ColumnEmailID  = "Email ID"
	ColumnSPOC     = "SPOC"
	ColumnUploaded = "Uploaded"
)

// Uploaded column values.
const (
	StatusYes = "Yes"
	StatusNo  = "No"
)

// Key identifies a tracked entity after normalization.
type Key struct {
	Email    string
	Location string
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func NewKey(email, location string) Key {
	return Key{Email: normalize(email), Location: normalize(location)}
}

// RosterEntry is one authoritative roster row. Fields keep their original
// spelling for output; Key carries the normalized join key.
type RosterEntry struct {
	Email    string
	Location string
	SPOC     string
}

func (e RosterEntry) Key() Key {
	return NewKey(e.Email, e.Location)
}

type ResponseRecord struct {
	Timestamp string
	Email     string
	Location  string
	Documents string
}

type AggregatedResponse struct {
	Documents []string
	Timestamp string
}

type ComplianceRow = gateway.TrackerRow

// MissingColumnsError names the required columns a source lacks.
type MissingColumnsError struct {
	Source  string
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s is missing required columns: %s", e.Source, strings.Join(e.Columns, ", "))
}

// columnIndex maps each header to its first position. Later duplicates are
// dropped.
func columnIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, seen := index[h]; !seen {
			index[h] = i
		}
	}
	return index
}

func requireColumns(source string, index map[string]int, names ...string) error {
	var missing []string
	for _, name := range names {
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Source: source, Columns: missing}
	}
	return nil
}

// ParseRoster reads roster entries in file order.
func ParseRoster(t gateway.Table) ([]RosterEntry, error) {
	index := columnIndex(t.Header)
	if err := requireColumns("roster", index, ColumnEmailID, ColumnLocation, ColumnSPOC); err != nil {
		return nil, err
	}
	entries := make([]RosterEntry, 0, len(t.Rows))
	for _, row := range t.Rows {
		entries = append(entries, RosterEntry{
			Email:    gateway.Cell(row, index[ColumnEmailID]),
			Location: gateway.Cell(row, index[ColumnLocation]),
			SPOC:     gateway.Cell(row, index[ColumnSPOC]),
		})
	}
	return entries, nil
}

// ParseResponses reads response rows. Short rows read as blank in the
// missing cells. The timestamp column is "Timestamp" when present, else the
// first column.
func ParseResponses(t gateway.Table) ([]ResponseRecord, error) {
	if len(t.Header) == 0 {
		return nil, fmt.Errorf("response sheet has no header row")
	}
	index := columnIndex(t.Header)
	if err := requireColumns("response sheet", index, ColumnEmail, ColumnLocation, ColumnDocuments); err != nil {
		return nil, err
	}
	tsCol, ok := index[ColumnTimestamp]
	if !ok {
		tsCol = 0
	}
	records := make([]ResponseRecord, 0, len(t.Rows))
	for _, row := range t.Rows {
		records = append(records, ResponseRecord{
			Timestamp: gateway.Cell(row, tsCol),
			Email:     gateway.Cell(row, index[ColumnEmail]),
			Location:  gateway.Cell(row, index[ColumnLocation]),
			Documents: gateway.Cell(row, index[ColumnDocuments]),
		})
	}
	return records, nil
}

var documentSeparator = regexp.MustCompile(`[,\n]`)

// SplitDocuments flattens one upload cell into its trimmed, non-empty links.
func SplitDocuments(cell string) []string {
	var links []string
	for _, part := range documentSeparator.Split(cell, -1) {
		if part = strings.TrimSpace(part); part != "" {
			links = append(links, part)
		}
	}
	return links
}

// Aggregate groups records by normalized (email, location), concatenating
// document links in record order and keeping the latest timestamp. Records
// with a blank email are ignored.
func Aggregate(records []ResponseRecord) map[Key]AggregatedResponse {
	groups := make(map[Key]AggregatedResponse)
	for _, r := range records {
		key := NewKey(r.Email, r.Location)
		if key.Email == "" {
			continue
		}
		g, seen := groups[key]
		g.Documents = append(g.Documents, SplitDocuments(r.Documents)...)
		if !seen {
			g.Timestamp = r.Timestamp
		} else {
			g.Timestamp = LaterTimestamp(g.Timestamp, r.Timestamp)
		}
		groups[key] = g
	}
	return groups
}

var timestampLayouts = []string{
	"1/2/2006 15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// LaterTimestamp returns whichever of a and b is later. Values that do not
// both parse compare lexically.
func LaterTimestamp(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	ta, okA := parseTimestamp(a)
	tb, okB := parseTimestamp(b)
	if okA && okB {
		if tb.After(ta) {
			return b
		}
		return a
	}
	if b > a {
		return b
	}
	return a
}

// Expand emits the tracker rows in roster order. Each entry produces
// max(1, len(documents)) rows; only the first row of a group carries the
// sequence number, identity, status and timestamp.
func Expand(ctx context.Context, roster []RosterEntry, groups map[Key]AggregatedResponse) ([]ComplianceRow, error) {
	rows := make([]ComplianceRow, 0, len(roster))
	for i, entry := range roster {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows = append(rows, expandEntry(i+1, entry, groups[entry.Key()])...)
	}
	return rows, nil
}

func expandEntry(seq int, entry RosterEntry, agg AggregatedResponse) []ComplianceRow {
	if len(agg.Documents) == 0 {
		return []ComplianceRow{{
			Seq:      seq,
			Location: entry.Location,
			SPOC:     entry.SPOC,
			Email:    entry.Email,
			Uploaded: StatusNo,
		}}
	}
	rows := make([]ComplianceRow, len(agg.Documents))
	for i, doc := range agg.Documents {
		rows[i].Document = doc
	}
	rows[0].Seq = seq
	rows[0].Location = entry.Location
	rows[0].SPOC = entry.SPOC
	rows[0].Email = entry.Email
	rows[0].Uploaded = StatusYes
	rows[0].Timestamp = agg.Timestamp
	return rows
}
