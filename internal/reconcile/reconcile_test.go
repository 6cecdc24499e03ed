package reconcile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Shailesh-Murmu/AutoMpp/internal/gateway"
	"github.com/Shailesh-Murmu/AutoMpp/internal/outcome"
	"github.com/Shailesh-Murmu/AutoMpp/internal/runstate"
	"github.com/Shailesh-Murmu/AutoMpp/internal/taskdef"
)

type fakeTables struct {
	tables map[string]gateway.Table
	err    error
	reads  int
}

func (f *fakeTables) Read(ctx context.Context, ref string) (gateway.Table, error) {
	f.reads++
	if f.err != nil {
		return gateway.Table{}, f.err
	}
	t, ok := f.tables[ref]
	if !ok {
		return gateway.Table{}, errors.New("no such table " + ref)
	}
	return t, nil
}

type fakeWriter struct {
	writes int
	rows   []gateway.TrackerRow
	err    error
}

func (f *fakeWriter) WriteTracker(ctx context.Context, path string, rows []gateway.TrackerRow) error {
	if f.err != nil {
		return f.err
	}
	f.writes++
	f.rows = rows
	return nil
}

var responseHeader = []string{"Timestamp", "Email", "Location", "Upload the Applicable Documents"}

func fixture(t *testing.T) (taskdef.ReconcileTask, *fakeTables) {
	t.Helper()
	master := filepath.Join(t.TempDir(), "master.xlsx")
	require.NoError(t, os.WriteFile(master, []byte("roster v1"), 0o644))
	task := taskdef.ReconcileTask{
		Title:           "Compliance",
		ResponseSheetID: "sheet-1",
		MasterExcel:     master,
		ResultPath:      filepath.Join(t.TempDir(), "tracker.xlsx"),
	}
	tables := &fakeTables{tables: map[string]gateway.Table{
		master: {
			Header: []string{"Email ID", "Location", "SPOC"},
			Rows: [][]string{
				{"a@x.com", "siteA", "SPOC1"},
				{"b@x.com", "siteB", "SPOC2"},
			},
		},
		"sheet-1": {
			Header: responseHeader,
			Rows: [][]string{
				{"2024-03-01 09:00:00", "a@x.com", "siteA", "doc1,doc2"},
				{"2024-03-02 10:30:00", "A@X.com ", " SiteA", "doc3"},
			},
		},
	}}
	return task, tables
}

func fixedClock() gateway.Clock {
	return func() time.Time { return time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC) }
}

func TestReconcileScenario(t *testing.T) {
	task, tables := fixture(t)
	writer := &fakeWriter{}
	state := runstate.New()

	result := New(tables, writer, Options{Clock: fixedClock()}).Run(context.Background(), task, state, false)
	require.Equal(t, outcome.Success, result.Status, result.String())

	require.Equal(t, []gateway.TrackerRow{
		{Seq: 1, Location: "siteA", SPOC: "SPOC1", Email: "a@x.com", Document: "doc1", Uploaded: "Yes", Timestamp: "2024-03-02 10:30:00"},
		{Document: "doc2"},
		{Document: "doc3"},
		{Seq: 2, Location: "siteB", SPOC: "SPOC2", Email: "b@x.com", Uploaded: "No"},
	}, writer.rows)

	var record Record
	found, err := state.Get(runstate.CategoryReconcile, task.Title, &record)
	require.NoError(t, err)
	require.True(t, found)
	require.NotEmpty(t, record.LastMasterHash)
	require.NotEmpty(t, record.LastResponseDataHash)
	require.Equal(t, "2024-03-05T08:00:00Z", record.LastGenerated)
}

func TestReconcileIsIdempotent(t *testing.T) {
	task, tables := fixture(t)
	writer := &fakeWriter{}
	state := runstate.New()
	engine := New(tables, writer, Options{Clock: fixedClock()})

	engine.Run(context.Background(), task, state, false)
	before := state.Snapshot()

	result := engine.Run(context.Background(), task, state, false)
	require.Equal(t, outcome.Skipped, result.Status)
	require.Equal(t, 1, writer.writes)
	require.Equal(t, before, state.Snapshot())
}

func TestReconcileForceRegenerates(t *testing.T) {
	task, tables := fixture(t)
	writer := &fakeWriter{}
	state := runstate.New()
	engine := New(tables, writer, Options{})

	engine.Run(context.Background(), task, state, false)
	result := engine.Run(context.Background(), task, state, true)
	require.Equal(t, outcome.Success, result.Status)
	require.Equal(t, 2, writer.writes)
}

func TestReconcileDetectsSingleCellChange(t *testing.T) {
	task, tables := fixture(t)
	writer := &fakeWriter{}
	state := runstate.New()
	engine := New(tables, writer, Options{})
	engine.Run(context.Background(), task, state, false)

	sheet := tables.tables["sheet-1"]
	sheet.Rows[1] = []string{"2024-03-02 10:30:00", "A@X.com ", " SiteA", "doc4"}
	tables.tables["sheet-1"] = sheet

	result := engine.Run(context.Background(), task, state, false)
	require.Equal(t, outcome.Success, result.Status)
	require.Equal(t, 2, writer.writes)
	require.Equal(t, "doc4", writer.rows[2].Document)
}

func TestReconcileDetectsRosterFileChange(t *testing.T) {
	task, tables := fixture(t)
	writer := &fakeWriter{}
	state := runstate.New()
	engine := New(tables, writer, Options{})
	engine.Run(context.Background(), task, state, false)

	require.NoError(t, os.WriteFile(task.MasterExcel, []byte("roster v2"), 0o644))
	result := engine.Run(context.Background(), task, state, false)
	require.Equal(t, outcome.Success, result.Status)
	require.Equal(t, 2, writer.writes)
}

func TestReconcileMissingColumnLeavesStateUntouched(t *testing.T) {
	task, tables := fixture(t)
	tables.tables["sheet-1"] = gateway.Table{
		Header: []string{"Timestamp", "Email", "Location"},
		Rows:   [][]string{{"t", "a@x.com", "siteA"}},
	}
	writer := &fakeWriter{}
	state := runstate.New()

	result := New(tables, writer, Options{}).Run(context.Background(), task, state, false)
	require.Equal(t, outcome.Failed, result.Status)
	require.ErrorIs(t, result.Err, outcome.ErrConfiguration)
	require.Contains(t, result.Error, ColumnDocuments)
	require.Zero(t, writer.writes)
	_, ok := state.Raw(runstate.CategoryReconcile, task.Title)
	require.False(t, ok)
}

func TestReconcileMissingRosterColumn(t *testing.T) {
	task, tables := fixture(t)
	tables.tables[task.MasterExcel] = gateway.Table{Header: []string{"Email ID", "Location"}}
	writer := &fakeWriter{}

	result := New(tables, writer, Options{}).Run(context.Background(), task, runstate.New(), false)
	require.ErrorIs(t, result.Err, outcome.ErrConfiguration)
	require.Contains(t, result.Error, ColumnSPOC)
	require.Zero(t, writer.writes)
}

func TestReconcileMissingRosterFile(t *testing.T) {
	task, tables := fixture(t)
	require.NoError(t, os.Remove(task.MasterExcel))

	result := New(tables, &fakeWriter{}, Options{}).Run(context.Background(), task, runstate.New(), false)
	require.ErrorIs(t, result.Err, outcome.ErrConfiguration)
	require.Zero(t, tables.reads)
}

func TestReconcileWriteFailureKeepsState(t *testing.T) {
	task, tables := fixture(t)
	writer := &fakeWriter{err: errors.New("disk full")}
	state := runstate.New()

	result := New(tables, writer, Options{}).Run(context.Background(), task, state, false)
	require.Equal(t, outcome.Failed, result.Status)
	_, ok := state.Raw(runstate.CategoryReconcile, task.Title)
	require.False(t, ok)
}

func TestReconcileUnreachableSourceIsTransient(t *testing.T) {
	task, tables := fixture(t)
	tables.err = errors.New("connection reset")

	result := New(tables, &fakeWriter{}, Options{}).Run(context.Background(), task, runstate.New(), false)
	require.ErrorIs(t, result.Err, outcome.ErrTransient)
}

func TestReconcileCancelled(t *testing.T) {
	task, tables := fixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	writer := &fakeWriter{}

	result := New(tables, writer, Options{}).Run(ctx, task, runstate.New(), false)
	require.Equal(t, outcome.Cancelled, result.Status)
	require.Zero(t, writer.writes)
}

func TestNoResponseEntryGetsSingleNoRow(t *testing.T) {
	roster := []RosterEntry{{Email: "c@x.com", Location: "siteC", SPOC: "S"}}
	rows, err := Expand(context.Background(), roster, Aggregate(nil))
	require.NoError(t, err)
	require.Equal(t, []ComplianceRow{{Seq: 1, Location: "siteC", SPOC: "S", Email: "c@x.com", Uploaded: StatusNo}}, rows)
}

func TestResponseWithoutDocumentsCountsAsNo(t *testing.T) {
	roster := []RosterEntry{{Email: "a@x.com", Location: "siteA", SPOC: "S"}}
	groups := Aggregate([]ResponseRecord{{Timestamp: "t1", Email: "a@x.com", Location: "siteA", Documents: " , \n"}})
	rows, err := Expand(context.Background(), roster, groups)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, StatusNo, rows[0].Uploaded)
	require.Empty(t, rows[0].Timestamp)
}

func TestRowExpansionAndGroupingInvariants(t *testing.T) {
	roster := []RosterEntry{
		{Email: "a@x.com", Location: "l1", SPOC: "s1"},
		{Email: "b@x.com", Location: "l2", SPOC: "s2"},
		{Email: "c@x.com", Location: "l3", SPOC: "s3"},
	}
	records := []ResponseRecord{
		{Email: "a@x.com", Location: "l1", Documents: "1\n2\n3\n4"},
		{Email: "c@x.com", Location: "l3", Documents: "x"},
		{Email: "b@x.com", Location: "other", Documents: "ignored"},
		{Email: "", Location: "l2", Documents: "blank email"},
	}
	groups := Aggregate(records)
	rows, err := Expand(context.Background(), roster, groups)
	require.NoError(t, err)

	want := map[int]int{1: 4, 2: 1, 3: 1}
	counts := map[int]int{}
	current := 0
	for _, row := range rows {
		if row.Seq > 0 {
			current = row.Seq
			require.NotEmpty(t, row.Email)
			require.NotEmpty(t, row.Uploaded)
		} else {
			require.Empty(t, row.Email)
			require.Empty(t, row.SPOC)
			require.Empty(t, row.Location)
			require.Empty(t, row.Uploaded)
			require.Empty(t, row.Timestamp)
			require.NotEmpty(t, row.Document)
		}
		counts[current]++
	}
	require.Equal(t, want, counts)
}

func TestDuplicateResponseHeadersKeepFirst(t *testing.T) {
	records, err := ParseResponses(gateway.Table{
		Header: []string{"Timestamp", "Email", "Location", "Upload the Applicable Documents", "Email"},
		Rows:   [][]string{{"t1", "first@x.com", "l", "d", "second@x.com"}, {"t2"}},
	})
	require.NoError(t, err)
	require.Equal(t, "first@x.com", records[0].Email)
	require.Equal(t, ResponseRecord{Timestamp: "t2"}, records[1])
}

func TestTimestampColumnFallsBackToFirst(t *testing.T) {
	records, err := ParseResponses(gateway.Table{
		Header: []string{"Submitted", "Email", "Location", "Upload the Applicable Documents"},
		Rows:   [][]string{{"3/1/2024 9:00:00", "a@x.com", "l", "d"}},
	})
	require.NoError(t, err)
	require.Equal(t, "3/1/2024 9:00:00", records[0].Timestamp)
}

func TestLaterTimestamp(t *testing.T) {
	require.Equal(t, "3/10/2024 9:00:00", LaterTimestamp("3/9/2024 23:00:00", "3/10/2024 9:00:00"))
	require.Equal(t, "2024-03-02", LaterTimestamp("2024-03-02", "2024-03-01"))
	require.Equal(t, "b", LaterTimestamp("a", "b"))
	require.Equal(t, "t1", LaterTimestamp("", "t1"))
}

func TestSplitDocuments(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, SplitDocuments(" a ,b\n\nc,"))
	require.Nil(t, SplitDocuments(""))
}
