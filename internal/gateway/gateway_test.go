package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Shailesh-Murmu/AutoMpp/internal/outcome"
)

type namedStorage struct {
	name string
}

func (s namedStorage) List(ctx context.Context, container string) ([]Entry, error) {
	return []Entry{{ID: s.name + ":" + container}}, nil
}

func (s namedStorage) Fetch(ctx context.Context, entry Entry, exportMIME string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(s.name)), nil
}

type namedTables struct{ name string }

func (t namedTables) Read(ctx context.Context, ref string) (Table, error) {
	return Table{Header: []string{t.name}}, nil
}

func TestStorageMuxRoutesByScheme(t *testing.T) {
	mux := StorageMux{Default: namedStorage{"drive"}, Object: namedStorage{"s3"}}

	entries, err := mux.List(context.Background(), "s3://bucket/reports")
	require.NoError(t, err)
	require.Equal(t, "s3:s3://bucket/reports", entries[0].ID)

	entries, err = mux.List(context.Background(), "folder123")
	require.NoError(t, err)
	require.Equal(t, "drive:folder123", entries[0].ID)

	rc, err := mux.Fetch(context.Background(), Entry{ID: "s3://bucket/reports/a.pdf"}, "")
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	require.Equal(t, "s3", string(body))
}

func TestStorageMuxWithoutObjectStore(t *testing.T) {
	mux := StorageMux{Default: namedStorage{"drive"}}
	_, err := mux.List(context.Background(), "s3://bucket")
	require.True(t, errors.Is(err, ErrUnsupported))
}

func TestTableMuxRoutesLocalFiles(t *testing.T) {
	mux := TableMux{Local: namedTables{"local"}, Remote: namedTables{"sheets"}}
	cases := []struct{ ref, want string }{
		{"/data/master.xlsx", "local"},
		{"contacts.CSV", "local"},
		{"https://docs.google.com/spreadsheets/d/abc/edit", "sheets"},
		{"1AbCdEf", "sheets"},
	}
	for _, tc := range cases {
		table, err := mux.Read(context.Background(), tc.ref)
		require.NoError(t, err, tc.ref)
		require.Equal(t, tc.want, table.Header[0], tc.ref)
	}
}

func TestTableColumnAndCell(t *testing.T) {
	table := Table{Header: []string{"Email ID", " Location ", "SPOC"}}
	require.Equal(t, 1, table.Column("Location"))
	require.Equal(t, -1, table.Column("Missing"))
	require.Equal(t, "x", Cell([]string{" x "}, 0))
	require.Equal(t, "", Cell([]string{"x"}, 3))
}

func TestClassify(t *testing.T) {
	cred := outcome.Credential(errors.New("revoked"))
	require.Same(t, cred, Classify("t", cred))
	require.ErrorIs(t, Classify("t", context.Canceled), context.Canceled)

	err := Classify("t", fmt.Errorf("open x: %w", ErrUnsupported))
	require.ErrorIs(t, err, outcome.ErrConfiguration)

	integrity := outcome.DataIntegrity("t", "bad row")
	require.ErrorIs(t, Classify("t", integrity), outcome.ErrDataIntegrity)

	err = Classify("t", errors.New("connection reset"))
	require.ErrorIs(t, err, outcome.ErrTransient)
	require.Contains(t, err.Error(), "connection reset")
}
