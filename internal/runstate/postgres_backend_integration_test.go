package runstate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"
)

func TestPostgresIntegrationBackendRoundTrip(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("AUTOMPP_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("set AUTOMPP_TEST_POSTGRES_DSN to run Postgres integration tests")
	}
	backend, err := NewPostgresBackend(dsn)
	if err != nil {
		t.Fatalf("new postgres backend: %v", err)
	}
	pg := backend.(*PostgresBackend)
	pg.tableName = fmt.Sprintf("autompp_state_it_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_ = pg.Close()
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return
		}
		defer db.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+postgresQuoteIdentifier(pg.tableName))
	})

	s := New()
	if err := s.Put(CategoryReconcile, "Q3", map[string]string{"last_master_hash": "abc"}); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := Save(backend, s); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := Load(backend)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	var rec map[string]string
	if _, err := loaded.Get(CategoryReconcile, "Q3", &rec); err != nil || rec["last_master_hash"] != "abc" {
		t.Fatalf("unexpected record %+v err=%v", rec, err)
	}
}
