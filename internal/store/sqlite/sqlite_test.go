package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/paul-bouzian/saycal/internal/store"
	"github.com/paul-bouzian/saycal/internal/store/storetest"
)

func makeSQLiteStore(t *testing.T) store.Store {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "saycal.db"))
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("sqlite migrate: %v", err)
	}
	return New(db)
}

func TestSQLiteStore_Compliance(t *testing.T) {
	storetest.Run(t, makeSQLiteStore)
}

func TestSQLiteStore_InMemory(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	defer func() { _ = db.Close() }()
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("sqlite migrate: %v", err)
	}
	s := New(db)
	if _, err := s.Subscriptions().Ensure(context.Background(), "u-mem"); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	hp, ok := s.(interface{ HealthPing(context.Context) error })
	if !ok || hp.HealthPing(context.Background()) != nil {
		t.Fatalf("sqlite store must answer health pings")
	}
}
