package database

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
)

var memoryDBSeq atomic.Int64

// OpenMemory opens a fresh, migrated in-memory SQLite database.
// Each call returns an isolated database.
func OpenMemory(ctx context.Context) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("file:memdb%d?mode=memory&cache=shared&_foreign_keys=on", memoryDBSeq.Add(1))
	db, err := Connect(ctx, TypeSQLite, dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, TypeSQLite); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
