// Package sqlitedb opens a migrated in-memory store for tests.
package sqlitedb

import (
	"fmt"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"rcv-cert-ledger/internal/adapter/repository/gormrepo"
)

var seq atomic.Int64

// Open returns a private shared-cache in-memory database with all tables
// migrated. A single connection serialises transactions the way row locks do.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:rcvtest%d?mode=memory&cache=shared", seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := gormrepo.Migrate(db); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return db
}
