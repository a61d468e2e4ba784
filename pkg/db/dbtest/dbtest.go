// Package dbtest opens in-memory sqlite databases carrying the service schema.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Schema mirrors the goose migrations using sqlite types. Money columns are TEXT
// so decimals round-trip without float conversion.
var Schema = []string{
	`CREATE TABLE affiliates (
		id TEXT PRIMARY KEY,
		affiliate_code TEXT NOT NULL,
		full_name TEXT NOT NULL,
		email TEXT,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		commission_percentage TEXT NOT NULL DEFAULT '5',
		pending_commission TEXT NOT NULL DEFAULT '0',
		total_commission TEXT NOT NULL DEFAULT '0',
		version INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		CONSTRAINT ux_affiliates_code UNIQUE (affiliate_code)
	)`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'pending',
		total TEXT NOT NULL DEFAULT '0',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE referrals (
		id TEXT PRIMARY KEY,
		affiliate_id TEXT NOT NULL REFERENCES affiliates(id),
		order_id TEXT NOT NULL,
		order_total TEXT NOT NULL,
		commission_percentage TEXT NOT NULL,
		commission_amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		commission_added_to_pending BOOLEAN NOT NULL DEFAULT 0,
		commission_paid BOOLEAN NOT NULL DEFAULT 0,
		commission_reversed BOOLEAN NOT NULL DEFAULT 0,
		commission_reversed_at DATETIME,
		approved_at DATETIME,
		paid_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME,
		CONSTRAINT ux_referrals_order_id UNIQUE (order_id)
	)`,
	`CREATE TABLE commission_ledger_events (
		id TEXT PRIMARY KEY,
		referral_id TEXT,
		affiliate_id TEXT NOT NULL,
		type TEXT NOT NULL,
		from_status TEXT,
		to_status TEXT,
		pending_delta TEXT NOT NULL DEFAULT '0',
		total_delta TEXT NOT NULL DEFAULT '0',
		clamped BOOLEAN NOT NULL DEFAULT 0,
		actor_id TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
}

// Open returns a private in-memory database with Schema applied. The pool is
// capped at one connection, so callers must not query outside an open
// transaction while it is still running.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range Schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}
