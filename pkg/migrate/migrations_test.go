package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/storefront-affiliates/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks []string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestAffiliatesMigrationGuardsBalances(t *testing.T) {
	content := readMigration(t, "create_affiliates")
	assertContains(t, content, []string{
		"CREATE TABLE IF NOT EXISTS affiliates",
		"CONSTRAINT ux_affiliates_code UNIQUE (affiliate_code)",
		"CHECK (pending_commission >= 0)",
		"CHECK (total_commission >= 0)",
		"version BIGINT NOT NULL DEFAULT 0",
		"DROP TABLE IF EXISTS affiliates",
	})
}

func TestReferralsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_referrals")
	assertContains(t, content, []string{
		"CREATE TABLE IF NOT EXISTS referrals",
		"CONSTRAINT ux_referrals_order_id UNIQUE (order_id)",
		"REFERENCES affiliates(id)",
		"CHECK (status IN ('pending', 'approved', 'paid', 'cancelled'))",
		"commission_added_to_pending BOOLEAN NOT NULL DEFAULT FALSE",
		"commission_paid BOOLEAN NOT NULL DEFAULT FALSE",
		"DROP TABLE IF EXISTS referrals",
	})
}

func TestOrdersMigrationListsMirroredStatuses(t *testing.T) {
	content := readMigration(t, "create_orders")
	assertContains(t, content, []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"'completed'",
		"'refunded'",
		"DROP TABLE IF EXISTS orders",
	})
}

func TestLedgerAndOutboxMigrations(t *testing.T) {
	assertContains(t, readMigration(t, "create_commission_ledger_events"), []string{
		"CREATE TABLE IF NOT EXISTS commission_ledger_events",
		"clamped BOOLEAN NOT NULL DEFAULT FALSE",
		"CHECK (type IN ('accrued', 'paid', 'reversed', 'repaired'))",
	})
	assertContains(t, readMigration(t, "create_outbox_events"), []string{
		"CREATE TABLE IF NOT EXISTS outbox_events",
		"payload JSONB NOT NULL",
		"WHERE published_at IS NULL",
	})
}
