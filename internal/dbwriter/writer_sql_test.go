//go:build sqltest
// +build sqltest

package dbwriter

import (
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-txdb"
	_ "github.com/lib/pq" // PostgreSQL driver
)

func init() {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		dsn = "user=test password=test dbname=test host=/var/run/postgresql sslmode=disable"
	}
	txdb.Register("txdb", "postgres", dsn)
}

// TestMigrations applies every up migration in order inside one rolled back transaction.
func TestMigrations(t *testing.T) {
	migrationsDir := "../../db/schema"

	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		t.Fatalf("failed to list migrations: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no migrations found")
	}
	sort.Strings(files)

	db, err := sql.Open("txdb", "migrations")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			t.Fatalf("failed to read migration file: %v", err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			t.Fatalf("migration %s failed: %v", filepath.Base(file), err)
		}
	}

	for _, table := range []string{"market_trades", "bot_orders", "portfolio_values", "pnl_summary", "pnl_reports"} {
		var n int
		err := db.QueryRow(`SELECT count(*) FROM information_schema.tables WHERE table_name = $1`, table).Scan(&n)
		if err != nil || n != 1 {
			t.Errorf("table %s missing after migrations (err=%v)", table, err)
		}
	}

	if _, err := db.Exec(`INSERT INTO bot_orders (time, pair, side, price, amount, trx_id, status, dry_run)
		VALUES (now(), 'HIVE/HBD', 'buy', 0.25, 10, 'abc', 'broadcast', false)`); err != nil {
		t.Errorf("insert into bot_orders failed: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO bot_orders (time, pair, side, price, amount, trx_id, status, dry_run)
		VALUES (now(), 'HIVE/HBD', 'hold', 0.25, 10, 'abc', 'broadcast', false)`); err == nil || !strings.Contains(err.Error(), "check") {
		t.Errorf("expected side check constraint violation, got %v", err)
	}

	if _, err := db.Exec(`INSERT INTO bot_orders (time, pair, side, price, amount, trx_id, status, dry_run)
		VALUES (now() + interval '1 minute', 'HIVE/HBD', 'buy', 0.99, 10, '', 'simulated', true)`); err != nil {
		t.Errorf("insert of simulated order failed: %v", err)
	}
	var lastBuy float64
	if err := db.QueryRow(`SELECT price FROM v_last_order_prices WHERE pair = 'HIVE/HBD' AND side = 'buy'`).Scan(&lastBuy); err != nil {
		t.Fatalf("query v_last_order_prices failed: %v", err)
	}
	if lastBuy != 0.25 {
		t.Errorf("v_last_order_prices buy = %v, want the live 0.25", lastBuy)
	}
}
