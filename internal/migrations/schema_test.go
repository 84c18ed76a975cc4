package migrations

import (
	"strings"
	"testing"
)

func TestInitMigrationContainsRequiredTablesAndIndexes(t *testing.T) {
	body, err := embeddedFS.ReadFile("sql/000001_init.up.sql")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	sql := string(body)
	requiredSnippets := []string{
		"CREATE SCHEMA IF NOT EXISTS neon_auth",
		`CREATE TABLE neon_auth."user"`,
		`"emailVerified" BOOLEAN`,
		`"updatedAt" TIMESTAMPTZ`,
		"CREATE TABLE countries",
		"CREATE TABLE cities",
		"CREATE TABLE profiles",
		"password_hash TEXT NOT NULL",
		"CREATE TABLE facilities",
		"CREATE TABLE photos",
		"CREATE TABLE bookings",
		"CREATE TABLE reviews",
		"CREATE UNIQUE INDEX idx_bookings_reference",
		"CREATE INDEX idx_facilities_listing",
		"CREATE INDEX idx_reviews_facility_created",
	}

	for _, snippet := range requiredSnippets {
		if !strings.Contains(sql, snippet) {
			t.Fatalf("migration missing required snippet: %s", snippet)
		}
	}
}

func TestInitDownDropsEveryTable(t *testing.T) {
	body, err := embeddedFS.ReadFile("sql/000001_init.down.sql")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	sql := string(body)
	for _, table := range []string{"reviews", "bookings", "photos", "facilities", "profiles", "cities", "countries", `neon_auth."user"`} {
		if !strings.Contains(sql, "DROP TABLE IF EXISTS "+table+";") {
			t.Fatalf("down migration does not drop %s", table)
		}
	}
	if strings.Index(sql, "DROP TABLE IF EXISTS bookings") > strings.Index(sql, "DROP TABLE IF EXISTS profiles") {
		t.Fatal("bookings must be dropped before profiles")
	}
}

func TestEmbeddedMigrationsLoad(t *testing.T) {
	migrations, err := Load(embeddedFS)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(migrations) == 0 || migrations[0].Version != 1 || migrations[0].Name != "init" {
		t.Fatalf("unexpected embedded migrations: %+v", migrations)
	}
}
