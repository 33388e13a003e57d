// Package automigrate applies pending database migrations on startup.
package automigrate

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Run applies every unapplied NNN_name.up.sql file in migrationsDir, in
// version order. The schema_migrations table is shared with the migrate
// CLI, so inserts adapt to whether its dirty column exists.
func Run(db *sql.DB, migrationsDir string) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = true
	}

	pending, err := pendingMigrations(migrationsDir, applied)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		log.Printf("database up to date (%d migrations applied)", len(applied))
		return nil
	}

	hasDirty, err := hasDirtyColumn(db)
	if err != nil {
		return err
	}
	insertVersion := "INSERT INTO schema_migrations (version) VALUES ($1)"
	if hasDirty {
		insertVersion = "INSERT INTO schema_migrations (version, dirty) VALUES ($1, false)"
	}

	log.Printf("applying %d pending migration(s)", len(pending))
	for _, m := range pending {
		sqlBytes, err := os.ReadFile(filepath.Join(migrationsDir, m.name))
		if err != nil {
			return fmt.Errorf("read %s: %w", m.name, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", m.name, err)
		}

		if _, err := tx.Exec(string(sqlBytes)); err != nil {
			tx.Rollback()
			// Objects created outside this runner show up as "already
			// exists"; record the version so it is not retried forever.
			errStr := err.Error()
			if strings.Contains(errStr, "already exists") || strings.Contains(errStr, "duplicate key") {
				log.Printf("skipping already-applied migration %d", m.version)
				db.Exec("INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING", m.version)
				continue
			}
			return fmt.Errorf("apply %s: %w", m.name, err)
		}

		if _, err := tx.Exec(insertVersion, m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record %s: %w", m.name, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", m.name, err)
		}

		log.Printf("applied migration %d (%s)", m.version, m.name)
	}

	log.Printf("migrations complete (%d new, %d total)", len(pending), len(applied)+len(pending))
	return nil
}

type migration struct {
	name    string
	version int
}

func pendingMigrations(migrationsDir string, applied map[int]bool) ([]migration, error) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var pending []migration
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		parts := strings.SplitN(name, "_", 2)
		ver, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		if !applied[ver] {
			pending = append(pending, migration{name: name, version: ver})
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].version < pending[j].version })
	return pending, nil
}

func hasDirtyColumn(db *sql.DB) (bool, error) {
	var exists bool
	err := db.QueryRow(`SELECT EXISTS (
		SELECT 1 FROM information_schema.columns
		WHERE table_name = 'schema_migrations' AND column_name = 'dirty'
	)`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("inspect schema_migrations: %w", err)
	}
	return exists, nil
}
