// Package localstore is a SQLite-backed implementation of
// remotestore.LocalStore: the durable mutation queue and resume-metadata
// store the coordinator consults when it refills its write pipeline and
// when it reconnects.
package localstore

import (
	"database/sql"
	"embed"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/docsync/errors"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	sqliteJournalMode   = "WAL"
	sqliteBusyTimeoutMS = 5000
)

// Open opens (creating if needed) a SQLite database at path with the
// journal mode and busy timeout the coordinator's concurrent read/write
// pattern needs, and brings the schema up to date.
func Open(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create database directory: %s", dir)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open database at %s", path)
	}

	if _, err := db.Exec("PRAGMA journal_mode = " + sqliteJournalMode); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "enable %s journal mode for %s", sqliteJournalMode, path)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "enable foreign keys for %s", path)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = " + strconv.Itoa(sqliteBusyTimeoutMS)); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "set busy timeout for %s", path)
	}

	if err := migrate(db, log); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "migrate %s", path)
	}

	if log != nil {
		log.Infow("local mutation store opened", "path", path, "wal_mode", true)
	}
	return db, nil
}

// migrate applies every embedded migration not yet recorded in
// schema_migrations, in filename order, each inside its own transaction.
func migrate(db *sql.DB, log *zap.SugaredLogger) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)`); err != nil {
		return errors.Wrap(err, "create schema_migrations")
	}

	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return errors.Wrap(err, "read migrations")
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, filename := range files {
		version := strings.SplitN(filename, "_", 2)[0]

		var exists bool
		if err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", version).Scan(&exists); err != nil {
			return errors.Wrapf(err, "check migration %s", filename)
		}
		if exists {
			if log != nil {
				log.Debugw("skipping migration, already applied", "migration", filename)
			}
			continue
		}

		sqlBytes, err := migrations.ReadFile(filepath.Join("migrations", filename))
		if err != nil {
			return errors.Wrapf(err, "read %s", filename)
		}

		tx, err := db.Begin()
		if err != nil {
			return errors.Wrapf(err, "begin tx for %s", filename)
		}
		if _, err := tx.Exec(string(sqlBytes)); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "execute %s", filename)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "record %s", filename)
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit %s", filename)
		}
		if log != nil {
			log.Infow("applied migration", "migration", filename)
		}
	}
	return nil
}
