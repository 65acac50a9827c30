// Package db opens the SQLite file that backs the audit node's event store, migrates the
// audit_events schema and keeps the audit_event_statuses lookup table in sync with the
// statuses the node knows.
package db

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/pushchain/push-audit-node/auditNode/store"
)

const (
	// InMemorySQLiteDSN opens an ephemeral database that lives as long as its connection.
	InMemorySQLiteDSN = ":memory:"

	// fileDSNParams turns on WAL so readers such as `pauditd events` do not block the writer.
	fileDSNParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&mode=rwc"

	dirPerm = 0o750
)

// DB is an open event database.
type DB struct {
	client *gorm.DB
	path   string // empty for in-memory databases
}

// OpenFileDB opens <dir>/<filename>, creating dir when needed. With migrateSchema the
// tables are created or altered and the status lookup rows refreshed.
func OpenFileDB(dir, filename string, migrateSchema bool) (*DB, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, errors.Wrap(err, "failed to prepare database path")
	}
	path := filepath.Join(dir, filename)

	d, err := open(path+fileDSNParams, migrateSchema)
	if err != nil {
		return nil, err
	}
	d.path = path
	return d, nil
}

// OpenInMemoryDB opens a database that disappears on Close. Tests use it.
func OpenInMemoryDB(migrateSchema bool) (*DB, error) {
	return open(InMemorySQLiteDSN, migrateSchema)
}

func open(dsn string, migrateSchema bool) (*DB, error) {
	client, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open SQLite database")
	}

	sqlDB, err := client.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get underlying sql.DB")
	}
	// A single connection keeps :memory: alive and serializes access to the file.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if migrateSchema {
		if err := migrate(client); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}
	return &DB{client: client}, nil
}

// migrate creates the tables and upserts one row per known status, so a renamed status
// is picked up on the next start.
func migrate(client *gorm.DB) error {
	if err := client.AutoMigrate(&store.AuditEventStatus{}, &store.AuditEvent{}); err != nil {
		return errors.Wrap(err, "failed to auto-migrate database schema")
	}
	err := client.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"name"}),
	}).Create(&store.Statuses).Error
	if err != nil {
		return errors.Wrap(err, "failed to seed audit event statuses")
	}
	return nil
}

// Client returns the gorm handle for queries.
func (d *DB) Client() *gorm.DB {
	return d.client
}

// Path is the database file, or "" for an in-memory database.
func (d *DB) Path() string {
	return d.path
}

// Close closes the connection.
func (d *DB) Close() error {
	sqlDB, err := d.client.DB()
	if err != nil {
		return errors.Wrap(err, "failed to retrieve native sql.DB")
	}
	return errors.Wrap(sqlDB.Close(), "failed to close database connection")
}
