package external

import (
	"context"
	"database/sql"

	"github.com/anantadwi13/coredns-record-manager/internal/domain"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type sqliteRecordRepository struct {
	db *sql.DB
}

// NewSqliteRecordRepository opens (or creates) the sqlite database at path
// and runs the schema migration.
func NewSqliteRecordRepository(ctx context.Context, path string) (domain.RecordRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	err = NewSqliteMigration(db).Migrate(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &sqliteRecordRepository{db: db}, nil
}

func (z *sqliteRecordRepository) Load(ctx context.Context) ([]*domain.Record, error) {
	rows, err := z.db.QueryContext(ctx, "SELECT fqdn, ip, domain FROM records ORDER BY position;")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.Record
	for rows.Next() {
		record := &domain.Record{}
		err := rows.Scan(&record.FQDN, &record.IP, &record.Domain)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Save replaces every row inside one transaction.
func (z *sqliteRecordRepository) Save(ctx context.Context, records []*domain.Record) (err error) {
	tx, err := z.db.BeginTx(ctx, nil)
	if err != nil {
		return
	}

	defer func() {
		err = z.finishTransaction(err, tx)
	}()

	_, err = tx.ExecContext(ctx, `DELETE FROM records;`)
	if err != nil {
		return
	}

	for i, record := range records {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO records(id, position, fqdn, ip, domain) VALUES(?, ?, ?, ?, ?);
		`, uuid.NewString(), i, record.FQDN, record.IP, record.Domain)
		if err != nil {
			return
		}
	}
	return
}

func (z *sqliteRecordRepository) Close() error {
	return z.db.Close()
}

func (z *sqliteRecordRepository) finishTransaction(err error, tx *sql.Tx) error {
	if err != nil {
		if rollbackError := tx.Rollback(); rollbackError != nil {
			return errors.Wrap(err, rollbackError.Error())
		}

		return err
	} else {
		if commitError := tx.Commit(); commitError != nil {
			return commitError
		}

		return nil
	}
}

type sqliteMigration struct {
	db *sql.DB
}

func NewSqliteMigration(db *sql.DB) domain.Migration {
	return &sqliteMigration{db: db}
}

func (m *sqliteMigration) Migrate(ctx context.Context) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS records (
		    id TEXT PRIMARY KEY,
		    position INTEGER NOT NULL,
		    fqdn TEXT NOT NULL UNIQUE,
		    ip TEXT NOT NULL,
		    domain TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS records_position ON records(position);
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	err = tx.Commit()
	if err != nil {
		tx.Rollback()
		return err
	}
	return nil
}
