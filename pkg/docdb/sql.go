package docdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// sqliteBusyTimeoutMs is the time SQLite waits when the database is locked
// by another process. After this, operations return SQLITE_BUSY.
const sqliteBusyTimeoutMs = 10000

const metaTable = "_docdb_collections"

// openSqlite opens the database file and applies the connection pragmas.
func openSqlite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("path is empty")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	// One connection: per-connection PRAGMAs apply consistently and
	// data_version only moves for commits made by other connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	err = db.PingContext(ctx)
	if err != nil {
		closeErr := db.Close()
		if closeErr != nil {
			closeErr = fmt.Errorf("sqlite: close: %w", closeErr)
		}

		return nil, errors.Join(fmt.Errorf("sqlite: ping: %w", err), closeErr)
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		PRAGMA busy_timeout = %d;
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA temp_store = MEMORY;
	`, sqliteBusyTimeoutMs))
	if err != nil {
		closeErr := db.Close()
		if closeErr != nil {
			closeErr = fmt.Errorf("sqlite: close: %w", closeErr)
		}

		return nil, errors.Join(fmt.Errorf("sqlite: apply pragmas: %w", err), closeErr)
	}

	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+metaTable+` (
		name TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		fingerprint INTEGER NOT NULL,
		schema TEXT NOT NULL
	) WITHOUT ROWID`)
	if err != nil {
		closeErr := db.Close()
		if closeErr != nil {
			closeErr = fmt.Errorf("sqlite: close: %w", closeErr)
		}

		return nil, errors.Join(fmt.Errorf("sqlite: create meta table: %w", err), closeErr)
	}

	return db, nil
}

// queryDataVersion reads PRAGMA data_version. The value changes when another
// connection (usually another process) commits to the database file.
func queryDataVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var version int64

	err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("sqlite: data_version: %w", err)
	}

	return version, nil
}

func tableName(collection string) string {
	return "docs_" + collection
}

func createTableSQL(collection string) string {
	return `CREATE TABLE IF NOT EXISTS ` + tableName(collection) + ` (
		id TEXT PRIMARY KEY,
		data TEXT NOT NULL
	) WITHOUT ROWID`
}

// rollback is used in defer; the error after a commit is sql.ErrTxDone.
func rollback(tx *sql.Tx) {
	_ = tx.Rollback()
}
