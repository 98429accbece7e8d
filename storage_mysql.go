// storage_mysql.go: MySQL backend for plugin state
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package microkernel

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const defaultStateTable = "plugin_state"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// MySQLStorage stores plugin state in a single key/value table.
type MySQLStorage struct {
	db    *sql.DB
	table string
}

// NewMySQLStorage opens the database, tunes the pool and creates the state
// table when missing.
func NewMySQLStorage(ctx context.Context, config MySQLStorageConfig) (*MySQLStorage, error) {
	if strings.TrimSpace(config.DSN) == "" {
		return nil, NewConfigValidationError("mysql dsn is required")
	}

	db, err := sql.Open("mysql", config.DSN)
	if err != nil {
		return nil, NewStorageUnavailableError(StorageBackendMySQL, err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(10 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, NewStorageUnavailableError(StorageBackendMySQL, err)
	}

	store, err := NewMySQLStorageWithDB(ctx, db, config.Table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewMySQLStorageWithDB uses an already opened database.
func NewMySQLStorageWithDB(ctx context.Context, db *sql.DB, table string) (*MySQLStorage, error) {
	if table == "" {
		table = defaultStateTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, NewConfigValidationError("invalid mysql table name: " + table)
	}

	store := &MySQLStorage{db: db, table: table}
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *MySQLStorage) initSchema(ctx context.Context) error {
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
        state_key VARCHAR(255) NOT NULL PRIMARY KEY,
        state_value MEDIUMBLOB NOT NULL,
        updated_at BIGINT NOT NULL
)`, s.table)

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return NewStorageOperationError("init_schema", s.table, err)
	}
	return nil
}

// Get implements Storage.
func (s *MySQLStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query := fmt.Sprintf(`SELECT state_value FROM %s WHERE state_key = ?`, s.table)

	var value []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, NewStorageOperationError("get", key, err)
	}
	return value, true, nil
}

// Set implements Storage.
func (s *MySQLStorage) Set(ctx context.Context, key string, value []byte) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (state_key, state_value, updated_at) VALUES (?, ?, ?)
        ON DUPLICATE KEY UPDATE state_value = VALUES(state_value), updated_at = VALUES(updated_at)`, s.table)

	if _, err := s.db.ExecContext(ctx, stmt, key, value, time.Now().Unix()); err != nil {
		return NewStorageOperationError("set", key, err)
	}
	return nil
}

// Delete implements Storage.
func (s *MySQLStorage) Delete(ctx context.Context, key string) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE state_key = ?`, s.table)
	if _, err := s.db.ExecContext(ctx, stmt, key); err != nil {
		return NewStorageOperationError("delete", key, err)
	}
	return nil
}

// Keys implements Storage.
func (s *MySQLStorage) Keys(ctx context.Context, prefix string) ([]string, error) {
	query := fmt.Sprintf(`SELECT state_key FROM %s WHERE state_key LIKE ? ESCAPE '\\' ORDER BY state_key`, s.table)

	rows, err := s.db.QueryContext(ctx, query, escapeLike(prefix)+"%")
	if err != nil {
		return nil, NewStorageOperationError("keys", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, NewStorageOperationError("keys", prefix, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageOperationError("keys", prefix, err)
	}
	return keys, nil
}

// Close implements Storage.
func (s *MySQLStorage) Close() error {
	return s.db.Close()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
