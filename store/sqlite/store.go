// Package sqlite provides a Store on SQLite via Grove ORM. It suits
// single-device installs that already ship an embedded database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/entitle/store"
)

// compile-time interface checks
var (
	_ store.Store             = (*Store)(nil)
	_ store.Migrator          = (*Store)(nil)
	_ store.CompareAndSwapper = (*Store)(nil)
)

type kvModel struct {
	grove.BaseModel `grove:"table:entitle_kv"`

	Key       string    `grove:"key,pk"`
	Value     string    `grove:"value"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the key-value table.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("entitle/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("entitle/sqlite: migration failed: %w", err)
	}
	return nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	m := new(kvModel)
	err := s.sdb.NewSelect(m).
		Where("key = ?", key).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("entitle/sqlite: get %s: %w", key, err)
	}
	return m.Value, true, nil
}

// Set implements store.Store.
func (s *Store) Set(ctx context.Context, key, value string) error {
	t := now()
	m := &kvModel{Key: key, Value: value, CreatedAt: t, UpdatedAt: t}
	_, err := s.sdb.NewInsert(m).
		OnConflict("(key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("entitle/sqlite: set %s: %w", key, err)
	}
	return nil
}

// CompareAndSwap implements store.CompareAndSwapper with a conditional UPDATE,
// or a conflict-free INSERT when old is empty and the key is missing.
func (s *Store) CompareAndSwap(ctx context.Context, key, old, value string) (bool, error) {
	t := now()
	res, err := s.sdb.NewUpdate((*kvModel)(nil)).
		Set("value = ?", value).
		Set("updated_at = ?", t).
		Where("key = ?", key).
		Where("value = ?", old).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("entitle/sqlite: compare-and-swap %s: %w", key, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows > 0 {
		return true, nil
	}
	if old != "" {
		return false, nil
	}

	m := &kvModel{Key: key, Value: value, CreatedAt: t, UpdatedAt: t}
	res, err = s.sdb.NewInsert(m).
		OnConflict("(key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("entitle/sqlite: compare-and-swap insert %s: %w", key, err)
	}
	rows, err = res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func now() time.Time {
	return time.Now().UTC()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
