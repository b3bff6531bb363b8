// Package postgres provides a Store on PostgreSQL via Grove ORM. Several
// devices or service replicas can share one entitlement state through it.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
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

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("entitle/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("entitle/postgres: migration failed: %w", err)
	}
	return nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	m := new(kvModel)
	err := s.pg.NewSelect(m).
		Where("key = $1", key).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("entitle/postgres: get %s: %w", key, err)
	}
	return m.Value, true, nil
}

// Set implements store.Store.
func (s *Store) Set(ctx context.Context, key, value string) error {
	t := now()
	m := &kvModel{Key: key, Value: value, CreatedAt: t, UpdatedAt: t}
	_, err := s.pg.NewInsert(m).
		OnConflict("(key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("entitle/postgres: set %s: %w", key, err)
	}
	return nil
}

// CompareAndSwap implements store.CompareAndSwapper. The row-level lock taken
// by the conditional UPDATE serialises competing writers.
func (s *Store) CompareAndSwap(ctx context.Context, key, old, value string) (bool, error) {
	t := now()
	res, err := s.pg.NewUpdate((*kvModel)(nil)).
		Set("value = $1", value).
		Set("updated_at = $2", t).
		Where("key = $3", key).
		Where("value = $4", old).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("entitle/postgres: compare-and-swap %s: %w", key, err)
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
	res, err = s.pg.NewInsert(m).
		OnConflict("(key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("entitle/postgres: compare-and-swap insert %s: %w", key, err)
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
