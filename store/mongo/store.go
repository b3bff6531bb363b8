// Package mongo provides a Store on MongoDB via Grove ORM.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/entitle/store"
)

// Collection name constants.
const (
	colKV = "entitle_kv"
)

// compile-time interface checks
var (
	_ store.Store             = (*Store)(nil)
	_ store.Migrator          = (*Store)(nil)
	_ store.CompareAndSwapper = (*Store)(nil)
)

type kvModel struct {
	grove.BaseModel `grove:"table:entitle_kv"`

	Key       string    `grove:"_id,pk"      bson:"_id"`
	Value     string    `grove:"value"       bson:"value"`
	CreatedAt time.Time `grove:"created_at"  bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"  bson:"updated_at"`
}

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for the entitle collection.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("entitle/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var m kvModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": key}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("entitle/mongo: get %s: %w", key, err)
	}
	return m.Value, true, nil
}

// Set implements store.Store.
func (s *Store) Set(ctx context.Context, key, value string) error {
	t := now()
	_, err := s.mdb.NewUpdate((*kvModel)(nil)).
		Filter(bson.M{"_id": key}).
		SetUpdate(bson.M{
			"$set":         bson.M{"value": value, "updated_at": t},
			"$setOnInsert": bson.M{"created_at": t},
		}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("entitle/mongo: set %s: %w", key, err)
	}
	return nil
}

// CompareAndSwap implements store.CompareAndSwapper. When old is empty the
// filter upserts, and a concurrent insert surfaces as a duplicate key error.
func (s *Store) CompareAndSwap(ctx context.Context, key, old, value string) (bool, error) {
	t := now()
	q := s.mdb.NewUpdate((*kvModel)(nil)).
		Filter(bson.M{"_id": key, "value": old}).
		SetUpdate(bson.M{
			"$set":         bson.M{"value": value, "updated_at": t},
			"$setOnInsert": bson.M{"created_at": t},
		})
	if old == "" {
		q = q.Upsert()
	}
	res, err := q.Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("entitle/mongo: compare-and-swap %s: %w", key, err)
	}
	if old == "" {
		return true, nil
	}
	return res.MatchedCount() > 0, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colKV: {
			{
				Keys:    bson.D{{Key: "updated_at", Value: -1}},
				Options: options.Index().SetName("entitle_kv_updated_at"),
			},
		},
	}
}

func now() time.Time {
	return time.Now().UTC()
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
