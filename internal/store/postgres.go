package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/DoyleJ11/weatherboard/pkg/types"
)

// record is one key/value row. Value holds the JSON-encoded leaderboard.
type record struct {
	Key       string    `gorm:"primaryKey;size:255"`
	Value     []byte    `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (record) TableName() string { return "leaderboard_records" }

// PostgresStore keeps leaderboards in a single key/value table.
type PostgresStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// OpenPostgres connects to dsn and migrates the records table.
func OpenPostgres(dsn string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewPostgresStore(db, logger)
}

func NewPostgresStore(db *gorm.DB, logger *zap.Logger) (*PostgresStore, error) {
	if err := db.AutoMigrate(&record{}); err != nil {
		return nil, fmt.Errorf("migrate leaderboard_records: %w", err)
	}
	return &PostgresStore{db: db, logger: logger.Named("store")}, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (types.Leaderboard, error) {
	var rec record
	err := s.db.WithContext(ctx).First(&rec, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return decode(rec)
}

func (s *PostgresStore) Put(ctx context.Context, key string, lb types.Leaderboard) error {
	if lb == nil {
		lb = types.Leaderboard{}
	}
	raw, err := json.Marshal(lb)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	rec := record{Key: key, Value: raw, UpdatedAt: time.Now().UTC()}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, prefix string) (map[string]types.Leaderboard, error) {
	var recs []record
	err := s.db.WithContext(ctx).
		Where("key LIKE ?", escapeLike(prefix)+"%").
		Order("key").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list %s*: %w", prefix, err)
	}

	out := make(map[string]types.Leaderboard, len(recs))
	for _, rec := range recs {
		lb, err := decode(rec)
		if err != nil {
			// One corrupt row shouldn't hide every other room.
			s.logger.Warn("skipping undecodable record", zap.String("key", rec.Key), zap.Error(err))
			continue
		}
		out[rec.Key] = lb
	}
	return out, nil
}

func decode(rec record) (types.Leaderboard, error) {
	lb := types.Leaderboard{}
	if err := json.Unmarshal(rec.Value, &lb); err != nil {
		return nil, fmt.Errorf("decode %s: %w", rec.Key, err)
	}
	return lb, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
