package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aruvi/kot-gateway/pkg/redis"
)

// Stable keys for the persisted printer endpoint.
const (
	KeyPrinterHost = "printer_host"
	KeyPrinterPort = "printer_port"
)

// Store persists string settings by key.
type Store interface {
	// Get returns the stored values for the keys that exist.
	Get(ctx context.Context, keys ...string) (map[string]string, error)
	// Put writes all values atomically where the backend allows it.
	Put(ctx context.Context, values map[string]string) error
	// Delete removes the keys; missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}

// Setting is one row of the settings table.
type Setting struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     string    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (Setting) TableName() string { return "settings" }

type txRunner interface {
	DB() *gorm.DB
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// DBStore keeps settings in the local database.
type DBStore struct {
	db  txRunner
	now func() time.Time
}

// NewDBStore binds the settings table.
func NewDBStore(db txRunner) (*DBStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db client required")
	}
	return &DBStore{db: db, now: time.Now}, nil
}

func (s *DBStore) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	var rows []Setting
	if err := s.db.DB().WithContext(ctx).Where("key IN ?", keys).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

func (s *DBStore) Put(ctx context.Context, values map[string]string) error {
	now := s.now().UTC()
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		for k, v := range values {
			row := Setting{Key: k, Value: v, UpdatedAt: now}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&row).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *DBStore) Delete(ctx context.Context, keys ...string) error {
	err := s.db.DB().WithContext(ctx).Where("key IN ?", keys).Delete(&Setting{}).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

type kv interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	SettingKey(name string) string
}

// RedisStore keeps settings in redis without expiry, for venues running
// several gateways against one printer.
type RedisStore struct {
	client kv
}

func NewRedisStore(client kv) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, err := s.client.Get(ctx, s.client.SettingKey(k))
		if redis.IsMiss(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func (s *RedisStore) Put(ctx context.Context, values map[string]string) error {
	for k, v := range values {
		if err := s.client.Set(ctx, s.client.SettingKey(k), v, 0); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, s.client.SettingKey(k))
	}
	return s.client.Del(ctx, full...)
}
