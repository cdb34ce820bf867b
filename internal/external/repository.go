package external

import (
	"context"

	"github.com/anantadwi13/coredns-record-manager/internal/domain"
	"github.com/pkg/errors"
)

const (
	DriverJson   = "json"
	DriverSqlite = "sqlite"
	DriverRedis  = "redis"
)

// NewRecordRepository builds the backend selected by config.StorageDriver.
func NewRecordRepository(ctx context.Context, config domain.Config) (domain.RecordRepository, error) {
	switch config.StorageDriver() {
	case DriverJson, "":
		return NewJsonRecordRepository(config.StoragePath())
	case DriverSqlite:
		return NewSqliteRecordRepository(ctx, config.StoragePath())
	case DriverRedis:
		return NewRedisRecordRepository(config.RedisAddress(), config.RedisKey()), nil
	default:
		return nil, errors.Errorf("unknown storage driver %q", config.StorageDriver())
	}
}
