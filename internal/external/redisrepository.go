package external

import (
	"context"
	"time"

	"github.com/anantadwi13/coredns-record-manager/internal/domain"
	redisCon "github.com/gomodule/redigo/redis"
	"github.com/pkg/errors"
)

type redisRecordRepository struct {
	pool *redisCon.Pool
	key  string
}

// NewRedisRecordRepository keeps the JSON encoded record collection under a
// single redis key.
func NewRedisRecordRepository(address string, key string) domain.RecordRepository {
	pool := &redisCon.Pool{
		MaxIdle:     2,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redisCon.Conn, error) {
			return redisCon.Dial("tcp", address,
				redisCon.DialConnectTimeout(5*time.Second),
				redisCon.DialReadTimeout(5*time.Second),
				redisCon.DialWriteTimeout(5*time.Second),
			)
		},
	}
	return &redisRecordRepository{pool: pool, key: key}
}

func (r *redisRecordRepository) Load(ctx context.Context) ([]*domain.Record, error) {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "redis connection")
	}
	defer conn.Close()

	data, err := redisCon.Bytes(conn.Do("GET", r.key))
	if err == redisCon.ErrNil {
		return []*domain.Record{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "redis GET %v", r.key)
	}
	return decodeRecords(data)
}

func (r *redisRecordRepository) Save(ctx context.Context, records []*domain.Record) error {
	data, err := encodeRecords(records)
	if err != nil {
		return err
	}

	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return errors.Wrap(err, "redis connection")
	}
	defer conn.Close()

	_, err = conn.Do("SET", r.key, data)
	if err != nil {
		return errors.Wrapf(err, "redis SET %v", r.key)
	}
	return nil
}

func (r *redisRecordRepository) Close() error {
	return r.pool.Close()
}
