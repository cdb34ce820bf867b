package domain

import (
	"context"
)

// RecordRepository persists the whole record collection at once. There is no
// partial update path: every Save replaces what a previous Save stored.
type RecordRepository interface {
	Load(ctx context.Context) ([]*Record, error)
	Save(ctx context.Context, records []*Record) error
	Close() error
}

type Migration interface {
	Migrate(ctx context.Context) error
}
