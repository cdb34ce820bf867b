package internal

import (
	"context"
	"sync"

	"github.com/anantadwi13/coredns-record-manager/internal/domain"
	"github.com/pkg/errors"
)

// RecordStore enforces record validity and fqdn uniqueness on top of a
// whole-collection repository. Every mutation is a read-modify-write of the
// full collection and runs under mu so concurrent callers never lose updates.
type RecordStore struct {
	repo domain.RecordRepository
	mu   sync.Mutex
}

func NewRecordStore(repo domain.RecordRepository) *RecordStore {
	return &RecordStore{repo: repo}
}

func (s *RecordStore) List(ctx context.Context) ([]*domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Add validates and appends a record. The fqdn is compared case-insensitively
// and without trailing dot against the stored records.
func (s *RecordStore) Add(ctx context.Context, fqdn string, ip string) (*domain.Record, error) {
	record, err := domain.NewRecord(fqdn, ip)
	if err != nil {
		return nil, err
	}
	if record.Domain == domain.IPv6ReverseZone {
		return nil, errors.Wrapf(domain.ErrInvalidInput, "domain %v is reserved for reverse lookups", record.Domain)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.Key() == record.Key() {
			return nil, errors.Wrapf(domain.ErrDuplicateKey, "fqdn %q", record.FQDN)
		}
	}

	records = append(records, record)
	err = s.repo.Save(ctx, records)
	if err != nil {
		return nil, errors.Wrap(err, "persist records")
	}
	return record, nil
}

func (s *RecordStore) Delete(ctx context.Context, fqdn string) error {
	key := domain.NormalizeFQDN(fqdn)

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return err
	}

	remaining := make([]*domain.Record, 0, len(records))
	for _, r := range records {
		if r.Key() != key {
			remaining = append(remaining, r)
		}
	}
	if len(remaining) == len(records) {
		return errors.Wrapf(domain.ErrNotFound, "fqdn %q", fqdn)
	}

	err = s.repo.Save(ctx, remaining)
	if err != nil {
		return errors.Wrap(err, "persist records")
	}
	return nil
}

// load reads the collection and rebuilds derived fields of entries written by
// older versions. A stored entry that is no longer valid fails the load.
func (s *RecordStore) load(ctx context.Context) ([]*domain.Record, error) {
	records, err := s.repo.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load records")
	}
	valid := make([]*domain.Record, 0, len(records))
	for i, r := range records {
		if r == nil {
			continue
		}
		// not wrapped: a corrupt store is a server fault, not invalid input
		if err := r.Normalize(); err != nil {
			return nil, errors.Errorf("stored record #%d is invalid: %v", i, err)
		}
		valid = append(valid, r)
	}
	return valid, nil
}
