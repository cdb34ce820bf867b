package external

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/anantadwi13/coredns-record-manager/internal/atomicfile"
	"github.com/anantadwi13/coredns-record-manager/internal/domain"
	"github.com/pkg/errors"
)

type jsonRecordRepository struct {
	path string
}

// NewJsonRecordRepository stores the record collection as a JSON array in a
// single file, creating it with an empty array when it does not exist.
func NewJsonRecordRepository(path string) (domain.RecordRepository, error) {
	r := &jsonRecordRepository{path: path}

	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return nil, errors.Wrap(err, "create record store directory")
	}

	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		err = atomicfile.Write(path, []byte("[]"), 0644)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "initialize record store %v", path)
	}
	return r, nil
}

func (r *jsonRecordRepository) Load(ctx context.Context) ([]*domain.Record, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, errors.Wrapf(err, "read record store %v", r.path)
	}
	return decodeRecords(data)
}

func (r *jsonRecordRepository) Save(ctx context.Context, records []*domain.Record) error {
	data, err := encodeRecords(records)
	if err != nil {
		return err
	}
	return atomicfile.Write(r.path, data, 0644)
}

func (r *jsonRecordRepository) Close() error {
	return nil
}

func decodeRecords(data []byte) ([]*domain.Record, error) {
	var records []*domain.Record
	err := json.Unmarshal(data, &records)
	if err != nil {
		return nil, errors.Wrap(err, "decode records")
	}
	return records, nil
}

func encodeRecords(records []*domain.Record) ([]byte, error) {
	if records == nil {
		records = []*domain.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encode records")
	}
	return data, nil
}
