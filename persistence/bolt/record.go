package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/flarexio/ragblade/record"
)

var bucketRecords = []byte("records")

func NewRecordStore(path string) (record.Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &recordStore{db}, nil
}

type recordStore struct {
	db *bbolt.DB
}

func (s *recordStore) Put(ctx context.Context, r record.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(&r)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).Put([]byte(r.ID), data)
	})
}

func (s *recordStore) Get(ctx context.Context, id string) (record.Record, error) {
	var r record.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRecords).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", record.ErrRecordNotFound, id)
		}
		return json.Unmarshal(data, &r)
	})
	if err != nil {
		return record.Record{}, err
	}

	return r, nil
}

// List returns the matching records, oldest first.
func (s *recordStore) List(ctx context.Context, filter record.Filter) ([]record.Record, error) {
	records := make([]record.Record, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(k, v []byte) error {
			var r record.Record
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("record %s: %w", k, err)
			}

			if filter.Match(r) {
				records = append(records, r)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	return records, nil
}

func (s *recordStore) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", record.ErrRecordNotFound, id)
		}
		return b.Delete([]byte(id))
	})
}

func (s *recordStore) Close() error {
	return s.db.Close()
}
