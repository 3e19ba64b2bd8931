package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/syncvault/internal/client/storage"
	"github.com/iudanet/syncvault/internal/models"
)

// SaveRecord stores a single record under the namespace bucket
func (s *Storage) SaveRecord(ctx context.Context, namespace string, record *models.Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := namespaceBucket(tx, namespace)
		if err != nil {
			return err
		}

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}

		if err := bucket.Put([]byte(record.Key), data); err != nil {
			return fmt.Errorf("failed to save record: %w", err)
		}

		return nil
	})
}

// GetRecord retrieves a cached record by key
func (s *Storage) GetRecord(ctx context.Context, namespace, key string) (*models.Record, error) {
	var record *models.Record

	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketRecords)
		if root == nil {
			return fmt.Errorf("records bucket not found")
		}

		bucket := root.Bucket([]byte(namespace))
		if bucket == nil {
			return storage.ErrRecordNotFound
		}

		data := bucket.Get([]byte(key))
		if data == nil {
			return storage.ErrRecordNotFound
		}

		record = &models.Record{}
		if err := json.Unmarshal(data, record); err != nil {
			return fmt.Errorf("failed to unmarshal record: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return record, nil
}

// ListRecords returns all cached records of the namespace.
// Bbolt курсор обходит ключи в байтовом порядке, так что результат
// отсортирован по ключу.
func (s *Storage) ListRecords(ctx context.Context, namespace string) ([]*models.Record, error) {
	var records []*models.Record

	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketRecords)
		if root == nil {
			return fmt.Errorf("records bucket not found")
		}

		bucket := root.Bucket([]byte(namespace))
		if bucket == nil {
			// Пустой namespace — не ошибка
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			record := &models.Record{}
			if err := json.Unmarshal(v, record); err != nil {
				return fmt.Errorf("failed to unmarshal record %q: %w", string(k), err)
			}
			records = append(records, record)
			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return records, nil
}

// ReplaceRecords atomically replaces the namespace contents.
// Используется при полном resync: старый снимок удаляется и
// записывается новый в одной транзакции.
func (s *Storage) ReplaceRecords(ctx context.Context, namespace string, records []*models.Record) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketRecords)
		if root == nil {
			return fmt.Errorf("records bucket not found")
		}

		if root.Bucket([]byte(namespace)) != nil {
			if err := root.DeleteBucket([]byte(namespace)); err != nil {
				return fmt.Errorf("failed to drop namespace bucket: %w", err)
			}
		}

		bucket, err := root.CreateBucket([]byte(namespace))
		if err != nil {
			return fmt.Errorf("failed to create namespace bucket: %w", err)
		}

		for _, record := range records {
			data, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("failed to marshal record %q: %w", record.Key, err)
			}
			if err := bucket.Put([]byte(record.Key), data); err != nil {
				return fmt.Errorf("failed to save record %q: %w", record.Key, err)
			}
		}

		return nil
	})
}

// DeleteNamespace drops all cached records of the namespace
func (s *Storage) DeleteNamespace(ctx context.Context, namespace string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketRecords)
		if root == nil {
			return fmt.Errorf("records bucket not found")
		}

		if root.Bucket([]byte(namespace)) == nil {
			return nil
		}

		if err := root.DeleteBucket([]byte(namespace)); err != nil {
			return fmt.Errorf("failed to drop namespace bucket: %w", err)
		}

		return nil
	})
}

// namespaceBucket возвращает bucket namespace, создавая его при необходимости
func namespaceBucket(tx *bbolt.Tx, namespace string) (*bbolt.Bucket, error) {
	root := tx.Bucket(bucketRecords)
	if root == nil {
		return nil, fmt.Errorf("records bucket not found")
	}

	bucket, err := root.CreateBucketIfNotExists([]byte(namespace))
	if err != nil {
		return nil, fmt.Errorf("failed to create namespace bucket: %w", err)
	}

	return bucket, nil
}
