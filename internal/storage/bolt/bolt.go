package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/bark-labs/pushover-relay/internal/model"
	"github.com/bark-labs/pushover-relay/internal/storage"
	bolt "go.etcd.io/bbolt"
)

var _ storage.Store = (*Store)(nil)

var (
	bucketRecipients = []byte("recipients")
	bucketNoticeLog  = []byte("notice_logs")
	bucketReceipts   = []byte("receipts")
)

// Store is a BoltDB-backed storage.Store.
type Store struct {
	db *bolt.DB
}

// New opens (creating if needed) the Bolt file at path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketRecipients, bucketNoticeLog, bucketReceipts} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes underlying Bolt DB.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertRecipient stores or updates a recipient keyed by user key.
func (s *Store) UpsertRecipient(ctx context.Context, recipient *model.Recipient) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if recipient.CreatedAt.IsZero() {
		recipient.CreatedAt = now
	}
	recipient.UpdatedAt = now
	return s.put(bucketRecipients, []byte(recipient.UserKey), recipient)
}

// GetRecipient fetches a recipient by user key.
func (s *Store) GetRecipient(ctx context.Context, userKey string) (*model.Recipient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var r model.Recipient
	if err := s.get(bucketRecipients, []byte(userKey), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRecipients returns all recipients ordered by user key.
func (s *Store) ListRecipients(ctx context.Context) ([]*model.Recipient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return list[model.Recipient](s.db, bucketRecipients, func(*model.Recipient) bool { return true })
}

// ListActiveRecipients returns ACTIVE recipients only.
func (s *Store) ListActiveRecipients(ctx context.Context) ([]*model.Recipient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return list[model.Recipient](s.db, bucketRecipients, (*model.Recipient).Active)
}

// DeleteRecipient removes a recipient; deleting an unknown key reports ErrNotFound.
func (s *Store) DeleteRecipient(ctx context.Context, userKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketRecipients)
		if bkt.Get([]byte(userKey)) == nil {
			return storage.ErrNotFound
		}
		return bkt.Delete([]byte(userKey))
	})
}

// AppendNoticeLog stores a push log entry under the next sequence id.
func (s *Store) AppendNoticeLog(ctx context.Context, log *model.NoticeLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if log.CreatedAt.IsZero() {
		log.CreatedAt = now
	}
	log.UpdatedAt = now
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketNoticeLog)
		id, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		log.ID = id
		payload, err := json.Marshal(log)
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, id)
		return bkt.Put(key, payload)
	})
}

// ListNoticeLogs returns all notice logs in insertion order.
func (s *Store) ListNoticeLogs(ctx context.Context) ([]*model.NoticeLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return list[model.NoticeLog](s.db, bucketNoticeLog, func(*model.NoticeLog) bool { return true })
}

// SaveReceipt stores or replaces a tracked emergency receipt.
func (s *Store) SaveReceipt(ctx context.Context, receipt *model.TrackedReceipt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = now
	}
	receipt.UpdatedAt = now
	return s.put(bucketReceipts, []byte(receipt.Receipt), receipt)
}

// GetReceipt fetches a tracked receipt by its id.
func (s *Store) GetReceipt(ctx context.Context, receipt string) (*model.TrackedReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var r model.TrackedReceipt
	if err := s.get(bucketReceipts, []byte(receipt), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListReceipts returns all tracked receipts.
func (s *Store) ListReceipts(ctx context.Context) ([]*model.TrackedReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return list[model.TrackedReceipt](s.db, bucketReceipts, func(*model.TrackedReceipt) bool { return true })
}

func (s *Store) put(bucket, key []byte, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, payload)
	})
}

func (s *Store) get(bucket, key []byte, dst any) error {
	return s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucket).Get(key)
		if raw == nil {
			return storage.ErrNotFound
		}
		return json.Unmarshal(raw, dst)
	})
}

func list[T any](db *bolt.DB, bucket []byte, keep func(*T) bool) ([]*T, error) {
	var out []*T
	err := db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(_, v []byte) error {
			item := new(T)
			if err := json.Unmarshal(v, item); err != nil {
				return err
			}
			if keep(item) {
				out = append(out, item)
			}
			return nil
		})
	})
	return out, err
}
