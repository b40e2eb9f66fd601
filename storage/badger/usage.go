package badger

import (
	"context"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/lateralhq/lateral/core"
	"github.com/lateralhq/lateral/storage"
)

// UsageLogRepository implements storage.UsageLogRepository for BadgerDB.
type UsageLogRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.UsageLogRepository = (*UsageLogRepository)(nil)

// NewUsageLogRepository creates a new UsageLogRepository.
func NewUsageLogRepository(backend *Backend) (*UsageLogRepository, error) {
	idSeq, err := backend.GetSequence(usageSequenceName)
	if err != nil {
		return nil, err
	}

	return &UsageLogRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *UsageLogRepository) Close() error {
	return r.idSeq.Release()
}

// AddUsageLog appends a usage entry.
func (r *UsageLogRepository) AddUsageLog(ctx context.Context, log *core.UsageLog) (*core.UsageLog, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		nextID, err := r.idSeq.Next()
		if err != nil {
			return err
		}
		// BadgerDB sequences can return 0 on first call, so we skip it
		if nextID == 0 {
			nextID, err = r.idSeq.Next()
			if err != nil {
				return err
			}
		}
		log.Id = core.ID(nextID)

		if log.At.IsZero() {
			log.At = time.Now().UTC()
		}

		key := makeUsageKey(log.UserId, log.Id)
		if err := tx.Set(key, storage.MarshalUsageLog(log)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	if err != nil {
		return nil, err
	}
	return log, nil
}

// ListUsageLogs retrieves up to limit of the user's entries, newest first.
func (r *UsageLogRepository) ListUsageLogs(ctx context.Context, userID core.ID, limit int) ([]*core.UsageLog, error) {
	var results []*core.UsageLog
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		// Log IDs come from a monotonic sequence, so reverse key order
		// is newest first.
		prefix := makeUsagePrefix(userID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		iter := tx.NewIterator(opts)
		defer iter.Close()

		seekKey := append(slices.Clone(prefix), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)

		for iter.Seek(seekKey); iter.ValidForPrefix(prefix); iter.Next() {
			var log *core.UsageLog
			err := iter.Item().Value(func(val []byte) error {
				var err error
				log, err = storage.UnmarshalUsageLog(val)
				return err
			})
			if err != nil {
				return err
			}
			if log != nil {
				results = append(results, log)
			}
			if limit > 0 && len(results) >= limit {
				return nil
			}
		}
		return nil
	}, false)

	if err != nil {
		return nil, err
	}
	return results, nil
}
