package storage

import (
	"fmt"

	"webmail/internal/models"

	"go.etcd.io/bbolt"
)

func (s *BboltStorage) UpsertAttachment(meta DBAttachment) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAttachments)
		data, err := meta.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal attachment metadata: %w", err)
		}
		return b.Put(meta.Key(), data)
	})
}

func (s *BboltStorage) GetAttachment(id string) (DBAttachment, error) {
	var meta DBAttachment
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketAttachments).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("attachment %s: %w", id, models.ErrNotFound)
		}
		return meta.UnmarshalBinary(data)
	})
	return meta, err
}
