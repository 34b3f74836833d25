package storage

import (
	"fmt"
	"time"

	"webmail/internal/auth"
	"webmail/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketSession     = []byte("session")
	bucketAttachments = []byte("attachments")
)

// BboltStorage keeps the session cookie and the attachment index in a local bbolt file.
type BboltStorage struct {
	db  *bbolt.DB
	now func() time.Time
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSession); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketAttachments); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db, now: time.Now}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// Load returns the stored session cookie, or auth.ErrNoSession when there is
// none or its lifetime has passed.
func (s *BboltStorage) Load() (auth.Persisted, error) {
	var dbSession DBSession
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSession).Get(dbSession.Key())
		if data == nil {
			return nil
		}
		found = true
		return dbSession.UnmarshalBinary(data)
	})
	if err != nil {
		return auth.Persisted{}, fmt.Errorf("failed to read session: %w", err)
	}
	if !found {
		return auth.Persisted{}, auth.ErrNoSession
	}

	p := fromDBSession(dbSession)
	if !p.Expires.After(s.now()) {
		if err := s.Delete(); err != nil {
			return auth.Persisted{}, err
		}
		return auth.Persisted{}, auth.ErrNoSession
	}
	return p, nil
}

func (s *BboltStorage) Save(p auth.Persisted) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		dbSession := toDBSession(p)
		data, err := dbSession.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSession).Put(dbSession.Key(), data)
	})
}

func (s *BboltStorage) Delete() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSession).Delete((&DBSession{}).Key())
	})
}

func toDBSession(p auth.Persisted) DBSession {
	return DBSession{
		Token:       p.Token,
		UserID:      p.User.ID,
		Email:       p.User.Email,
		DisplayName: p.User.DisplayName,
		AvatarURL:   p.User.AvatarURL,
		Expires:     p.Expires.Unix(),
	}
}

func fromDBSession(s DBSession) auth.Persisted {
	return auth.Persisted{
		Token: s.Token,
		User: models.User{
			ID:          s.UserID,
			Email:       s.Email,
			DisplayName: s.DisplayName,
			AvatarURL:   s.AvatarURL,
		},
		Expires: time.Unix(s.Expires, 0),
	}
}
