package storage

import (
	"errors"
	"fmt"
	"time"

	"webmail/internal/auth"

	"github.com/99designs/keyring"
)

const (
	keyringService = "webmail"
	keyringKey     = "session"
)

// OpenKeyring opens the OS keyring, falling back to an encrypted file under dir.
func OpenKeyring(dir string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: keyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  dir,
		FilePasswordFunc:         keyring.FixedStringPrompt("webmail-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// KeyringStore keeps the session cookie in a keyring item.
type KeyringStore struct {
	ring keyring.Keyring
	now  func() time.Time
}

func NewKeyringStore(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{ring: ring, now: time.Now}
}

func (s *KeyringStore) Load() (auth.Persisted, error) {
	item, err := s.ring.Get(keyringKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return auth.Persisted{}, auth.ErrNoSession
	}
	if err != nil {
		return auth.Persisted{}, fmt.Errorf("getting session from keyring: %w", err)
	}

	var dbSession DBSession
	if err := dbSession.UnmarshalBinary(item.Data); err != nil {
		return auth.Persisted{}, fmt.Errorf("decoding session from keyring: %w", err)
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

func (s *KeyringStore) Save(p auth.Persisted) error {
	dbSession := toDBSession(p)
	data, err := dbSession.MarshalBinary()
	if err != nil {
		return err
	}
	err = s.ring.Set(keyring.Item{
		Key:   keyringKey,
		Data:  data,
		Label: "webmail session",
	})
	if err != nil {
		return fmt.Errorf("setting session in keyring: %w", err)
	}
	return nil
}

func (s *KeyringStore) Delete() error {
	err := s.ring.Remove(keyringKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting session from keyring: %w", err)
	}
	return nil
}
