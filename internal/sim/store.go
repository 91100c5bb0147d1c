package sim

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"msmanager/internal/api"
)

var (
	bucketState = []byte("state")

	keySettings    = []byte("settings")
	keyInstalled   = []byte("installed")
	keyLastFlashed = []byte("last_flashed")
	keyPayloadRoot = []byte("payload_root")
)

// ErrStoreClosed is returned after Close.
var ErrStoreClosed = errors.New("sim: store closed")

// Store persists the backend's settings, install state, last flash record
// and payload root across restarts.
type Store struct {
	db *bbolt.DB
}

// OpenStore opens (or creates) the bbolt file at path.
func OpenStore(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketState)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Settings returns the stored settings, or fallback when none were saved.
func (s *Store) Settings(fallback api.Settings) (api.Settings, error) {
	out := fallback
	found, err := s.get(keySettings, &out)
	if err != nil || !found {
		return fallback, err
	}
	return out, nil
}

func (s *Store) PutSettings(v api.Settings) error { return s.put(keySettings, v) }

// Installed returns the install record, or nil when nothing is installed.
func (s *Store) Installed() (*api.InstallState, error) {
	var v api.InstallState
	found, err := s.get(keyInstalled, &v)
	if err != nil || !found {
		return nil, err
	}
	return &v, nil
}

func (s *Store) PutInstalled(v api.InstallState) error { return s.put(keyInstalled, v) }

func (s *Store) LastFlashed() (*api.LastFlashed, error) {
	var v api.LastFlashed
	found, err := s.get(keyLastFlashed, &v)
	if err != nil || !found {
		return nil, err
	}
	return &v, nil
}

func (s *Store) PutLastFlashed(v api.LastFlashed) error { return s.put(keyLastFlashed, v) }

// PayloadRoot returns the stored root override, or "" when none was set.
func (s *Store) PayloadRoot() (string, error) {
	var v string
	_, err := s.get(keyPayloadRoot, &v)
	return v, err
}

func (s *Store) PutPayloadRoot(root string) error { return s.put(keyPayloadRoot, root) }

func (s *Store) get(key []byte, out any) (bool, error) {
	if s.db == nil {
		return false, ErrStoreClosed
	}
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketState).Get(key)
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, out)
	})
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return found, nil
}

func (s *Store) put(key []byte, v any) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", key, err)
		}
		return tx.Bucket(bucketState).Put(key, data)
	})
}
