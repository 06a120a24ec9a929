package storage

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	ConfigBucket   = []byte("config")
	EnvelopeBucket = []byte("envelope")
)

// Config keys
var (
	ConfigVersion  = []byte("version")
	ConfigCreated  = []byte("created")
	ConfigModified = []byte("modified")
	ConfigVaultID  = []byte("vault_id")
)

// EnvelopeKey is the key of the sealed vault in EnvelopeBucket
var EnvelopeKey = []byte("vault")

// FormatVersion is written to the config bucket on Initialize
const FormatVersion = "1"

var (
	ErrNotInitialized   = errors.New("database is not initialized")
	ErrEnvelopeNotFound = errors.New("no sealed vault stored")
	ErrEmptyEnvelope    = errors.New("sealed vault is empty")
)

// Storage wraps the vault database
type Storage struct {
	db *bolt.DB
}

// Open opens or creates a vault database
func Open(path string) (*Storage, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Storage) Path() string {
	return s.db.Path()
}

// Initialize creates both buckets and stamps version, timestamps and a new vault ID
func (s *Storage) Initialize() error {
	return s.db.Update(initialize)
}

// Create initializes the database and stores the first sealed vault in
// one transaction. On error the database is left uninitialized.
func (s *Storage) Create(envelope []byte) error {
	if len(envelope) == 0 {
		return ErrEmptyEnvelope
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := initialize(tx); err != nil {
			return err
		}
		if err := tx.Bucket(EnvelopeBucket).Put(EnvelopeKey, envelope); err != nil {
			return fmt.Errorf("failed to store envelope: %w", err)
		}
		return nil
	})
}

func initialize(tx *bolt.Tx) error {
	for _, bucket := range [][]byte{ConfigBucket, EnvelopeBucket} {
		if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
	}

	config := tx.Bucket(ConfigBucket)
	if err := config.Put(ConfigVersion, []byte(FormatVersion)); err != nil {
		return err
	}

	now, err := time.Now().MarshalBinary()
	if err != nil {
		return err
	}
	if err := config.Put(ConfigCreated, now); err != nil {
		return err
	}
	if err := config.Put(ConfigModified, now); err != nil {
		return err
	}
	if config.Get(ConfigVaultID) == nil {
		return config.Put(ConfigVaultID, []byte(uuid.NewString()))
	}
	return nil
}

// IsInitialized checks if the database has been initialized
func (s *Storage) IsInitialized() (bool, error) {
	var initialized bool
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		initialized = config != nil && config.Get(ConfigVersion) != nil
		return nil
	})
	return initialized, err
}

// StoreEnvelope replaces the sealed vault and bumps the modified time
// in the same transaction.
func (s *Storage) StoreEnvelope(envelope []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		bucket := tx.Bucket(EnvelopeBucket)
		if config == nil || bucket == nil {
			return ErrNotInitialized
		}
		if err := bucket.Put(EnvelopeKey, envelope); err != nil {
			return fmt.Errorf("failed to store envelope: %w", err)
		}
		modified, err := time.Now().MarshalBinary()
		if err != nil {
			return err
		}
		return config.Put(ConfigModified, modified)
	})
}

// GetEnvelope retrieves the sealed vault
func (s *Storage) GetEnvelope() ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(EnvelopeBucket)
		if bucket == nil {
			return ErrNotInitialized
		}
		v := bucket.Get(EnvelopeKey)
		if v == nil {
			return ErrEnvelopeNotFound
		}
		// bbolt slices are only valid inside the transaction
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}

// HasEnvelope reports whether a sealed vault is stored
func (s *Storage) HasEnvelope() (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(EnvelopeBucket)
		found = bucket != nil && bucket.Get(EnvelopeKey) != nil
		return nil
	})
	return found, err
}

// GetModified retrieves the last modified timestamp
func (s *Storage) GetModified() (time.Time, error) {
	return s.getTime(ConfigModified)
}

// GetCreated retrieves the creation timestamp
func (s *Storage) GetCreated() (time.Time, error) {
	return s.getTime(ConfigCreated)
}

func (s *Storage) getTime(key []byte) (time.Time, error) {
	var t time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return ErrNotInitialized
		}
		data := config.Get(key)
		if data == nil {
			return fmt.Errorf("%s time not found", key)
		}
		return t.UnmarshalBinary(data)
	})
	return t, err
}

// GetVaultID retrieves the vault ID from config bucket
func (s *Storage) GetVaultID() (string, error) {
	var vaultID string
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return ErrNotInitialized
		}
		data := config.Get(ConfigVaultID)
		if data == nil {
			return fmt.Errorf("vault_id not found")
		}
		vaultID = string(data)
		return nil
	})
	return vaultID, err
}

// GetOrCreateVaultID retrieves the vault ID, assigning a new UUID when
// the database predates vault IDs.
func (s *Storage) GetOrCreateVaultID() (string, error) {
	if vaultID, err := s.GetVaultID(); err == nil {
		return vaultID, nil
	}

	var vaultID string
	err := s.db.Update(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return ErrNotInitialized
		}
		if existing := config.Get(ConfigVaultID); existing != nil {
			vaultID = string(existing)
			return nil
		}
		vaultID = uuid.NewString()
		return config.Put(ConfigVaultID, []byte(vaultID))
	})
	if err != nil {
		return "", fmt.Errorf("failed to store vault ID: %w", err)
	}
	return vaultID, nil
}

// Compact rewrites the database into a fresh file, dropping free pages
// left behind by earlier envelope replacements.
func (s *Storage) Compact() error {
	srcPath := s.db.Path()
	tmpPath := srcPath + ".compact"

	dst, err := bolt.Open(tmpPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}

	if err := bolt.Compact(dst, s.db, 0); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}
	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source database: %w", err)
	}

	backupPath := srcPath + ".backup"
	if err := os.Rename(srcPath, backupPath); err != nil {
		return s.reopen(srcPath, fmt.Errorf("failed to backup original: %w", err))
	}
	if err := os.Rename(tmpPath, srcPath); err != nil {
		os.Rename(backupPath, srcPath)
		return s.reopen(srcPath, fmt.Errorf("failed to replace database: %w", err))
	}
	os.Remove(backupPath)

	return s.reopen(srcPath, nil)
}

// reopen restores the handle after Compact closed it, keeping cause as the
// primary error when set.
func (s *Storage) reopen(path string, cause error) error {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return errors.Join(cause, fmt.Errorf("failed to reopen database: %w", err))
	}
	s.db = db
	return cause
}
