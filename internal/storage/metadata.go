package storage

import (
	"fmt"
	"os"
	"time"
)

// Info summarizes the unencrypted state of a vault database
type Info struct {
	Version      string
	VaultID      string
	Created      time.Time
	Modified     time.Time
	FileSize     int64
	EnvelopeSize int
}

// Info collects the config bucket values and sizes. The envelope itself is
// not decrypted.
func (s *Storage) Info() (*Info, error) {
	initialized, err := s.IsInitialized()
	if err != nil {
		return nil, err
	}
	if !initialized {
		return nil, ErrNotInitialized
	}

	info := &Info{Version: FormatVersion}
	if info.VaultID, err = s.GetVaultID(); err != nil {
		return nil, err
	}
	if info.Created, err = s.GetCreated(); err != nil {
		return nil, err
	}
	if info.Modified, err = s.GetModified(); err != nil {
		return nil, err
	}

	envelope, err := s.GetEnvelope()
	switch {
	case err == nil:
		info.EnvelopeSize = len(envelope)
	case err != ErrEnvelopeNotFound:
		return nil, err
	}

	stat, err := os.Stat(s.Path())
	if err != nil {
		return nil, fmt.Errorf("failed to stat database: %w", err)
	}
	info.FileSize = stat.Size()
	return info, nil
}
