package client

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

const (
	keyRegistered = "registered"
	keyID         = "id"
)

// StateFile is the client's small local memory: its stable id and whether it
// already registered. The path's extension picks the format (.yaml, .json, ...).
type StateFile struct {
	mu   sync.Mutex
	v    *viper.Viper
	path string
}

func OpenState(path string) (*StateFile, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read state %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat state %s: %w", path, err)
	}

	return &StateFile{v: v, path: path}, nil
}

func (s *StateFile) Registered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.GetBool(keyRegistered)
}

func (s *StateFile) SetRegistered() error {
	return s.set(keyRegistered, true)
}

// ClientID returns preset if given, else the saved id, else a new one which
// is saved for next time.
func (s *StateFile) ClientID(preset string) (string, error) {
	if preset != "" {
		return preset, nil
	}

	s.mu.Lock()
	id := s.v.GetString(keyID)
	s.mu.Unlock()
	if id != "" {
		return id, nil
	}

	id = uuid.NewString()
	if err := s.set(keyID, id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *StateFile) set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.v.Set(key, value)
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("write state %s: %w", s.path, err)
	}
	return nil
}
