package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Store persists backup records as JSON lines so an operator can still
// locate an un-finalized backup artifact after the process restarts. It is
// append-only; records are never rewritten or removed, even once their
// artifact is cleaned up.
type Store struct {
	mu   sync.Mutex
	file *os.File
}

// NewStore opens (creating if needed) the record file at path for appending.
func NewStore(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("open backup store: %w", err)
	}
	return &Store{file: f}, nil
}

// Append writes one record as a JSON line.
func (s *Store) Append(rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal backup record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.file.Write(line)
	return err
}

// Close closes the underlying file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// Load reads every record previously appended to the file at path. Used by
// operator tooling to find artifacts left behind by a failed migration; the
// running process never reads its own store.
func Load(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup store: %w", err)
	}

	var records []Record
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return records, fmt.Errorf("decode backup record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}
