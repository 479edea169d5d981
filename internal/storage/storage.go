// Package storage persists crawl outcomes: an append-only JSONL log in the
// data directory and a SQLite history for queries.
package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BenjaminSRussell/shopscout/internal/types"
)

const jsonlName = "crawls.jsonl"

// Recorder receives every crawl outcome
type Recorder interface {
	SaveRecord(rec types.CrawlRecord) error
	Close() error
}

// Storage appends crawl records to a JSONL file
type Storage struct {
	dataDir string
	mu      sync.Mutex
	jsonl   *os.File
}

// New creates the data directory and opens the JSONL log for appending
func New(dataDir string) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	file, err := os.OpenFile(filepath.Join(dataDir, jsonlName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}

	return &Storage{
		dataDir: dataDir,
		jsonl:   file,
	}, nil
}

// SaveRecord appends one record
func (s *Storage) SaveRecord(rec types.CrawlRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if _, err := s.jsonl.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	return nil
}

// LoadRecords reads every record in the log. Malformed lines are skipped.
func (s *Storage) LoadRecords() ([]types.CrawlRecord, error) {
	return LoadRecords(s.dataDir)
}

// LoadRecords reads the JSONL log of dataDir without opening it for writing
func LoadRecords(dataDir string) ([]types.CrawlRecord, error) {
	file, err := os.Open(filepath.Join(dataDir, jsonlName))
	if err != nil {
		if os.IsNotExist(err) {
			return []types.CrawlRecord{}, nil
		}
		return nil, fmt.Errorf("failed to read JSONL file: %w", err)
	}
	defer file.Close()

	results := make([]types.CrawlRecord, 0)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec types.CrawlRecord
		if err := json.Unmarshal(line, &rec); err == nil {
			results = append(results, rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan JSONL file: %w", err)
	}

	return results, nil
}

// Close closes the storage
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.jsonl != nil {
		return s.jsonl.Close()
	}

	return nil
}

type tee []Recorder

// Tee fans records out to every recorder. Nil recorders are ignored.
func Tee(rs ...Recorder) Recorder {
	out := make(tee, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (t tee) SaveRecord(rec types.CrawlRecord) error {
	var errs []error
	for _, r := range t {
		if err := r.SaveRecord(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t tee) Close() error {
	var errs []error
	for _, r := range t {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
