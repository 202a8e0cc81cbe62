package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Baaaki/resource-hub/pkg/logger"
	"go.uber.org/zap"
)

// Entry is one line of the journal, describing a single committed mutation
type Entry struct {
	Action     string    `json:"action"`
	ResourceID uint64    `json:"resource_id"`
	Name       string    `json:"name"`
	ActorID    string    `json:"actor_id"`
	ActorRole  string    `json:"actor_role"`
	Timestamp  time.Time `json:"timestamp"`
}

// Journal is an append-only JSON-lines file of resource mutations
type Journal struct {
	filePath string
	file     *os.File
	mu       sync.Mutex
}

// Open creates the journal file (and its directory) if needed and opens it for appending
func Open(filePath string) (*Journal, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	return &Journal{
		filePath: filePath,
		file:     file,
	}, nil
}

// Append writes one entry and syncs it to disk before returning
func (j *Journal) Append(entry Entry) error {
	start := time.Now()
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		logger.Log.Error("Audit: failed to marshal entry",
			zap.Uint64("resource_id", entry.ResourceID),
			zap.Error(err),
		)
		return err
	}

	if _, err := j.file.Write(append(data, '\n')); err != nil {
		logger.Log.Error("Audit: failed to write entry",
			zap.Uint64("resource_id", entry.ResourceID),
			zap.Error(err),
		)
		return err
	}

	if err := j.file.Sync(); err != nil {
		logger.Log.Error("Audit: failed to sync to disk",
			zap.Uint64("resource_id", entry.ResourceID),
			zap.Error(err),
		)
		return err
	}

	logger.Log.Debug("Audit: entry written",
		zap.String("action", entry.Action),
		zap.Uint64("resource_id", entry.ResourceID),
		zap.Duration("duration", time.Since(start)),
	)

	return nil
}

// ReadAll returns every entry in write order
func (j *Journal) ReadAll() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.readAllUnsafe()
}

// Recent returns at most limit entries, newest first. A limit <= 0 returns all of them.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	entries, err := j.ReadAll()
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}

	recent := make([]Entry, 0, limit)
	for i := len(entries) - 1; i >= 0 && len(recent) < limit; i-- {
		recent = append(recent, entries[i])
	}
	return recent, nil
}

// readAllUnsafe reads all entries without locking; malformed lines are skipped
func (j *Journal) readAllUnsafe() ([]Entry, error) {
	file, err := os.Open(j.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, err
	}
	defer file.Close()

	entries := []Entry{}
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	return entries, scanner.Err()
}

// Close closes the journal file
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
