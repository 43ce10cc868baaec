// Package storage keeps crawl runs and record hashes in a local JSON file.
// It backs the command line tool, which runs without Postgres.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/maltedev/catalog-scraper/internal/models"
)

var ErrRunNotFound = errors.New("crawl run not found")

type state struct {
	Runs       map[string]*models.CrawlRun   `json:"runs"`
	Categories map[string][]*models.Category `json:"categories"`
	Hashes     map[string]string             `json:"hashes"`
}

type FileStore struct {
	mu       sync.RWMutex
	state    state
	filename string
}

func NewFileStore(filename string) (*FileStore, error) {
	fs := &FileStore{
		state: state{
			Runs:       make(map[string]*models.CrawlRun),
			Categories: make(map[string][]*models.Category),
			Hashes:     make(map[string]string),
		},
		filename: filename,
	}

	if err := fs.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return fs, nil
}

func (fs *FileStore) CreateRun(_ context.Context, run *models.CrawlRun) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = models.CrawlRunning
	}

	cp := *run
	fs.state.Runs[run.ID] = &cp
	return fs.save()
}

func (fs *FileStore) FinishRun(_ context.Context, run *models.CrawlRun) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.state.Runs[run.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}

	now := time.Now()
	run.FinishedAt = &now
	cp := *run
	fs.state.Runs[run.ID] = &cp
	return fs.save()
}

func (fs *FileStore) GetRun(_ context.Context, id string) (*models.CrawlRun, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	run, ok := fs.state.Runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	cp := *run
	return &cp, nil
}

func (fs *FileStore) SaveCategory(_ context.Context, runID string, c *models.Category) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.state.Runs[runID]; !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	fs.state.Categories[runID] = append(fs.state.Categories[runID], c)
	return fs.save()
}

func (fs *FileStore) ListCategories(_ context.Context, runID string) ([]*models.Category, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	return append([]*models.Category(nil), fs.state.Categories[runID]...), nil
}

// Save remembers the record's hash and reports whether it differs from the
// previously stored one.
func (fs *FileStore) Save(_ context.Context, record *models.ProductRecord) (bool, error) {
	if record.Hash == nil {
		return false, errors.New("record has no hash")
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	key := record.StoreID + ":" + record.ProductID + ":" + record.PageID + ":" + string(record.Kind)
	hash := record.Hash.String()
	if fs.state.Hashes[key] == hash {
		return false, nil
	}

	fs.state.Hashes[key] = hash
	return true, fs.save()
}

func (fs *FileStore) save() error {
	if fs.filename == "" {
		return nil
	}

	data, err := json.MarshalIndent(fs.state, "", "  ")
	if err != nil {
		return err
	}

	// write to a temp file first so a crash never leaves a torn file
	tmpFile := fs.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmpFile, fs.filename)
}

func (fs *FileStore) Load() error {
	if fs.filename == "" {
		return nil
	}

	data, err := os.ReadFile(fs.filename)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, &fs.state); err != nil {
		return fmt.Errorf("failed to parse %s: %w", fs.filename, err)
	}
	if fs.state.Runs == nil {
		fs.state.Runs = make(map[string]*models.CrawlRun)
	}
	if fs.state.Categories == nil {
		fs.state.Categories = make(map[string][]*models.Category)
	}
	if fs.state.Hashes == nil {
		fs.state.Hashes = make(map[string]string)
	}
	return nil
}
