package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/huangang/teamsync/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Persister loads and stores the whole snapshot document.
type Persister interface {
	Load(ctx context.Context) (*models.Snapshot, error)
	Save(ctx context.Context, snap *models.Snapshot) error
}

// FileStore keeps the snapshot as one JSON document on disk.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

// Load returns an empty snapshot when the file does not exist yet.
func (s *FileStore) Load(ctx context.Context) (*models.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return models.NewSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return decodeSnapshot(data)
}

// Save writes to a sibling temp file and renames it over the target, so a
// crash mid-write leaves the previous document intact.
func (s *FileStore) Save(ctx context.Context, snap *models.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

const defaultSnapshotKey = "default"

// DBStore keeps the same JSON document in a single SQL row.
type DBStore struct {
	db  *gorm.DB
	key string
}

func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db, key: defaultSnapshotKey}
}

func (s *DBStore) Load(ctx context.Context) (*models.Snapshot, error) {
	var record models.SnapshotRecord
	err := s.db.WithContext(ctx).Where(&models.SnapshotRecord{Key: s.key}).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	return decodeSnapshot([]byte(record.Content))
}

func (s *DBStore) Save(ctx context.Context, snap *models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	record := models.SnapshotRecord{Key: s.key, Content: string(data)}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

func decodeSnapshot(data []byte) (*models.Snapshot, error) {
	snap := models.NewSnapshot()
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	snap.Normalize()
	return snap, nil
}
