package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/huangang/teamsync/internal/config"
	"github.com/huangang/teamsync/pkg/logger"
	"github.com/robfig/cron/v3"
)

const backupPrefix = "snapshot-"

// BackupService periodically copies the live snapshot into timestamped files
// and prunes old ones.
type BackupService struct {
	store         *StateStore
	config        *config.BackupConfig
	cronScheduler *cron.Cron
	now           func() time.Time
}

func NewBackupService(store *StateStore, cfg *config.BackupConfig) *BackupService {
	return &BackupService{
		store:  store,
		config: cfg,
		now:    time.Now,
	}
}

func (s *BackupService) StartScheduler() error {
	s.cronScheduler = cron.New()

	_, err := s.cronScheduler.AddFunc(s.config.Schedule, func() {
		if _, err := s.RunOnce(); err != nil {
			logger.Errorf("[Backup] Run failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("add backup schedule %q: %w", s.config.Schedule, err)
	}

	s.cronScheduler.Start()
	logger.Infof("[Backup] Scheduler started (%s, dir %s, keep %d)", s.config.Schedule, s.config.Dir, s.config.Keep)
	return nil
}

func (s *BackupService) StopScheduler() {
	if s.cronScheduler != nil {
		<-s.cronScheduler.Stop().Done()
	}
}

// RunOnce writes one backup and prunes, returning the new file's path.
func (s *BackupService) RunOnce() (string, error) {
	name := backupPrefix + s.now().Format("20060102-150405") + ".json"
	path := filepath.Join(s.config.Dir, name)

	if err := NewFileStore(path).Save(context.Background(), s.store.Snapshot()); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}

	if err := s.prune(); err != nil {
		logger.Warnf("[Backup] Prune failed: %v", err)
	}
	logger.Infof("[Backup] Wrote %s", path)
	return path, nil
}

// prune keeps the newest Keep backups. The timestamped names sort
// chronologically.
func (s *BackupService) prune() error {
	if s.config.Keep <= 0 {
		return nil
	}

	entries, err := os.ReadDir(s.config.Dir)
	if err != nil {
		return err
	}

	var backups []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), backupPrefix) && strings.HasSuffix(e.Name(), ".json") {
			backups = append(backups, e.Name())
		}
	}
	if len(backups) <= s.config.Keep {
		return nil
	}

	sort.Strings(backups)
	for _, name := range backups[:len(backups)-s.config.Keep] {
		if err := os.Remove(filepath.Join(s.config.Dir, name)); err != nil {
			return err
		}
	}
	return nil
}
