package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/huangang/teamsync/internal/models"
	"github.com/huangang/teamsync/pkg/logger"
	"github.com/rs/zerolog"
)

// StateStore owns the authoritative in-memory snapshot and writes it through
// a SnapshotWriter after every accepted mutation.
type StateStore struct {
	mu     sync.RWMutex
	snap   *models.Snapshot
	writer SnapshotWriter
	log    zerolog.Logger
	now    func() time.Time
}

func NewStateStore(snap *models.Snapshot, writer SnapshotWriter) *StateStore {
	if snap == nil {
		snap = models.NewSnapshot()
	}
	snap.Normalize()
	return &StateStore{
		snap:   snap,
		writer: writer,
		log:    logger.With("store"),
		now:    time.Now,
	}
}

// LoadStateStore reads the persisted snapshot. Any load failure is logged
// and the store starts empty.
func LoadStateStore(ctx context.Context, persister Persister, writer SnapshotWriter) *StateStore {
	snap, err := persister.Load(ctx)
	if err != nil {
		log := logger.With("store")
		log.Warn().Err(err).Msg("could not load snapshot, starting with empty state")
		snap = models.NewSnapshot()
	}
	return NewStateStore(snap, writer)
}

// Snapshot returns a deep copy of the current state.
func (s *StateStore) Snapshot() *models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// Mutate runs fn with write access and persists when fn reports a change.
// The returned flag mirrors fn's.
func (s *StateStore) Mutate(fn func(snap *models.Snapshot) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !fn(s.snap) {
		return false
	}
	s.persist()
	return true
}

// persist never fails the caller: state and clients advance even when
// storage does not.
func (s *StateStore) persist() {
	s.snap.LastSaved = s.now().UTC().Format(time.RFC3339)
	if err := s.writer.Write(context.Background(), s.snap.Clone()); err != nil {
		s.log.Error().Err(err).Msg("failed to save snapshot")
	}
}

// Users returns a copy of the durable user list.
func (s *StateStore) Users() []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.User{}, s.snap.Users...)
}

// FindUserByEmail matches case-insensitively.
func (s *StateStore) FindUserByEmail(email string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.snap.Users {
		if strings.EqualFold(u.Email, email) {
			return u, true
		}
	}
	return models.User{}, false
}

func (s *StateStore) TeamUsers(teamID string) []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := []models.User{}
	for _, u := range s.snap.Users {
		if u.InTeam(teamID) {
			users = append(users, u)
		}
	}
	return users
}

func (s *StateStore) Project(id string) (models.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p := findProject(s.snap, id); p != nil {
		return p.Clone(), true
	}
	return models.Project{}, false
}

func (s *StateStore) TeamMessages(teamID string) []models.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ChatMessage{}, s.snap.ChatMessages[teamID]...)
}

type StateCounts struct {
	Projects int `json:"projects"`
	Users    int `json:"users"`
	Messages int `json:"messages"`
}

func (s *StateStore) Counts() StateCounts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StateCounts{
		Projects: len(s.snap.Projects),
		Users:    len(s.snap.Users),
		Messages: s.snap.MessageCount(),
	}
}

func findProject(snap *models.Snapshot, id string) *models.Project {
	for i := range snap.Projects {
		if snap.Projects[i].ID == id {
			return &snap.Projects[i]
		}
	}
	return nil
}

func findUser(snap *models.Snapshot, id string) *models.User {
	for i := range snap.Users {
		if snap.Users[i].ID == id {
			return &snap.Users[i]
		}
	}
	return nil
}
