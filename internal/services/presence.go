package services

import (
	"sync"

	"github.com/huangang/teamsync/internal/models"
)

type session struct {
	channelID string
	user      models.User
}

// SessionRegistry tracks which user is behind each open channel. It drives
// presence notices only and grants nothing.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions []session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{}
}

// Register records user on channelID, replacing whatever the channel held,
// and returns the online users.
func (r *SessionRegistry) Register(channelID string, user models.User) []models.User {
	r.mu.Lock()
	defer r.mu.Unlock()

	replaced := false
	for i := range r.sessions {
		if r.sessions[i].channelID == channelID {
			r.sessions[i].user = user
			replaced = true
			break
		}
	}
	if !replaced {
		r.sessions = append(r.sessions, session{channelID: channelID, user: user})
	}
	return r.online()
}

// UnregisterByChannel removes the channel's entry. ok is false when the
// channel never joined or was already removed.
func (r *SessionRegistry) UnregisterByChannel(channelID string) (user models.User, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.sessions) - 1; i >= 0; i-- {
		if r.sessions[i].channelID == channelID {
			user = r.sessions[i].user
			r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
			return user, true
		}
	}
	return models.User{}, false
}

// UnregisterByUserID drops every session of userID and reports how many.
func (r *SessionRegistry) UnregisterByUserID(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.sessions[:0]
	removed := 0
	for _, s := range r.sessions {
		if s.user.ID == userID {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	r.sessions = kept
	return removed
}

func (r *SessionRegistry) Online() []models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online()
}

func (r *SessionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *SessionRegistry) online() []models.User {
	users := make([]models.User, len(r.sessions))
	for i, s := range r.sessions {
		users[i] = s.user
	}
	return users
}
