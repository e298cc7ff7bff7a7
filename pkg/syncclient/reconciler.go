package syncclient

import (
	"sync"

	"github.com/huangang/teamsync/internal/models"
	"github.com/huangang/teamsync/internal/protocol"
)

// Reconciler mirrors server state from the event stream. It seeds from the
// first state:initial it sees and from then on only merges; later snapshots
// are ignored, so a reconnect keeps the local mirror. Events that arrive
// before the seed are dropped.
type Reconciler struct {
	mu       sync.Mutex
	synced   bool
	projects []models.Project
	users    []models.User
	messages map[string][]models.ChatMessage
	online   []models.User
}

func NewReconciler() *Reconciler {
	return &Reconciler{messages: make(map[string][]models.ChatMessage)}
}

func (r *Reconciler) Synced() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.synced
}

// Apply merges one server event and reports whether local state changed.
func (r *Reconciler) Apply(out protocol.Outbound) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if out.Event == protocol.EventStateInitial {
		return r.seed(out.Payload)
	}
	if !r.synced {
		return false
	}

	switch p := out.Payload.(type) {
	case []models.User:
		r.users = append([]models.User(nil), p...)
		return true
	case models.User:
		if out.Event == protocol.EventUserLeft {
			return r.removeOnline(p.ID)
		}
		joined := r.addOnline(p)
		return r.appendUser(p) || joined
	case models.Project:
		if out.Event == protocol.EventProjectCreated {
			return r.appendProject(p)
		}
		return r.replaceProject(p)
	case protocol.MessageReceived:
		return r.appendMessage(p.TeamID, p.Message)
	case protocol.FileAdded:
		return r.withProject(p.ProjectID, func(proj *models.Project) bool {
			if proj.FindFile(p.File.ID) != nil {
				return false
			}
			proj.Files = append(proj.Files, p.File)
			return true
		})
	case protocol.FileUpdated:
		return r.withProject(p.ProjectID, func(proj *models.Project) bool {
			f := proj.FindFile(p.FileID)
			if f == nil {
				return false
			}
			f.Content = p.Content
			return true
		})
	case protocol.TaskAdded:
		return r.withProject(p.ProjectID, func(proj *models.Project) bool {
			if proj.FindTask(p.Task.ID) != nil {
				return false
			}
			proj.Tasks = append(proj.Tasks, p.Task)
			proj.Progress = p.Progress
			return true
		})
	case protocol.TaskToggled:
		return r.withProject(p.ProjectID, func(proj *models.Project) bool {
			t := proj.FindTask(p.TaskID)
			if t == nil {
				return false
			}
			t.Completed = p.Completed
			proj.Progress = p.Progress
			return true
		})
	}
	return false
}

// ApplyFrame decodes a wire frame and applies it.
func (r *Reconciler) ApplyFrame(frame []byte) (protocol.Outbound, bool, error) {
	out, err := protocol.DecodeOutbound(frame)
	if err != nil {
		return out, false, err
	}
	return out, r.Apply(out), nil
}

func (r *Reconciler) seed(payload interface{}) bool {
	if r.synced {
		return false
	}
	initial, ok := payload.(protocol.InitialState)
	if !ok {
		return false
	}

	snap := &models.Snapshot{
		Projects:     initial.Projects,
		Users:        initial.Users,
		ChatMessages: initial.ChatMessages,
	}
	snap.Normalize()
	snap = snap.Clone()

	r.projects = snap.Projects
	r.users = snap.Users
	r.messages = snap.ChatMessages
	r.synced = true
	return true
}

func (r *Reconciler) appendUser(u models.User) bool {
	for _, existing := range r.users {
		if existing.ID == u.ID {
			return false
		}
	}
	r.users = append(r.users, u)
	return true
}

func (r *Reconciler) addOnline(u models.User) bool {
	for _, existing := range r.online {
		if existing.ID == u.ID {
			return false
		}
	}
	r.online = append(r.online, u)
	return true
}

func (r *Reconciler) removeOnline(userID string) bool {
	for i, u := range r.online {
		if u.ID == userID {
			r.online = append(r.online[:i], r.online[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Reconciler) appendProject(p models.Project) bool {
	if r.findProject(p.ID) != nil {
		return false
	}
	p.Normalize()
	r.projects = append(r.projects, p.Clone())
	return true
}

func (r *Reconciler) replaceProject(p models.Project) bool {
	existing := r.findProject(p.ID)
	if existing == nil {
		return false
	}
	p.Normalize()
	*existing = p.Clone()
	return true
}

func (r *Reconciler) appendMessage(teamID string, m models.ChatMessage) bool {
	for _, existing := range r.messages[teamID] {
		if m.ID != "" && existing.ID == m.ID {
			return false
		}
	}
	r.messages[teamID] = append(r.messages[teamID], m)
	return true
}

func (r *Reconciler) withProject(id string, fn func(p *models.Project) bool) bool {
	p := r.findProject(id)
	if p == nil {
		return false
	}
	return fn(p)
}

func (r *Reconciler) findProject(id string) *models.Project {
	for i := range r.projects {
		if r.projects[i].ID == id {
			return &r.projects[i]
		}
	}
	return nil
}

// LeaderAllowed reports whether p's leader is a mirrored member of p's team,
// the same check the server applies to creates and updates.
func (r *Reconciler) LeaderAllowed(p *models.Project) bool {
	if p.LeaderID == "" {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.users {
		if r.users[i].ID == p.LeaderID {
			return r.users[i].InTeam(p.TeamID)
		}
	}
	return false
}

// State returns a copy of the mirrored snapshot.
func (r *Reconciler) State() *models.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := &models.Snapshot{
		Projects:     r.projects,
		Users:        r.users,
		ChatMessages: r.messages,
	}
	return snap.Clone()
}

func (r *Reconciler) Project(id string) (models.Project, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.findProject(id)
	if p == nil {
		return models.Project{}, false
	}
	return p.Clone(), true
}

// Online lists users seen joining and not yet seen leaving on this
// connection, in join order.
func (r *Reconciler) Online() []models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.User(nil), r.online...)
}
