package services

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/huangang/teamsync/internal/models"
	"github.com/huangang/teamsync/internal/protocol"
	"github.com/huangang/teamsync/pkg/logger"
	"github.com/rs/zerolog"
)

// EventRouter applies client events to the store and fans the resulting
// server events out according to the policy table. Events are handled one
// at a time, each to completion, so every channel observes the same order.
type EventRouter struct {
	mu       sync.Mutex
	store    *StateStore
	presence *SessionRegistry
	hub      Broadcaster
	policies protocol.PolicyTable
	log      zerolog.Logger

	newID func(prefix string) string
	now   func() time.Time
}

var _ protocol.Handler = (*EventRouter)(nil)

func NewEventRouter(store *StateStore, presence *SessionRegistry, hub Broadcaster, policies protocol.PolicyTable) *EventRouter {
	if policies == nil {
		policies = protocol.DefaultPolicies()
	}
	return &EventRouter{
		store:    store,
		presence: presence,
		hub:      hub,
		policies: policies,
		log:      logger.With("router"),
		newID:    func(prefix string) string { return prefix + "_" + uuid.NewString() },
		now:      time.Now,
	}
}

// Connect subscribes channelID and queues the full snapshot as its first
// frame. Holding the router lock guarantees no incremental event lands
// ahead of, or is missing from, that snapshot.
func (r *EventRouter) Connect(channelID string) <-chan []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	queue := r.hub.Subscribe(channelID)
	r.hub.Send(channelID, protocol.NewInitialState(r.store.Snapshot()))
	r.log.Debug().Str("channel", channelID).Msg("channel connected")
	return queue
}

// Handle dispatches one inbound event originating from channel origin.
func (r *EventRouter) Handle(origin string, ev protocol.Inbound) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.Accept(origin, r)
}

func (r *EventRouter) publish(origin string, out protocol.Outbound) {
	exclude := ""
	if r.policies.For(out.Event) == protocol.BroadcastOthers {
		exclude = origin
	}
	r.hub.Broadcast(out, exclude)
}

func (r *EventRouter) ignored(kind, origin, reason string) {
	r.log.Debug().Str("event", kind).Str("channel", origin).Str("reason", reason).Msg("event ignored")
}

func (r *EventRouter) applied(kind, origin, id string) {
	r.log.Info().Str("event", kind).Str("channel", origin).Str("id", id).Msg("event applied")
}

func (r *EventRouter) HandleJoin(origin string, ev *protocol.Join) {
	user := ev.User
	r.store.Mutate(func(snap *models.Snapshot) bool {
		if existing := findUser(snap, user.ID); existing != nil {
			user = *existing
			return false
		}
		snap.Users = append(snap.Users, user)
		return true
	})

	r.presence.Register(origin, user)
	r.applied(ev.Kind(), origin, user.ID)

	r.publish(origin, protocol.NewUserJoined(user))
	r.publish(origin, protocol.NewUsersList(r.store.Users()))
}

func (r *EventRouter) HandleLogout(origin string, ev *protocol.Logout) {
	if r.presence.UnregisterByUserID(ev.UserID) == 0 {
		r.ignored(ev.Kind(), origin, "user not online")
	}
	r.applied(ev.Kind(), origin, ev.UserID)
	r.publish(origin, protocol.NewUsersList(r.store.Users()))
}

func (r *EventRouter) HandleSelectTeam(origin string, ev *protocol.SelectTeam) {
	teamID := strings.TrimSpace(ev.TeamID)
	changed := r.store.Mutate(func(snap *models.Snapshot) bool {
		u := findUser(snap, ev.UserID)
		if u == nil || u.TeamID != "" || teamID == "" {
			return false
		}
		u.TeamID = teamID
		return true
	})
	if !changed {
		r.ignored(ev.Kind(), origin, "unknown user or team already set")
		return
	}

	r.applied(ev.Kind(), origin, ev.UserID)
	r.publish(origin, protocol.NewUsersList(r.store.Users()))
}

func (r *EventRouter) HandleCreateProject(origin string, ev *protocol.CreateProject) {
	project := ev.Project
	project.ID = r.newID("p")
	project.Normalize()
	for i := range project.Files {
		r.prepareFile(&project.Files[i])
	}
	for i := range project.Tasks {
		project.Tasks[i].ID = r.newID("task")
	}
	project.RecomputeProgress()

	var out protocol.Outbound
	changed := r.store.Mutate(func(snap *models.Snapshot) bool {
		if !r.leaderAllowed(snap, &project, origin, ev.Kind()) {
			return false
		}
		snap.Projects = append(snap.Projects, project)
		out = protocol.NewProjectCreated(project.Clone())
		return true
	})
	if !changed {
		return
	}

	r.applied(ev.Kind(), origin, project.ID)
	r.publish(origin, out)
}

func (r *EventRouter) HandleUpdateProject(origin string, ev *protocol.UpdateProject) {
	project := ev.Project
	project.Normalize()
	project.RecomputeProgress()

	var out protocol.Outbound
	changed := r.store.Mutate(func(snap *models.Snapshot) bool {
		existing := findProject(snap, project.ID)
		if existing == nil {
			r.ignored(ev.Kind(), origin, "unknown project")
			return false
		}
		if !r.leaderAllowed(snap, &project, origin, ev.Kind()) {
			return false
		}
		*existing = project
		out = protocol.NewProjectUpdated(project.Clone())
		return true
	})
	if !changed {
		return
	}

	r.applied(ev.Kind(), origin, project.ID)
	r.publish(origin, out)
}

// leaderAllowed rejects a leader who is not a member of the project's team.
func (r *EventRouter) leaderAllowed(snap *models.Snapshot, p *models.Project, origin, kind string) bool {
	if p.LeaderID == "" {
		return true
	}
	if u := findUser(snap, p.LeaderID); u != nil && u.InTeam(p.TeamID) {
		return true
	}
	r.log.Warn().
		Str("event", kind).
		Str("channel", origin).
		Str("project", p.ID).
		Str("leader", p.LeaderID).
		Msg("leader is not a member of the project team, dropping")
	return false
}

func (r *EventRouter) HandleSendMessage(origin string, ev *protocol.SendMessage) {
	msg := ev.Message
	if msg.ID == "" {
		msg.ID = r.newID("msg")
	}
	if msg.Timestamp == "" {
		msg.Timestamp = models.FormatMessageTime(r.now())
	}

	r.store.Mutate(func(snap *models.Snapshot) bool {
		snap.ChatMessages[ev.TeamID] = append(snap.ChatMessages[ev.TeamID], msg)
		return true
	})

	r.applied(ev.Kind(), origin, msg.ID)
	r.publish(origin, protocol.NewMessageReceived(ev.TeamID, msg))
}

func (r *EventRouter) HandleAddFile(origin string, ev *protocol.AddFile) {
	file := ev.File
	r.prepareFile(&file)

	changed := r.store.Mutate(func(snap *models.Snapshot) bool {
		p := findProject(snap, ev.ProjectID)
		if p == nil {
			return false
		}
		p.Files = append(p.Files, file)
		return true
	})
	if !changed {
		r.ignored(ev.Kind(), origin, "unknown project")
		return
	}

	r.applied(ev.Kind(), origin, file.ID)
	r.publish(origin, protocol.NewFileAdded(ev.ProjectID, file))
}

// prepareFile assigns a fresh id and fills empty content with boilerplate.
func (r *EventRouter) prepareFile(f *models.ProjectFile) {
	f.ID = r.newID("f")
	if f.Content == "" {
		f.Content = models.FileTemplate(f.Language, f.Name)
	}
}

func (r *EventRouter) HandleUpdateFile(origin string, ev *protocol.UpdateFile) {
	changed := r.store.Mutate(func(snap *models.Snapshot) bool {
		p := findProject(snap, ev.ProjectID)
		if p == nil {
			return false
		}
		f := p.FindFile(ev.FileID)
		if f == nil {
			return false
		}
		f.Content = ev.Content
		return true
	})
	if !changed {
		r.ignored(ev.Kind(), origin, "unknown project or file")
		return
	}

	r.applied(ev.Kind(), origin, ev.FileID)
	r.publish(origin, protocol.NewFileUpdated(ev.ProjectID, ev.FileID, ev.Content))
}

func (r *EventRouter) HandleAddTask(origin string, ev *protocol.AddTask) {
	task := ev.Task
	task.ID = r.newID("task")
	task.Completed = false

	var progress int
	changed := r.store.Mutate(func(snap *models.Snapshot) bool {
		p := findProject(snap, ev.ProjectID)
		if p == nil {
			return false
		}
		p.Tasks = append(p.Tasks, task)
		p.RecomputeProgress()
		progress = p.Progress
		return true
	})
	if !changed {
		r.ignored(ev.Kind(), origin, "unknown project")
		return
	}

	r.applied(ev.Kind(), origin, task.ID)
	r.publish(origin, protocol.NewTaskAdded(ev.ProjectID, task, progress))
}

func (r *EventRouter) HandleToggleTask(origin string, ev *protocol.ToggleTask) {
	var (
		completed bool
		progress  int
	)
	changed := r.store.Mutate(func(snap *models.Snapshot) bool {
		p := findProject(snap, ev.ProjectID)
		if p == nil {
			return false
		}
		t := p.FindTask(ev.TaskID)
		if t == nil {
			return false
		}
		t.Completed = !t.Completed
		completed = t.Completed
		p.RecomputeProgress()
		progress = p.Progress
		return true
	})
	if !changed {
		r.ignored(ev.Kind(), origin, "unknown project or task")
		return
	}

	r.applied(ev.Kind(), origin, ev.TaskID)
	r.publish(origin, protocol.NewTaskToggled(ev.ProjectID, ev.TaskID, completed, progress))
}

func (r *EventRouter) HandleDisconnect(origin string, ev *protocol.Disconnect) {
	r.hub.Unsubscribe(origin)

	user, ok := r.presence.UnregisterByChannel(origin)
	if !ok {
		r.log.Debug().Str("channel", origin).Msg("anonymous channel closed")
		return
	}

	r.applied(ev.Kind(), origin, user.ID)
	r.publish(origin, protocol.NewUserLeft(user))
}
