// Package protocol defines the realtime event taxonomy shared by the server
// router and the client reconciler.
//
// Client-originated events form a closed set. Each variant dispatches itself
// to the matching method of Handler, so adding a variant without teaching
// every Handler about it fails to compile.
package protocol

import (
	"encoding/json"
	"errors"

	"github.com/huangang/teamsync/internal/models"
)

// Inbound event names (client to server).
const (
	EventUserJoin       = "user:join"
	EventUserLogout     = "user:logout"
	EventUserSelectTeam = "user:selectTeam"
	EventProjectCreate  = "project:create"
	EventProjectUpdate  = "project:update"
	EventMessageSend    = "message:send"
	EventFileAdd        = "file:add"
	EventFileUpdate     = "file:update"
	EventTaskAdd        = "task:add"
	EventTaskToggle     = "task:toggle"

	// EventDisconnect never travels on the wire; the transport synthesizes it.
	EventDisconnect = "disconnect"
)

// ErrMissingField reports a payload without a required identifier.
var ErrMissingField = errors.New("missing required field")

// Inbound is one client-originated event.
type Inbound interface {
	Kind() string
	Accept(origin string, h Handler)
	validate() error
}

// Handler receives every inbound variant.
type Handler interface {
	HandleJoin(origin string, ev *Join)
	HandleLogout(origin string, ev *Logout)
	HandleSelectTeam(origin string, ev *SelectTeam)
	HandleCreateProject(origin string, ev *CreateProject)
	HandleUpdateProject(origin string, ev *UpdateProject)
	HandleSendMessage(origin string, ev *SendMessage)
	HandleAddFile(origin string, ev *AddFile)
	HandleUpdateFile(origin string, ev *UpdateFile)
	HandleAddTask(origin string, ev *AddTask)
	HandleToggleTask(origin string, ev *ToggleTask)
	HandleDisconnect(origin string, ev *Disconnect)
}

// Join announces the user behind a channel. The payload is the user itself.
type Join struct {
	models.User
}

func (*Join) Kind() string { return EventUserJoin }
func (e *Join) Accept(origin string, h Handler) { h.HandleJoin(origin, e) }
func (e *Join) validate() error { return require(e.ID) }

// Logout carries the departing user id. On the wire it is a bare string;
// an object with userId is accepted too.
type Logout struct {
	UserID string `json:"userId"`
}

func (*Logout) Kind() string { return EventUserLogout }
func (e *Logout) Accept(origin string, h Handler) { h.HandleLogout(origin, e) }
func (e *Logout) validate() error { return require(e.UserID) }

func (e *Logout) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		e.UserID = id
		return nil
	}
	type plain Logout
	return json.Unmarshal(data, (*plain)(e))
}

func (e Logout) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.UserID)
}

type SelectTeam struct {
	UserID string `json:"userId"`
	TeamID string `json:"teamId"`
}

func (*SelectTeam) Kind() string { return EventUserSelectTeam }
func (e *SelectTeam) Accept(origin string, h Handler) { h.HandleSelectTeam(origin, e) }
func (e *SelectTeam) validate() error { return require(e.UserID, e.TeamID) }

// CreateProject carries a project draft; any id on it is replaced.
type CreateProject struct {
	models.Project
}

func (*CreateProject) Kind() string { return EventProjectCreate }
func (e *CreateProject) Accept(origin string, h Handler) { h.HandleCreateProject(origin, e) }
func (e *CreateProject) validate() error { return require(e.TeamID) }

// UpdateProject replaces a project wholesale.
type UpdateProject struct {
	models.Project
}

func (*UpdateProject) Kind() string { return EventProjectUpdate }
func (e *UpdateProject) Accept(origin string, h Handler) { h.HandleUpdateProject(origin, e) }
func (e *UpdateProject) validate() error { return require(e.ID) }

type SendMessage struct {
	TeamID  string             `json:"teamId"`
	Message models.ChatMessage `json:"message"`
}

func (*SendMessage) Kind() string { return EventMessageSend }
func (e *SendMessage) Accept(origin string, h Handler) { h.HandleSendMessage(origin, e) }
func (e *SendMessage) validate() error { return require(e.TeamID) }

type AddFile struct {
	ProjectID string             `json:"projectId"`
	File      models.ProjectFile `json:"file"`
}

func (*AddFile) Kind() string { return EventFileAdd }
func (e *AddFile) Accept(origin string, h Handler) { h.HandleAddFile(origin, e) }
func (e *AddFile) validate() error { return require(e.ProjectID) }

type UpdateFile struct {
	ProjectID string `json:"projectId"`
	FileID    string `json:"fileId"`
	Content   string `json:"content"`
}

func (*UpdateFile) Kind() string { return EventFileUpdate }
func (e *UpdateFile) Accept(origin string, h Handler) { h.HandleUpdateFile(origin, e) }
func (e *UpdateFile) validate() error { return require(e.ProjectID, e.FileID) }

type AddTask struct {
	ProjectID string      `json:"projectId"`
	Task      models.Task `json:"task"`
}

func (*AddTask) Kind() string { return EventTaskAdd }
func (e *AddTask) Accept(origin string, h Handler) { h.HandleAddTask(origin, e) }
func (e *AddTask) validate() error { return require(e.ProjectID) }

type ToggleTask struct {
	ProjectID string `json:"projectId"`
	TaskID    string `json:"taskId"`
}

func (*ToggleTask) Kind() string { return EventTaskToggle }
func (e *ToggleTask) Accept(origin string, h Handler) { h.HandleToggleTask(origin, e) }
func (e *ToggleTask) validate() error { return require(e.ProjectID, e.TaskID) }

// Disconnect is raised by the transport when a channel closes.
type Disconnect struct{}

func (*Disconnect) Kind() string { return EventDisconnect }
func (e *Disconnect) Accept(origin string, h Handler) { h.HandleDisconnect(origin, e) }
func (*Disconnect) validate() error { return nil }

func require(fields ...string) error {
	for _, f := range fields {
		if f == "" {
			return ErrMissingField
		}
	}
	return nil
}

// inboundFactories lists the variants that may arrive over the wire.
var inboundFactories = map[string]func() Inbound{
	EventUserJoin:       func() Inbound { return &Join{} },
	EventUserLogout:     func() Inbound { return &Logout{} },
	EventUserSelectTeam: func() Inbound { return &SelectTeam{} },
	EventProjectCreate:  func() Inbound { return &CreateProject{} },
	EventProjectUpdate:  func() Inbound { return &UpdateProject{} },
	EventMessageSend:    func() Inbound { return &SendMessage{} },
	EventFileAdd:        func() Inbound { return &AddFile{} },
	EventFileUpdate:     func() Inbound { return &UpdateFile{} },
	EventTaskAdd:        func() Inbound { return &AddTask{} },
	EventTaskToggle:     func() Inbound { return &ToggleTask{} },
}
