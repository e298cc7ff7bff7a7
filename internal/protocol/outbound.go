package protocol

import "github.com/huangang/teamsync/internal/models"

// Outbound event names (server to client).
const (
	EventStateInitial    = "state:initial"
	EventStateUsers      = "state:users"
	EventUserJoined      = "user:joined"
	EventUserLeft        = "user:left"
	EventProjectCreated  = "project:created"
	EventProjectUpdated  = "project:updated"
	EventMessageReceived = "message:received"
	EventFileAdded       = "file:added"
	EventFileUpdated     = "file:updated"
	EventTaskAdded       = "task:added"
	EventTaskToggled     = "task:toggled"
)

// Outbound is one server-originated event. Payload is marshaled as the
// envelope's data field.
type Outbound struct {
	Event   string
	Payload interface{}
}

// InitialState is sent once per connection, before anything else.
type InitialState struct {
	Projects     []models.Project                `json:"projects"`
	Users        []models.User                   `json:"users"`
	ChatMessages map[string][]models.ChatMessage `json:"chatMessages"`
}

type MessageReceived struct {
	TeamID  string             `json:"teamId"`
	Message models.ChatMessage `json:"message"`
}

type FileAdded struct {
	ProjectID string             `json:"projectId"`
	File      models.ProjectFile `json:"file"`
}

type FileUpdated struct {
	ProjectID string `json:"projectId"`
	FileID    string `json:"fileId"`
	Content   string `json:"content"`
}

type TaskAdded struct {
	ProjectID string      `json:"projectId"`
	Task      models.Task `json:"task"`
	Progress  int         `json:"progress"`
}

type TaskToggled struct {
	ProjectID string `json:"projectId"`
	TaskID    string `json:"taskId"`
	Completed bool   `json:"completed"`
	Progress  int    `json:"progress"`
}

func NewInitialState(snap *models.Snapshot) Outbound {
	return Outbound{Event: EventStateInitial, Payload: InitialState{
		Projects:     snap.Projects,
		Users:        snap.Users,
		ChatMessages: snap.ChatMessages,
	}}
}

func NewUsersList(users []models.User) Outbound {
	return Outbound{Event: EventStateUsers, Payload: users}
}

func NewUserJoined(u models.User) Outbound {
	return Outbound{Event: EventUserJoined, Payload: u}
}

func NewUserLeft(u models.User) Outbound {
	return Outbound{Event: EventUserLeft, Payload: u}
}

func NewProjectCreated(p models.Project) Outbound {
	return Outbound{Event: EventProjectCreated, Payload: p}
}

func NewProjectUpdated(p models.Project) Outbound {
	return Outbound{Event: EventProjectUpdated, Payload: p}
}

func NewMessageReceived(teamID string, m models.ChatMessage) Outbound {
	return Outbound{Event: EventMessageReceived, Payload: MessageReceived{TeamID: teamID, Message: m}}
}

func NewFileAdded(projectID string, f models.ProjectFile) Outbound {
	return Outbound{Event: EventFileAdded, Payload: FileAdded{ProjectID: projectID, File: f}}
}

func NewFileUpdated(projectID, fileID, content string) Outbound {
	return Outbound{Event: EventFileUpdated, Payload: FileUpdated{ProjectID: projectID, FileID: fileID, Content: content}}
}

func NewTaskAdded(projectID string, t models.Task, progress int) Outbound {
	return Outbound{Event: EventTaskAdded, Payload: TaskAdded{ProjectID: projectID, Task: t, Progress: progress}}
}

func NewTaskToggled(projectID, taskID string, completed bool, progress int) Outbound {
	return Outbound{Event: EventTaskToggled, Payload: TaskToggled{
		ProjectID: projectID,
		TaskID:    taskID,
		Completed: completed,
		Progress:  progress,
	}}
}
