package models

// Snapshot is the full persisted state. Online presence is never part of it.
type Snapshot struct {
	Projects     []Project                `json:"projects"`
	Users        []User                   `json:"users"`
	ChatMessages map[string][]ChatMessage `json:"chatMessages"`
	LastSaved    string                   `json:"lastSaved,omitempty"`
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		Projects:     []Project{},
		Users:        []User{},
		ChatMessages: map[string][]ChatMessage{},
	}
}

// Normalize fills nil collections so a decoded document behaves like a
// fresh one.
func (s *Snapshot) Normalize() {
	if s.Projects == nil {
		s.Projects = []Project{}
	}
	if s.Users == nil {
		s.Users = []User{}
	}
	if s.ChatMessages == nil {
		s.ChatMessages = map[string][]ChatMessage{}
	}
	for i := range s.Projects {
		s.Projects[i].Normalize()
	}
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		Projects:     make([]Project, len(s.Projects)),
		Users:        append([]User{}, s.Users...),
		ChatMessages: make(map[string][]ChatMessage, len(s.ChatMessages)),
		LastSaved:    s.LastSaved,
	}
	for i, p := range s.Projects {
		out.Projects[i] = p.Clone()
	}
	for team, msgs := range s.ChatMessages {
		out.ChatMessages[team] = append([]ChatMessage{}, msgs...)
	}
	return out
}

func (s *Snapshot) MessageCount() int {
	n := 0
	for _, msgs := range s.ChatMessages {
		n += len(msgs)
	}
	return n
}
