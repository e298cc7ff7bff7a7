package syncclient

import (
	"testing"

	"github.com/huangang/teamsync/internal/models"
	"github.com/huangang/teamsync/internal/protocol"
)

func seeded(t *testing.T) *Reconciler {
	t.Helper()
	snap := models.NewSnapshot()
	snap.Projects = []models.Project{{ID: "p1", TeamID: "Alpha", Name: "X"}}
	snap.Users = []models.User{{ID: "u1", Name: "Ada"}}

	r := NewReconciler()
	if !r.Apply(protocol.NewInitialState(snap)) {
		t.Fatal("first snapshot should seed")
	}
	return r
}

func TestReconciler_IgnoresEventsBeforeSnapshot(t *testing.T) {
	r := NewReconciler()

	if r.Apply(protocol.NewProjectCreated(models.Project{ID: "p1"})) {
		t.Error("event before snapshot should be dropped")
	}
	if r.Synced() {
		t.Error("should not be synced")
	}
	if len(r.State().Projects) != 0 {
		t.Error("state should be empty")
	}
}

func TestReconciler_SeedsOnce(t *testing.T) {
	r := seeded(t)

	r.Apply(protocol.NewMessageReceived("Alpha", models.ChatMessage{ID: "m1", Text: "hi"}))

	again := models.NewSnapshot()
	if r.Apply(protocol.NewInitialState(again)) {
		t.Error("second snapshot should be ignored")
	}

	state := r.State()
	if len(state.Projects) != 1 || len(state.ChatMessages["Alpha"]) != 1 {
		t.Errorf("local state was reseeded: %+v", state)
	}
}

func TestReconciler_AppendIsIdempotent(t *testing.T) {
	r := seeded(t)

	events := []protocol.Outbound{
		protocol.NewFileAdded("p1", models.ProjectFile{ID: "f1", Name: "a.py"}),
		protocol.NewFileAdded("p1", models.ProjectFile{ID: "f1", Name: "a.py"}),
		protocol.NewTaskAdded("p1", models.Task{ID: "t1"}, 0),
		protocol.NewTaskAdded("p1", models.Task{ID: "t1"}, 0),
		protocol.NewProjectCreated(models.Project{ID: "p2", TeamID: "Beta"}),
		protocol.NewProjectCreated(models.Project{ID: "p2", TeamID: "Beta"}),
		protocol.NewMessageReceived("Alpha", models.ChatMessage{ID: "m1"}),
		protocol.NewMessageReceived("Alpha", models.ChatMessage{ID: "m1"}),
		protocol.NewUserJoined(models.User{ID: "u2"}),
		protocol.NewUserJoined(models.User{ID: "u2"}),
	}
	for _, ev := range events {
		r.Apply(ev)
	}

	state := r.State()
	p, _ := r.Project("p1")
	if len(p.Files) != 1 || len(p.Tasks) != 1 {
		t.Errorf("files = %d, tasks = %d", len(p.Files), len(p.Tasks))
	}
	if len(state.Projects) != 2 {
		t.Errorf("projects = %d", len(state.Projects))
	}
	if len(state.ChatMessages["Alpha"]) != 1 {
		t.Errorf("messages = %d", len(state.ChatMessages["Alpha"]))
	}
	if len(state.Users) != 2 || len(r.Online()) != 1 {
		t.Errorf("users = %d, online = %d", len(state.Users), len(r.Online()))
	}
}

func TestReconciler_ReplaceUnknownIsNoop(t *testing.T) {
	r := seeded(t)

	tests := []struct {
		name string
		ev   protocol.Outbound
	}{
		{"project", protocol.NewProjectUpdated(models.Project{ID: "missing"})},
		{"file in unknown project", protocol.NewFileUpdated("missing", "f1", "x")},
		{"unknown file", protocol.NewFileUpdated("p1", "missing", "x")},
		{"unknown task", protocol.NewTaskToggled("p1", "missing", true, 100)},
		{"left without join", protocol.NewUserLeft(models.User{ID: "u9"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if r.Apply(tt.ev) {
				t.Error("expected no change")
			}
		})
	}

	if p, _ := r.Project("p1"); p.Progress != 0 {
		t.Errorf("progress = %d", p.Progress)
	}
}

func TestReconciler_NestedPatchLeavesSiblings(t *testing.T) {
	r := seeded(t)
	r.Apply(protocol.NewFileAdded("p1", models.ProjectFile{ID: "f1", Content: "one"}))
	r.Apply(protocol.NewFileAdded("p1", models.ProjectFile{ID: "f2", Content: "two"}))

	if !r.Apply(protocol.NewFileUpdated("p1", "f2", "TWO")) {
		t.Fatal("expected change")
	}

	p, _ := r.Project("p1")
	if p.Files[0].Content != "one" || p.Files[1].Content != "TWO" {
		t.Errorf("files = %+v", p.Files)
	}
}

func TestReconciler_ProgressScenario(t *testing.T) {
	r := seeded(t)

	steps := []struct {
		ev       protocol.Outbound
		progress int
	}{
		{protocol.NewTaskAdded("p1", models.Task{ID: "t1"}, 0), 0},
		{protocol.NewTaskAdded("p1", models.Task{ID: "t2"}, 0), 0},
		{protocol.NewTaskToggled("p1", "t1", true, 50), 50},
		{protocol.NewTaskToggled("p1", "t2", true, 100), 100},
	}

	for i, step := range steps {
		r.Apply(step.ev)
		p, _ := r.Project("p1")
		if p.Progress != step.progress {
			t.Errorf("step %d: progress = %d, expected %d", i, p.Progress, step.progress)
		}
		if p.Progress != models.ComputeProgress(p.Tasks) {
			t.Errorf("step %d: progress disagrees with tasks", i)
		}
	}
}

func TestReconciler_PresenceAndUsersList(t *testing.T) {
	r := seeded(t)

	r.Apply(protocol.NewUserJoined(models.User{ID: "u2", Name: "Ben"}))
	r.Apply(protocol.NewUsersList([]models.User{{ID: "u1"}, {ID: "u2"}, {ID: "u3"}}))
	if !r.Apply(protocol.NewUserLeft(models.User{ID: "u2"})) {
		t.Error("left should remove the online user")
	}

	if len(r.Online()) != 0 {
		t.Errorf("online = %+v", r.Online())
	}
	if users := r.State().Users; len(users) != 3 {
		t.Errorf("users = %+v", users)
	}
}

func TestReconciler_EchoFirstCreate(t *testing.T) {
	// A's own created echo and B's copy are the same server frame; either
	// order leaves one entry on each side.
	frame, err := protocol.NewProjectCreated(models.Project{ID: "p_srv", TeamID: "Alpha", Name: "X"}).Encode()
	if err != nil {
		t.Fatal(err)
	}

	a, b := seeded(t), seeded(t)
	for _, r := range []*Reconciler{a, b, a, b} {
		if _, _, err := r.ApplyFrame(frame); err != nil {
			t.Fatal(err)
		}
	}

	for name, r := range map[string]*Reconciler{"A": a, "B": b} {
		count := 0
		for _, p := range r.State().Projects {
			if p.ID == "p_srv" {
				count++
			}
		}
		if count != 1 {
			t.Errorf("%s has %d copies", name, count)
		}
	}
}

func TestReconciler_StateIsDetached(t *testing.T) {
	r := seeded(t)

	state := r.State()
	state.Projects[0].Name = "mutated"

	if p, _ := r.Project("p1"); p.Name != "X" {
		t.Errorf("name = %q", p.Name)
	}
}

func TestReconciler_LeaderAllowed(t *testing.T) {
	r := seeded(t)
	r.Apply(protocol.NewUsersList([]models.User{
		{ID: "u1", Name: "Ada", TeamID: "alpha"},
		{ID: "u2", Name: "Bo", TeamID: "Beta"},
		{ID: "u3", Name: "Cy"},
	}))

	tests := []struct {
		name   string
		leader string
		want   bool
	}{
		{"no leader", "", true},
		{"member, case-insensitive team", "u1", true},
		{"other team", "u2", false},
		{"no team", "u3", false},
		{"unknown user", "u_ghost", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := models.Project{ID: "p1", TeamID: "Alpha", LeaderID: tt.leader}
			if got := r.LeaderAllowed(&p); got != tt.want {
				t.Errorf("LeaderAllowed(%q) = %v, want %v", tt.leader, got, tt.want)
			}
		})
	}
}
