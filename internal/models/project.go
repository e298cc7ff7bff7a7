package models

import "math"

// Project is a team's unit of work. Files and Tasks keep insertion order.
type Project struct {
	ID          string        `json:"id"`
	TeamID      string        `json:"teamId"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Files       []ProjectFile `json:"files"`
	LeaderID    string        `json:"leaderId,omitempty"`
	Progress    int           `json:"progress"`
	Tasks       []Task        `json:"tasks"`
}

type ProjectFile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Content  string `json:"content"`
}

type Task struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// ComputeProgress returns round(100*completed/total), or 0 with no tasks.
func ComputeProgress(tasks []Task) int {
	if len(tasks) == 0 {
		return 0
	}
	completed := 0
	for _, t := range tasks {
		if t.Completed {
			completed++
		}
	}
	return int(math.Round(float64(completed) * 100 / float64(len(tasks))))
}

// RecomputeProgress refreshes Progress from the task list.
func (p *Project) RecomputeProgress() {
	p.Progress = ComputeProgress(p.Tasks)
}

// Normalize replaces nil lists with empty ones so they serialize as [].
func (p *Project) Normalize() {
	if p.Files == nil {
		p.Files = []ProjectFile{}
	}
	if p.Tasks == nil {
		p.Tasks = []Task{}
	}
}

func (p *Project) FindFile(id string) *ProjectFile {
	for i := range p.Files {
		if p.Files[i].ID == id {
			return &p.Files[i]
		}
	}
	return nil
}

func (p *Project) FindTask(id string) *Task {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return &p.Tasks[i]
		}
	}
	return nil
}

// Clone returns a deep copy.
func (p *Project) Clone() Project {
	out := *p
	out.Files = append([]ProjectFile{}, p.Files...)
	out.Tasks = append([]Task{}, p.Tasks...)
	return out
}
