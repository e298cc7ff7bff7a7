package models

import "strings"

const (
	RoleStudent = "student"
	RoleFaculty = "faculty"
)

// User is a dashboard account. Users are never deleted; TeamID is set once
// by team selection.
type User struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"` // student, faculty
	TeamID string `json:"teamId,omitempty"`
}

// InTeam reports whether the user belongs to teamID. Team names are compared
// case-insensitively.
func (u *User) InTeam(teamID string) bool {
	return u.TeamID != "" && strings.EqualFold(u.TeamID, teamID)
}

func (u *User) NeedsTeam() bool {
	return u.Role == RoleStudent && u.TeamID == ""
}
