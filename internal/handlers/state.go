package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/teamsync/internal/services"
	"github.com/huangang/teamsync/pkg/response"
)

type StateHandler struct {
	store *services.StateStore
}

func NewStateHandler(store *services.StateStore) *StateHandler {
	return &StateHandler{store: store}
}

// GetState returns the current snapshot
// GET /api/state
func (h *StateHandler) GetState(c *gin.Context) {
	response.Success(c, h.store.Snapshot())
}

// GetTeamUsers lists the members of a team
// GET /api/teams/:teamId/users
func (h *StateHandler) GetTeamUsers(c *gin.Context) {
	response.Success(c, h.store.TeamUsers(c.Param("teamId")))
}
