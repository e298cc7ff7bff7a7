package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/huangang/teamsync/internal/middleware"
	"github.com/huangang/teamsync/internal/services"
	"github.com/huangang/teamsync/pkg/logger"
	"github.com/huangang/teamsync/pkg/response"
)

type AssistantHandler struct {
	assistant *services.AssistantService
}

func NewAssistantHandler(assistant *services.AssistantService) *AssistantHandler {
	return &AssistantHandler{assistant: assistant}
}

type paperRequest struct {
	ProjectID string `json:"projectId" binding:"required"`
}

type codeRequest struct {
	Code     string `json:"code" binding:"required"`
	Language string `json:"language"`
	Question string `json:"question" binding:"required"`
}

type meetingRequest struct {
	TeamID string `json:"teamId" binding:"required"`
	Query  string `json:"query" binding:"required"`
}

type summaryRequest struct {
	TeamID string `json:"teamId" binding:"required"`
}

type assistantReply struct {
	Text string `json:"text"`
}

// Paper drafts a research paper abstract
// POST /api/assistant/paper
func (h *AssistantHandler) Paper(c *gin.Context) {
	var req paperRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	text, err := h.assistant.ResearchPaper(c.Request.Context(), req.ProjectID)
	h.reply(c, text, err)
}

// Code answers a question about a snippet
// POST /api/assistant/code
func (h *AssistantHandler) Code(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	text, err := h.assistant.CodeSuggestion(c.Request.Context(), req.Code, req.Language, req.Question)
	h.reply(c, text, err)
}

// Meeting proposes meeting slots
// POST /api/assistant/meeting
func (h *AssistantHandler) Meeting(c *gin.Context) {
	var req meetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	text, err := h.assistant.MeetingSuggestions(c.Request.Context(), req.TeamID, req.Query)
	h.reply(c, text, err)
}

// Summary summarizes team chat
// POST /api/assistant/summary
func (h *AssistantHandler) Summary(c *gin.Context) {
	var req summaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	text, err := h.assistant.SummarizeChat(c.Request.Context(), req.TeamID)
	h.reply(c, text, err)
}

func (h *AssistantHandler) reply(c *gin.Context, text string, err error) {
	if err == nil {
		response.Success(c, assistantReply{Text: text})
		return
	}

	var ae *services.AssistantError
	switch {
	case errors.As(err, &ae):
		logger.Warn().Err(ae.Err).Str("op", ae.Op).Str("user", middleware.GetUserID(c)).Msg("assistant request failed")
		response.Error(c, response.NewBadGateway(ae.Message(), ae.Err))
	case errors.Is(err, services.ErrProjectNotFound):
		response.NotFound(c, err.Error())
	default:
		response.Error(c, err)
	}
}
