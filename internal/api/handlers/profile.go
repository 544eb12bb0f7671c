package handlers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"formfiller/internal/models"
	"formfiller/pkg/response"
)

func (h *Handler) GetProfiles(c *gin.Context) {
	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", 10)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	profiles, err := h.store.ListProfiles(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	total := len(profiles)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	list := profiles[start:end]
	if list == nil {
		list = []models.Profile{}
	}
	response.Page(c, list, int64(total), page, pageSize)
}

func (h *Handler) GetProfile(c *gin.Context) {
	profile, err := h.store.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"profile":        profile,
		"custom_actions": profile.CustomActions(),
	})
}

// CreateProfile stores an action log that was recorded elsewhere, e.g. an
// exported profile.
func (h *Handler) CreateProfile(c *gin.Context) {
	var req struct {
		Name    string          `json:"name" binding:"required,min=1,max=200"`
		URL     string          `json:"url"`
		Actions []models.Action `json:"actions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	profile, err := models.NewProfile(uuid.New().String(), req.Name, req.URL, req.Actions)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.store.UpsertProfile(c.Request.Context(), profile); err != nil {
		h.fail(c, err)
		return
	}
	response.SuccessWithMessage(c, "profile created", profile)
}

// UpdateProfile renames a profile and edits its actions: payload overrides,
// data column bindings and removals.
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req struct {
		Name      *string           `json:"name" binding:"omitempty,min=1,max=200"`
		URL       *string           `json:"url"`
		Overrides []models.Override `json:"overrides" binding:"dive"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	profile, err := h.store.GetProfile(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if req.Name != nil {
		profile.Name = *req.Name
	}
	if req.URL != nil {
		profile.URL = *req.URL
	}
	if err := profile.ApplyOverrides(req.Overrides); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.store.UpsertProfile(ctx, profile); err != nil {
		if errors.Is(err, models.ErrEmptyProfile) {
			response.BadRequest(c, err.Error())
			return
		}
		h.fail(c, err)
		return
	}
	response.SuccessWithMessage(c, "profile updated", profile)
}

func (h *Handler) DeleteProfile(c *gin.Context) {
	if err := h.store.DeleteProfile(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	response.SuccessWithMessage(c, "profile deleted", nil)
}

// ReplayProfile fills a profile into an open session. Data, when given, is
// one pasted spreadsheet row feeding the profile's custom actions. The replay
// runs in the background; its run record and the session's websocket report
// how it went.
func (h *Handler) ReplayProfile(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id" binding:"required"`
		Data      string `json:"data"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	profile, err := h.store.GetProfile(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	session, err := h.manager.Session(req.SessionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if session.Status.Recording {
		response.Conflict(c, "session is recording; stop it before replaying")
		return
	}

	row, err := models.ParseDataRow(req.Data)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	actions := profile.ActionsWithData(row)

	run, err := h.runs.Begin(ctx, profile.ID, session.URL, len(actions))
	if err != nil {
		h.fail(c, err)
		return
	}

	started := *run
	go func() {
		result, err := h.manager.Replay(context.Background(), req.SessionID, actions)
		h.runs.Finish(run, result, err)
	}()

	response.SuccessWithMessage(c, "replay started", started)
}

func (h *Handler) GetProfileRuns(c *gin.Context) {
	runs, err := h.store.ListRuns(c.Request.Context(), c.Param("id"), queryInt(c, "limit", 50))
	if err != nil {
		h.fail(c, err)
		return
	}
	if runs == nil {
		runs = []models.Run{}
	}
	response.Success(c, runs)
}
