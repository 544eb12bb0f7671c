package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"formfiller/internal/models"
	"formfiller/internal/recorder"
	"formfiller/pkg/chrome"
	"formfiller/pkg/response"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

type sessionRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

func (h *Handler) StartRecording(c *gin.Context) {
	var req recorder.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	session, err := h.manager.StartRecording(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.SuccessWithMessage(c, "recording started", session)
}

func (h *Handler) StopRecording(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	actions, err := h.manager.StopRecording(req.SessionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if actions == nil {
		actions = []models.Action{}
	}
	response.SuccessWithMessage(c, "recording stopped", gin.H{
		"session_id": req.SessionID,
		"actions":    actions,
	})
}

func (h *Handler) GetRecordingStatus(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		response.BadRequest(c, "session_id is required")
		return
	}

	status, actions, err := h.manager.GetRecordingStatus(sessionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if actions == nil {
		actions = []models.Action{}
	}
	response.Success(c, gin.H{
		"is_recording": status.Recording,
		"action_count": status.ActionCount,
		"actions":      actions,
	})
}

func (h *Handler) ListSessions(c *gin.Context) {
	response.Success(c, h.manager.Sessions())
}

// ReplayRecording plays actions into a stopped session. Without actions in
// the body the session's own recording is replayed.
func (h *Handler) ReplayRecording(c *gin.Context) {
	var req struct {
		SessionID string          `json:"session_id" binding:"required"`
		Actions   []models.Action `json:"actions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	actions := req.Actions
	if len(actions) == 0 {
		_, recorded, err := h.manager.GetRecordingStatus(req.SessionID)
		if err != nil {
			h.fail(c, err)
			return
		}
		actions = recorded
	}

	result, err := h.manager.Replay(c.Request.Context(), req.SessionID, actions)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.SuccessWithMessage(c, result.Summary(), result)
}

func (h *Handler) SaveRecording(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id" binding:"required"`
		Name      string `json:"name" binding:"required,min=1,max=200"`
		Keep      bool   `json:"keep_session"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	session, err := h.manager.Session(req.SessionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if session.Status.Recording {
		response.BadRequest(c, "stop the recording before saving it")
		return
	}

	_, actions, err := h.manager.GetRecordingStatus(req.SessionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	profile, err := models.NewProfile(uuid.New().String(), req.Name, session.URL, actions)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.store.UpsertProfile(c.Request.Context(), profile); err != nil {
		h.fail(c, err)
		return
	}

	if !req.Keep {
		if err := h.manager.CleanupRecording(req.SessionID); err != nil {
			h.log.Warn("cleanup after save failed", zap.String("session", req.SessionID), zap.Error(err))
		}
	}
	h.log.Info("profile saved", zap.String("profile", profile.ID), zap.Int("actions", len(profile.Actions)))
	response.SuccessWithMessage(c, "profile saved", profile)
}

func (h *Handler) CloseRecording(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.manager.Session(id); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.manager.CleanupRecording(id); err != nil {
		h.fail(c, err)
		return
	}
	response.SuccessWithMessage(c, "session closed", nil)
}

// RecordingWebSocket streams a session's events. Any message from the client
// counts as a keepalive.
func (h *Handler) RecordingWebSocket(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		response.BadRequest(c, "session_id is required")
		return
	}
	if _, err := h.manager.Session(sessionID); err != nil {
		h.fail(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	events, unsubscribe := h.manager.Hub().Subscribe(sessionID)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			_ = h.manager.Ping(sessionID)
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.log.Debug("websocket write failed", zap.String("session", sessionID), zap.Error(err))
				return
			}
			if ev.Type == recorder.EventClosed {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"), time.Now().Add(wsWriteWait))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// GetDevices lists the emulation presets a session can be opened with.
func (h *Handler) GetDevices(c *gin.Context) {
	response.Success(c, gin.H{
		"default": chrome.DefaultDevice,
		"devices": chrome.DeviceNames(),
	})
}
