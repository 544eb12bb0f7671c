package handlers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"formfiller/internal/executor"
	"formfiller/internal/recorder"
	"formfiller/internal/services"
	"formfiller/internal/store"
	"formfiller/pkg/auth"
	"formfiller/pkg/database"
	"formfiller/pkg/response"
)

// Handler serves the HTTP API over the session manager and profile store.
type Handler struct {
	manager *recorder.Manager
	store   store.Store
	users   database.UserLookup
	tokens  *auth.TokenManager
	runs    *services.RunTracker
	log     *zap.Logger
	now     func() time.Time
	started time.Time
}

func New(manager *recorder.Manager, st store.Store, users database.UserLookup, tokens *auth.TokenManager, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		manager: manager,
		store:   st,
		users:   users,
		tokens:  tokens,
		runs:    services.NewRunTracker(st, log),
		log:     log.Named("api"),
		now:     time.Now,
		started: time.Now(),
	}
}

// Tokens exposes the token manager for the auth middleware.
func (h *Handler) Tokens() *auth.TokenManager { return h.tokens }

// fail maps domain errors onto the response envelope.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, recorder.ErrSessionNotFound), errors.Is(err, store.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, recorder.ErrSessionBusy), errors.Is(err, recorder.ErrAlreadyRecording),
		errors.Is(err, executor.ErrReplayInProgress), errors.Is(err, recorder.ErrTooManySessions):
		response.Conflict(c, err.Error())
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.InternalServerError(c, err.Error())
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil {
		return def
	}
	return v
}
