package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/replay/internal/audio"
	"github.com/MarcoPoloResearchLab/replay/internal/auth"
	"github.com/MarcoPoloResearchLab/replay/internal/editor"
	"github.com/MarcoPoloResearchLab/replay/internal/recording"
	"github.com/MarcoPoloResearchLab/replay/internal/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	userIDContextKey         = "replay_user_id"
	chunkSequenceHeader      = "X-Chunk-Sequence"
	defaultHeartbeatInterval = 15 * time.Second
	maxChunkBytes            = 4 << 20
)

var (
	errMissingSession       = errors.New("session facade dependency required")
	errMissingEditor        = errors.New("editor buffer dependency required")
	errMissingRealtime      = errors.New("realtime dispatcher dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// SessionValidator validates bearer or cookie tokens.
type SessionValidator interface {
	ValidateToken(token string) (auth.SessionClaims, error)
	CookieName() string
}

type Dependencies struct {
	Session           *session.Facade
	Editor            *editor.Buffer
	Device            *audio.RemoteDevice
	Player            *audio.RemotePlayer
	Realtime          *RealtimeDispatcher
	Validator         SessionValidator
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Session == nil {
		return nil, errMissingSession
	}
	if deps.Editor == nil {
		return nil, errMissingEditor
	}
	if deps.Realtime == nil {
		return nil, errMissingRealtime
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins...))

	handler := &httpHandler{
		session:           deps.Session,
		editor:            deps.Editor,
		device:            deps.Device,
		player:            deps.Player,
		realtime:          deps.Realtime,
		validator:         deps.Validator,
		heartbeatInterval: heartbeat,
		logger:            logger,
	}

	router.GET("/healthz", handler.handleHealth)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.GET("/session", handler.handleSessionState)
	protected.GET("/session/events", handler.handleSessionEvents)
	protected.POST("/session/recording/start", handler.handleStartRecording)
	protected.POST("/session/recording/stop", handler.handleStopRecording)
	protected.GET("/session/editor", handler.handleEditorContent)
	protected.POST("/session/editor/change", handler.handleEditorChange)
	protected.POST("/session/audio/chunks", handler.handleAudioChunk)
	protected.POST("/session/audio/position", handler.handleAudioPosition)
	protected.POST("/session/audio/ended", handler.handleAudioEnded)
	protected.POST("/session/playback/load", handler.handleLoadRecording)
	protected.POST("/session/playback/play", handler.handlePlay)
	protected.POST("/session/playback/pause", handler.handlePause)
	protected.POST("/session/playback/stop", handler.handleStop)
	protected.POST("/session/playback/seek", handler.handleSeek)

	protected.GET("/recordings", handler.handleListRecordings)
	protected.GET("/recordings/:id", handler.handleGetRecording)
	protected.GET("/recordings/:id/audio", handler.handleGetRecordingAudio)
	protected.DELETE("/recordings/:id", handler.handleDeleteRecording)

	return router, nil
}

func corsMiddleware(allowedOrigins ...string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type", chunkSequenceHeader},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowOrigins = []string{"*"}
	} else {
		config.AllowOrigins = allowedOrigins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

type httpHandler struct {
	session           *session.Facade
	editor            *editor.Buffer
	device            *audio.RemoteDevice
	player            *audio.RemotePlayer
	realtime          *RealtimeDispatcher
	validator         SessionValidator
	heartbeatInterval time.Duration
	logger            *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleSessionState(c *gin.Context) {
	c.JSON(http.StatusOK, newStatePayload(h.session.State()))
}

func (h *httpHandler) handleSessionEvents(c *gin.Context) {
	stream, cleanup := h.realtime.Subscribe(c.Request.Context())
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(RealtimeEventStateChanged, newStatePayload(h.session.State()))
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, message.Payload)
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{
				"source":    realtimeSourceBackend,
				"timestamp": tick.UTC().Format(time.RFC3339Nano),
			})
			return true
		}
	})
}

type startRecordingRequest struct {
	Name  string `json:"name"`
	Audio bool   `json:"audio"`
}

func (h *httpHandler) handleStartRecording(c *gin.Context) {
	var request startRecordingRequest
	if err := bindOptionalJSON(c, &request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.session.StartRecording(c.Request.Context(), session.StartOptions{
		Name:  request.Name,
		Audio: request.Audio,
	}); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newStatePayload(h.session.State()))
}

type stopRecordingRequest struct {
	Name    string `json:"name"`
	Discard bool   `json:"discard"`
}

type stopRecordingResponse struct {
	Recording summaryPayload `json:"recording"`
	Discarded bool           `json:"discarded"`
	Saved     bool           `json:"saved"`
}

func (h *httpHandler) handleStopRecording(c *gin.Context) {
	var request stopRecordingRequest
	if err := bindOptionalJSON(c, &request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	sealed, err := h.session.StopRecording(c.Request.Context(), session.StopOptions{
		Name:    request.Name,
		Discard: request.Discard,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stopRecordingResponse{
		Recording: newSummaryPayload(sealed.Summarize()),
		Discarded: request.Discard,
		Saved:     !request.Discard,
	})
}

type editorChangeRequest struct {
	Content *string `json:"content"`
}

func (h *httpHandler) handleEditorContent(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"content":  h.editor.Content(),
		"revision": h.editor.Revision(),
	})
}

func (h *httpHandler) handleEditorChange(c *gin.Context) {
	var request editorChangeRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.Content == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.editor.Edit(*request.Content)
	c.JSON(http.StatusOK, gin.H{"revision": h.editor.Revision()})
}

func (h *httpHandler) handleAudioChunk(c *gin.Context) {
	if h.device == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "audio_capture_disabled"})
		return
	}
	sequence, err := strconv.ParseUint(strings.TrimSpace(c.GetHeader(chunkSequenceHeader)), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_chunk_sequence"})
		return
	}
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxChunkBytes+1))
	if err != nil || len(data) == 0 || len(data) > maxChunkBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_chunk"})
		return
	}
	if err := h.device.Push(sequence, data); err != nil {
		h.logger.Warn("audio chunk rejected", zap.Uint64("sequence", sequence), zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{"error": "no_active_capture"})
		return
	}
	c.Status(http.StatusAccepted)
}

type audioPositionRequest struct {
	PositionMs *int64 `json:"position_ms"`
}

func (h *httpHandler) handleAudioPosition(c *gin.Context) {
	if h.player == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "audio_sync_disabled"})
		return
	}
	var request audioPositionRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.PositionMs == nil || *request.PositionMs < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	accepted := h.player.ReportPosition(*request.PositionMs)
	c.JSON(http.StatusOK, gin.H{"accepted": accepted})
}

type audioEndedRequest struct {
	PositionMs *int64 `json:"position_ms"`
}

func (h *httpHandler) handleAudioEnded(c *gin.Context) {
	if h.player == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "audio_sync_disabled"})
		return
	}
	var request audioEndedRequest
	if err := bindOptionalJSON(c, &request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	position := int64(-1)
	if request.PositionMs != nil && *request.PositionMs >= 0 {
		position = *request.PositionMs
	}
	accepted := h.player.ReportEnded(position)
	c.JSON(http.StatusOK, gin.H{"accepted": accepted})
}

type loadRecordingRequest struct {
	RecordingID string `json:"recording_id"`
}

func (h *httpHandler) handleLoadRecording(c *gin.Context) {
	var request loadRecordingRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	recordingID, err := recording.NewRecordingID(request.RecordingID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_recording_id"})
		return
	}
	if err := h.session.LoadRecordingByID(c.Request.Context(), recordingID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newStatePayload(h.session.State()))
}

func (h *httpHandler) handlePlay(c *gin.Context) {
	if err := h.session.Play(); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newStatePayload(h.session.State()))
}

func (h *httpHandler) handlePause(c *gin.Context) {
	h.session.Pause()
	c.JSON(http.StatusOK, newStatePayload(h.session.State()))
}

func (h *httpHandler) handleStop(c *gin.Context) {
	h.session.Stop()
	c.JSON(http.StatusOK, newStatePayload(h.session.State()))
}

type seekRequest struct {
	PositionMs *int64 `json:"position_ms"`
}

func (h *httpHandler) handleSeek(c *gin.Context) {
	var request seekRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.PositionMs == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if _, err := h.session.SeekTo(*request.PositionMs); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newStatePayload(h.session.State()))
}

type listRecordingsResponse struct {
	Recordings []summaryPayload `json:"recordings"`
}

func (h *httpHandler) handleListRecordings(c *gin.Context) {
	summaries, err := h.session.Recordings(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	response := listRecordingsResponse{Recordings: make([]summaryPayload, 0, len(summaries))}
	for _, summary := range summaries {
		response.Recordings = append(response.Recordings, newSummaryPayload(summary))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleGetRecording(c *gin.Context) {
	rec, ok := h.loadRecording(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newRecordingPayload(rec))
}

func (h *httpHandler) handleGetRecordingAudio(c *gin.Context) {
	rec, ok := h.loadRecording(c)
	if !ok {
		return
	}
	if !rec.HasAudio() {
		c.JSON(http.StatusNotFound, gin.H{"error": "no_audio_track"})
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", rec.AudioTrack)
}

func (h *httpHandler) handleDeleteRecording(c *gin.Context) {
	recordingID, err := recording.NewRecordingID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_recording_id"})
		return
	}
	if err := h.session.DeleteRecording(c.Request.Context(), recordingID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) loadRecording(c *gin.Context) (*recording.Recording, bool) {
	recordingID, err := recording.NewRecordingID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_recording_id"})
		return nil, false
	}
	rec, err := h.session.Recording(c.Request.Context(), recordingID)
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	return rec, true
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	status := statusForError(err)
	payload := newErrorPayload(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.String("code", payload.Code), zap.Error(err))
	}
	c.JSON(status, payload)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, recording.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, recording.ErrAlreadyRecording),
		errors.Is(err, recording.ErrNotRecording),
		errors.Is(err, recording.ErrNoRecordingLoaded),
		errors.Is(err, recording.ErrCannotDeleteActive):
		return http.StatusConflict
	case errors.Is(err, recording.ErrInvalidRecordingID),
		errors.Is(err, recording.ErrEmptyRecording),
		errors.Is(err, recording.ErrInvalidSnapshotOrder),
		errors.Is(err, recording.ErrInvalidAudioOffset):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func bindOptionalJSON(c *gin.Context, target any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(target)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	if h.validator == nil {
		c.Next()
		return
	}
	token := auth.TokenFromRequest(c.Request, h.validator.CookieName())
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.validator.ValidateToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, claims.UserID)
	c.Next()
}
