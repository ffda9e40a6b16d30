package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/crmcore/internal/document"
	"github.com/MarcoPoloResearchLab/crmcore/internal/events"
	"github.com/MarcoPoloResearchLab/crmcore/internal/ordering"
	"github.com/MarcoPoloResearchLab/crmcore/internal/replica"
)

const defaultHeartbeatInterval = 25 * time.Second

var (
	errMissingReplica  = errors.New("replica dependency required")
	errMissingRealtime = errors.New("realtime dispatcher dependency required")
)

type Dependencies struct {
	Replica           *replica.Replica
	Realtime          *RealtimeDispatcher
	Logger            *zap.Logger
	HeartbeatInterval time.Duration
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Replica == nil {
		return nil, errMissingReplica
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
	router.Use(corsMiddleware())

	handler := &httpHandler{
		replica:   deps.Replica,
		realtime:  deps.Realtime,
		logger:    logger,
		heartbeat: heartbeat,
	}

	router.POST("/events", handler.handleDispatch)
	router.GET("/events", handler.handleListEvents)
	router.POST("/sync", handler.handleSync)
	router.POST("/rebuild", handler.handleRebuild)
	router.GET("/document", handler.handleDocument)
	router.GET("/document/fingerprint", handler.handleFingerprint)
	router.GET("/rejections", handler.handleRejections)
	router.GET("/stream", handler.handleStream)
	router.GET("/stream/:family", handler.handleStream)

	router.GET("/organizations", listHandler(handler, document.Document.AllOrganizations))
	router.GET("/organizations/:id", itemHandler(handler, events.FamilyOrganization, document.Document.Organization))
	router.GET("/organizations/:id/accounts", childHandler(handler, document.Document.AccountsForOrganization))
	router.GET("/organizations/:id/contacts", childHandler(handler, document.Document.ContactsForOrganization))
	router.GET("/organizations/:id/notes", childHandler(handler, document.Document.NotesForOrganization))
	router.GET("/organizations/:id/interactions", childHandler(handler, document.Document.InteractionsForOrganization))
	router.GET("/accounts", listHandler(handler, document.Document.AllAccounts))
	router.GET("/accounts/:id", itemHandler(handler, events.FamilyAccount, document.Document.Account))
	router.GET("/accounts/:id/contacts", childHandler(handler, document.Document.ContactsForAccount))
	router.GET("/accounts/:id/links", childHandler(handler, document.Document.AccountContactLinks))
	router.GET("/contacts", listHandler(handler, document.Document.AllContacts))
	router.GET("/contacts/:id", itemHandler(handler, events.FamilyContact, document.Document.Contact))
	router.GET("/notes", listHandler(handler, document.Document.AllNotes))
	router.GET("/notes/:id", itemHandler(handler, events.FamilyNote, document.Document.Note))
	router.GET("/interactions", listHandler(handler, document.Document.AllInteractions))
	router.GET("/interactions/:id", itemHandler(handler, events.FamilyInteraction, document.Document.Interaction))
	router.GET("/links/:family/:id", handler.handleEntityLinks)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Last-Event-ID"},
		MaxAge:       12 * time.Hour,
	})
}

type httpHandler struct {
	replica   *replica.Replica
	realtime  *RealtimeDispatcher
	logger    *zap.Logger
	heartbeat time.Duration
}

type batchRequestPayload struct {
	Events []json.RawMessage `json:"events"`
}

type eventsResponsePayload struct {
	Events  []events.Event `json:"events"`
	Pending int            `json:"pending"`
}

type syncResponsePayload struct {
	replica.MergeResult
	Error string `json:"error,omitempty"`
}

type fingerprintResponsePayload struct {
	DeviceID    string         `json:"deviceId"`
	Fingerprint string         `json:"fingerprint"`
	Events      int            `json:"events"`
	Counts      map[string]int `json:"counts"`
}

type streamPayload struct {
	Families  []events.Family `json:"families"`
	EventIDs  []string        `json:"eventIds,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Source    string          `json:"source"`
}

func (h *httpHandler) handleDispatch(c *gin.Context) {
	batch, status, failure := decodeBatch(c)
	if failure != nil {
		c.JSON(status, failure)
		return
	}

	result, err := h.replica.Dispatch(c.Request.Context(), batch)
	if err != nil {
		var eventErr *events.EventError
		if errors.As(err, &eventErr) {
			c.JSON(http.StatusUnprocessableEntity, result)
			return
		}
		h.logger.Error("failed to dispatch events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "dispatch_failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleListEvents(c *gin.Context) {
	c.JSON(http.StatusOK, eventsResponsePayload{
		Events:  h.replica.Events(),
		Pending: len(h.replica.Pending()),
	})
}

func (h *httpHandler) handleSync(c *gin.Context) {
	batch, status, failure := decodeBatch(c)
	if failure != nil {
		c.JSON(status, failure)
		return
	}

	result, err := h.replica.Merge(c.Request.Context(), batch)
	if err != nil {
		var dangling *ordering.DanglingDependencyError
		if errors.As(err, &dangling) {
			c.JSON(http.StatusAccepted, syncResponsePayload{MergeResult: result, Error: err.Error()})
			return
		}
		var eventErr *events.EventError
		if errors.As(err, &eventErr) {
			c.JSON(http.StatusUnprocessableEntity, replica.DispatchResult{Success: false, Error: eventErr.Error(), Kind: events.Kind(err)})
			return
		}
		h.logger.Error("failed to merge events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync_failed"})
		return
	}
	c.JSON(http.StatusOK, syncResponsePayload{MergeResult: result})
}

func (h *httpHandler) handleRebuild(c *gin.Context) {
	result, err := h.replica.Rebuild(c.Request.Context())
	if err != nil {
		var dangling *ordering.DanglingDependencyError
		if !errors.As(err, &dangling) {
			h.logger.Error("failed to rebuild document", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "rebuild_failed"})
			return
		}
		c.JSON(http.StatusOK, syncResponsePayload{MergeResult: result, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, syncResponsePayload{MergeResult: result})
}

func (h *httpHandler) handleDocument(c *gin.Context) {
	canonical, err := document.Canonical(h.replica.Document())
	if err != nil {
		h.logger.Error("failed to encode document", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encode_failed"})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", canonical)
}

func (h *httpHandler) handleFingerprint(c *gin.Context) {
	doc := h.replica.Document()
	fingerprint, err := document.Fingerprint(doc)
	if err != nil {
		h.logger.Error("failed to fingerprint document", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encode_failed"})
		return
	}
	c.JSON(http.StatusOK, fingerprintResponsePayload{
		DeviceID:    h.replica.DeviceID(),
		Fingerprint: fingerprint,
		Events:      len(h.replica.Events()),
		Counts:      doc.Counts(),
	})
}

func (h *httpHandler) handleRejections(c *gin.Context) {
	rejected := h.replica.Rejected()
	if rejected == nil {
		rejected = []document.Rejection{}
	}
	c.JSON(http.StatusOK, rejected)
}

func (h *httpHandler) handleEntityLinks(c *gin.Context) {
	ref := events.EntityRef{Type: events.Family(c.Param("family")), ID: c.Param("id")}
	if !ref.Type.Linkable() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_family"})
		return
	}
	c.JSON(http.StatusOK, h.replica.Document().LinksForEntity(ref))
}

// handleStream serves server-sent events for one or more families, named by
// the path segment and repeated family query parameters, each comma-separated.
func (h *httpHandler) handleStream(c *gin.Context) {
	families, ok := streamFamilies(append([]string{c.Param("family")}, c.QueryArray("family")...))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_family"})
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, families...)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, streamPayload{
				Families:  message.Families,
				EventIDs:  message.EventIDs,
				Timestamp: message.Timestamp.UnixMilli(),
				Source:    realtimeSourceReplica,
			})
			return true
		case tick := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, streamPayload{
				Families:  families,
				Timestamp: tick.UnixMilli(),
				Source:    realtimeSourceReplica,
			})
			return true
		}
	})
}

func streamFamilies(values []string) ([]events.Family, bool) {
	var families []events.Family
	for _, value := range values {
		for _, name := range strings.Split(value, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			family := events.Family(name)
			if !family.Valid() {
				return nil, false
			}
			if !slices.Contains(families, family) {
				families = append(families, family)
			}
		}
	}
	return families, len(families) > 0
}

func listHandler[T any](h *httpHandler, list func(document.Document) []T) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, list(h.replica.Document()))
	}
}

func childHandler[T any](h *httpHandler, list func(document.Document, string) []T) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, list(h.replica.Document(), c.Param("id")))
	}
}

func itemHandler[T any](h *httpHandler, family events.Family, lookup func(document.Document, string) (T, bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		doc := h.replica.Document()
		record, found := lookup(doc, id)
		if found {
			c.JSON(http.StatusOK, record)
			return
		}
		if doc.Deleted(events.KeyOf(family, id)) {
			c.JSON(http.StatusGone, gin.H{"error": "deleted", "kind": events.KindEntityDeleted})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "kind": events.KindEntityNotFound})
	}
}

// decodeBatch reads {"events": [...]} and decodes each event in turn.
// A malformed event is reported the way a rejected dispatch is.
func decodeBatch(c *gin.Context) ([]events.Event, int, any) {
	var request batchRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Events) == 0 {
		return nil, http.StatusBadRequest, gin.H{"error": "invalid_request"}
	}
	batch := make([]events.Event, 0, len(request.Events))
	for index, raw := range request.Events {
		var event events.Event
		if err := json.Unmarshal(raw, &event); err != nil {
			return nil, http.StatusUnprocessableEntity, replica.DispatchResult{
				Success: false,
				Error:   fmt.Sprintf("event %d: %v", index, err),
				Kind:    events.Kind(err),
			}
		}
		batch = append(batch, event)
	}
	return batch, 0, nil
}
