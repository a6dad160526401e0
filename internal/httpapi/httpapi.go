// Package httpapi registers the broker's HTTP routes and maps core errors
// to application/problem+json responses.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/helixagent/eventbroker/internal/brokererr"
	"github.com/helixagent/eventbroker/internal/streamctl"
	"github.com/helixagent/eventbroker/internal/topicrepo"
)

// CursorsHeader is the header naming the client's start cursors.
const CursorsHeader = "X-nakadi-cursors"

// Server wires the streaming controller and the repository into gin.
type Server struct {
	controller *streamctl.Controller
	registry   streamctl.EventTypeRegistry
	repo       *topicrepo.Repository
	log        *logrus.Entry
}

// NewServer creates a Server.
func NewServer(controller *streamctl.Controller, registry streamctl.EventTypeRegistry, repo *topicrepo.Repository, log *logrus.Entry) *Server {
	return &Server{
		controller: controller,
		registry:   registry,
		repo:       repo,
		log:        log,
	}
}

// RegisterRoutes attaches the broker's routes to r.
func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.handleHealth)
	r.GET("/event-types/:name/events", s.handleStreamEvents)
	r.POST("/event-types/:name/events", s.handlePostEvents)
	r.POST("/topics", s.handleCreateTopic)
	r.DELETE("/topics/:id", s.handleDeleteTopic)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// clientOf derives the authenticated principal from the headers the auth
// middleware sets. Authentication itself happens outside the core.
func clientOf(c *gin.Context) streamctl.Client {
	id := c.GetHeader("X-Client-Id")
	if id == "" {
		id = c.ClientIP()
	}
	var scopes []string
	if raw := c.GetHeader("X-Client-Scopes"); raw != "" {
		scopes = strings.Split(raw, ",")
	}
	return streamctl.Client{ID: id, Scopes: scopes}
}

func (s *Server) handleStreamEvents(c *gin.Context) {
	params, err := streamParams(c)
	if err != nil {
		writeProblem(c, http.StatusBadRequest, err.Error())
		return
	}

	req := streamctl.Request{
		EventTypeName: c.Param("name"),
		CursorsHeader: c.GetHeader(CursorsHeader),
		Client:        clientOf(c),
		Params:        params,
	}

	if err := s.controller.Stream(c.Request.Context(), req, &ginSink{c: c}); err != nil {
		status, detail := mapError(err)
		s.log.WithError(err).WithField("event_type", req.EventTypeName).Debug("stream request rejected")
		writeProblem(c, status, detail)
	}
}

func streamParams(c *gin.Context) (streamctl.Params, error) {
	var p streamctl.Params
	for _, q := range []struct {
		name   string
		target *int
	}{
		{"batch_limit", &p.BatchLimit},
		{"stream_limit", &p.StreamLimit},
		{"stream_keep_alive_limit", &p.StreamKeepAliveLimit},
	} {
		raw := c.Query(q.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return streamctl.Params{}, errors.New(q.name + " must be an integer")
		}
		*q.target = v
	}
	for _, q := range []struct {
		name   string
		target *time.Duration
	}{
		{"batch_flush_timeout", &p.BatchFlushTimeout},
		{"stream_timeout", &p.StreamTimeout},
	} {
		raw := c.Query(q.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return streamctl.Params{}, errors.New(q.name + " must be an integer")
		}
		*q.target = time.Duration(v) * time.Second
	}
	return p, nil
}

// ginSink adapts gin's response writer to the controller's Sink.
type ginSink struct {
	c *gin.Context
}

func (s *ginSink) Begin() error {
	s.c.Writer.Header().Set("Content-Type", "application/x-json-stream")
	s.c.Writer.WriteHeader(http.StatusOK)
	s.c.Writer.Flush()
	return nil
}

func (s *ginSink) Write(p []byte) (int, error) {
	return s.c.Writer.Write(p)
}

func (s *ginSink) Flush() {
	s.c.Writer.Flush()
}

// postEventsItem is one element of the publish request body.
type postEventsItem struct {
	Partition string          `json:"partition"`
	Event     json.RawMessage `json:"event"`
}

// batchItemResponse reports one item's publishing outcome.
type batchItemResponse struct {
	Partition        string `json:"partition"`
	PublishingStatus string `json:"publishing_status"`
	Detail           string `json:"detail,omitempty"`
}

func (s *Server) handlePostEvents(c *gin.Context) {
	et, err := s.registry.Get(c.Param("name"))
	if err != nil {
		status, detail := mapError(err)
		writeProblem(c, status, detail)
		return
	}

	var items []postEventsItem
	if err := c.ShouldBindJSON(&items); err != nil {
		writeProblem(c, http.StatusBadRequest, "request body must be a JSON array of events")
		return
	}

	batch := make([]*topicrepo.BatchItem, 0, len(items))
	for i, item := range items {
		if item.Partition == "" {
			writeProblem(c, http.StatusUnprocessableEntity, "event "+strconv.Itoa(i)+" has no partition")
			return
		}
		batch = append(batch, topicrepo.NewBatchItem(string(item.Event), item.Partition))
	}

	err = s.repo.SyncPostBatch(c.Request.Context(), et.TopicID, batch)
	if err == nil {
		c.Status(http.StatusCreated)
		return
	}

	if brokererr.Of(err, brokererr.KindEventPublishing) {
		responses := make([]batchItemResponse, len(batch))
		for i, item := range batch {
			status, detail := item.Response()
			responses[i] = batchItemResponse{
				Partition:        item.Partition(),
				PublishingStatus: string(status),
				Detail:           detail,
			}
		}
		c.JSON(http.StatusUnprocessableEntity, responses)
		return
	}
	status, detail := mapError(err)
	writeProblem(c, status, detail)
}

type createTopicRequest struct {
	Partitions  int   `json:"partitions" binding:"required,min=1"`
	RetentionMs int64 `json:"retention_ms"`
}

func (s *Server) handleCreateTopic(c *gin.Context) {
	var req createTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeProblem(c, http.StatusBadRequest, "partitions must be a positive integer")
		return
	}

	topicID, err := s.repo.CreateTopic(c.Request.Context(), req.Partitions, req.RetentionMs)
	if err != nil {
		status, detail := mapError(err)
		writeProblem(c, status, detail)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": topicID})
}

func (s *Server) handleDeleteTopic(c *gin.Context) {
	if err := s.repo.DeleteTopic(c.Request.Context(), c.Param("id")); err != nil {
		status, detail := mapError(err)
		writeProblem(c, status, detail)
		return
	}
	c.Status(http.StatusAccepted)
}

// problem is the RFC 7807 error body.
type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func writeProblem(c *gin.Context, status int, detail string) {
	body, _ := json.Marshal(problem{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	})
	c.Data(status, "application/problem+json", body)
}

// mapError turns a core error into a problem status and detail.
func mapError(err error) (int, string) {
	var be *brokererr.Error
	if errors.As(err, &be) {
		detail := be.Message
		if be.Detail != "" {
			detail = be.Detail
		}
		return be.HTTPStatus, detail
	}
	return http.StatusInternalServerError, err.Error()
}
