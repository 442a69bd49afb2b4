package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"FeedbackFlow/internal/domain"
	"FeedbackFlow/internal/infrastructure/markup"
	"FeedbackFlow/internal/infrastructure/stream"
	"FeedbackFlow/internal/usecase"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleEvents(c *gin.Context) {
	userID := ownerFrom(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user id is required"})
		return
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	// The per-write deadline outlives the stream, so the connection is not reused.
	header.Set("Connection", "close")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	rc := responseController(c)
	defer func() {
		_ = rc.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}()
	sink := stream.SinkFunc(func(frame []byte) error {
		if err := rc.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
		if _, err := c.Writer.Write(frame); err != nil {
			return err
		}
		return rc.Flush()
	})

	sub := s.hub.Subscribe(userID, sink)
	defer sub.Close()

	connected := domain.Event{
		Type:      domain.EventConnected,
		UserID:    userID,
		Timestamp: s.now().UnixMilli(),
	}
	if err := sub.Send(connected); err != nil {
		s.logger.Debug("initial event failed", "user", userID, "error", err)
		return
	}

	select {
	case <-sub.Done():
	case <-c.Request.Context().Done():
	}
}

func (s *Server) handleProcess(c *gin.Context) {
	ownerID := ownerFrom(c)
	if ownerID == "" {
		var body struct {
			UserID string `json:"userId"`
		}
		if err := c.ShouldBindJSON(&body); err == nil {
			ownerID = body.UserID
		}
	}
	if strings.TrimSpace(ownerID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "user id is required"})
		return
	}

	// A run keeps going when the caller disconnects; its events just go undelivered.
	result, err := s.processor.ProcessPending(context.WithoutCancel(c.Request.Context()), ownerID)
	if err != nil {
		if errors.Is(err, usecase.ErrMissingOwner) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		s.logger.Error("processing run failed", "owner", ownerID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to process feedback"})
		return
	}

	tasks := result.Tasks
	if tasks == nil {
		tasks = []domain.Task{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"runId":     result.RunID,
		"message":   result.Message,
		"tasks":     tasks,
		"analytics": result.Analytics,
	})
}

type importComment struct {
	ExternalID string     `json:"externalId"`
	Content    string     `json:"content"`
	NodeID     string     `json:"nodeId"`
	AuthorName string     `json:"authorName"`
	CreatedAt  *time.Time `json:"createdAt"`
}

type importRequest struct {
	DesignFileID string          `json:"designFileId"`
	DesignFile   string          `json:"designFile"`
	Comments     []importComment `json:"comments" binding:"required"`
}

func (s *Server) handleImport(c *gin.Context) {
	ownerID := ownerFrom(c)
	if ownerID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user id is required"})
		return
	}

	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if len(req.Comments) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one comment is required"})
		return
	}

	ctx := c.Request.Context()
	externalIDs := make([]string, 0, len(req.Comments))
	for _, comment := range req.Comments {
		if comment.ExternalID != "" {
			externalIDs = append(externalIDs, comment.ExternalID)
		}
	}
	existing, err := s.importer.ExistingExternalIDs(ctx, externalIDs)
	if err != nil {
		s.logger.Error("lookup existing feedback failed", "owner", ownerID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to import feedback"})
		return
	}
	if existing == nil {
		existing = map[string]bool{}
	}

	imported := make([]string, 0, len(req.Comments))
	skipped := 0
	for _, comment := range req.Comments {
		content := markup.PlainText(comment.Content)
		if content == "" || (comment.ExternalID != "" && existing[comment.ExternalID]) {
			skipped++
			continue
		}

		item := domain.Feedback{
			ExternalID:   comment.ExternalID,
			Content:      content,
			DesignFileID: req.DesignFileID,
			DesignFile:   req.DesignFile,
			NodeID:       comment.NodeID,
			AuthorName:   comment.AuthorName,
			OwnerID:      ownerID,
		}
		if comment.CreatedAt != nil {
			item.CreatedAt = *comment.CreatedAt
		}

		saved, err := s.importer.AddFeedback(ctx, item)
		if err != nil {
			s.logger.Error("store feedback failed", "owner", ownerID, "external_id", comment.ExternalID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to import feedback"})
			return
		}
		if comment.ExternalID != "" {
			existing[comment.ExternalID] = true
		}
		imported = append(imported, saved.ID)
	}

	c.JSON(http.StatusCreated, gin.H{
		"imported": len(imported),
		"skipped":  skipped,
		"ids":      imported,
	})
}

func (s *Server) handleTasks(c *gin.Context) {
	ownerID := ownerFrom(c)
	if ownerID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user id is required"})
		return
	}

	tasks, err := s.tasks.ListTasks(c.Request.Context(), ownerID)
	if err != nil {
		s.logger.Error("list tasks failed", "owner", ownerID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tasks"})
		return
	}

	columns := make(map[domain.TaskStatus][]domain.Task, len(domain.BoardColumns))
	for _, status := range domain.BoardColumns {
		columns[status] = []domain.Task{}
	}
	for _, task := range tasks {
		columns[task.Status] = append(columns[task.Status], task)
	}

	c.JSON(http.StatusOK, gin.H{
		"columns": domain.BoardColumns,
		"tasks":   columns,
		"total":   len(tasks),
	})
}
