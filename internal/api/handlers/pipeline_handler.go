package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/yoockh/echonote/internal/services"
	"github.com/yoockh/echonote/internal/utils"
	"github.com/yoockh/echonote/internal/workers"
)

type PipelineHandler struct {
	pipeline services.PipelineService
	rdb      *redis.Client
	stream   string
}

func NewPipelineHandler(pipeline services.PipelineService, rdb *redis.Client, stream string) *PipelineHandler {
	if stream == "" {
		stream = workers.DefaultStream
	}
	return &PipelineHandler{pipeline: pipeline, rdb: rdb, stream: stream}
}

type processRequest struct {
	Language    string `json:"language"`
	StylePrompt string `json:"style_prompt"`
}

// Process runs the derivation pipeline for a finalized recording. With
// ?async=1 the job is queued on the worker stream and 202 is returned;
// otherwise the pipeline runs inline and the report is returned, including
// partial results when a stage failed.
func (h *PipelineHandler) Process(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	recordingID := c.Param("id")

	var req processRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, APIError{Code: utils.CodeInvalidArgument, Message: "invalid request body"})
			return
		}
	}

	if c.Query("async") == "1" && h.rdb != nil {
		if err := workers.EnqueueJob(c.Request.Context(), h.rdb, h.stream, userID, recordingID, req.Language, req.StylePrompt); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"recording_id": recordingID, "queued": true})
		return
	}

	report, err := h.pipeline.Process(c.Request.Context(), userID, recordingID, services.ProcessOptions{
		Language:    req.Language,
		StylePrompt: req.StylePrompt,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
