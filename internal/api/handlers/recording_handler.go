package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/echonote/internal/services"
)

type RecordingHandler struct {
	recordings services.RecordingService
	tasks      services.TaskService
}

func NewRecordingHandler(recordings services.RecordingService, tasks services.TaskService) *RecordingHandler {
	return &RecordingHandler{recordings: recordings, tasks: tasks}
}

func (h *RecordingHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	rec, err := h.recordings.GetOwned(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	tasks, err := h.tasks.ListByRecording(c.Request.Context(), rec.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"recording": rec, "tasks": tasks})
}

func (h *RecordingHandler) Delete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	if err := h.recordings.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
