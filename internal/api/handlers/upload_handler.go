package handlers

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/echonote/internal/services"
	"github.com/yoockh/echonote/internal/utils"
)

// one chunk upload is bounded; the recorder flushes well below this
const maxChunkBytes = 32 << 20

type UploadHandler struct {
	svc services.UploadService
}

func NewUploadHandler(svc services.UploadService) *UploadHandler {
	return &UploadHandler{svc: svc}
}

// Upload accepts one multipart chunk: fields `chunk` (binary),
// `isLastChunk` (boolean string), `previousChunks` (JSON array of prior chunk
// filenames), `sessionId`.
func (h *UploadHandler) Upload(c *gin.Context) {
	const op = "UploadHandler.Upload"

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sessionID := c.PostForm("sessionId")
	if sessionID == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "missing sessionId", nil))
		return
	}

	isLast, err := strconv.ParseBool(c.DefaultPostForm("isLastChunk", "false"))
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "isLastChunk must be a boolean", err))
		return
	}

	var previous []string
	if raw := c.PostForm("previousChunks"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &previous); err != nil {
			writeError(c, utils.E(utils.CodeInvalidArgument, op, "previousChunks must be a JSON array", err))
			return
		}
	}

	fh, err := c.FormFile("chunk")
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "missing multipart field 'chunk'", err))
		return
	}
	if fh.Size <= 0 || fh.Size > maxChunkBytes {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "chunk is empty or too large", nil))
		return
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fh.Filename)), ".")

	file, err := fh.Open()
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, op, "failed to open upload", err))
		return
	}
	defer file.Close()

	res, err := h.svc.AcceptChunk(c.Request.Context(), userID, sessionID, previous, file, ext, isLast)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}
