package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/echonote/internal/models"
	"github.com/yoockh/echonote/internal/services"
	"github.com/yoockh/echonote/internal/storage"
	"github.com/yoockh/echonote/internal/utils"
)

type StreamHandler struct {
	recordings services.RecordingService
	store      storage.Store
}

func NewStreamHandler(recordings services.RecordingService, store storage.Store) *StreamHandler {
	return &StreamHandler{recordings: recordings, store: store}
}

// Stream serves recording audio with byte-range support so clients can seek
// without downloading the whole file. Only finalized recordings are
// streamable; the durable file does not exist before reassembly.
func (h *StreamHandler) Stream(c *gin.Context) {
	const op = "StreamHandler.Stream"

	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	filename := c.Param("filename")

	rec, err := h.recordings.GetOwnedByFilename(c.Request.Context(), userID, filename)
	if err != nil {
		writeError(c, err)
		return
	}
	if rec.State == models.StateCapturing || rec.State == models.StateUploading {
		writeError(c, utils.E(utils.CodeConflict, op, "recording is not finalized yet", nil))
		return
	}

	rsc, size, err := h.store.Open(c.Request.Context(), userID, filename)
	if err != nil {
		writeError(c, utils.E(utils.CodeStreamError, op, "failed to open recording file", err))
		return
	}
	defer rsc.Close()

	c.Header("Accept-Ranges", "bytes")
	c.Header("Cache-Control", "no-cache, must-revalidate")
	contentType := utils.ContentTypeByExt(filename)

	rangeHeader := c.GetHeader("Range")
	if rangeHeader == "" {
		c.Header("Content-Length", strconv.FormatInt(size, 10))
		c.Header("Content-Type", contentType)
		c.Status(http.StatusOK)
		io.Copy(c.Writer, rsc)
		return
	}

	start, end, err := parseByteRange(rangeHeader, size)
	if err != nil {
		c.Header("Content-Range", fmt.Sprintf("bytes */%d", size))
		c.JSON(http.StatusRequestedRangeNotSatisfiable, APIError{
			Code:    utils.CodeStreamError,
			Message: "unsatisfiable byte range",
		})
		return
	}

	if _, err := rsc.Seek(start, io.SeekStart); err != nil {
		writeError(c, utils.E(utils.CodeStreamError, op, "seek failed", err))
		return
	}

	length := end - start + 1
	c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	c.Header("Content-Length", strconv.FormatInt(length, 10))
	c.Header("Content-Type", contentType)
	c.Status(http.StatusPartialContent)
	io.CopyN(c.Writer, rsc, length)
}

// parseByteRange handles a single "bytes=start-end" range. An open-ended
// "bytes=start-" reads to EOF; suffix ranges "bytes=-n" serve the last n
// bytes. Multipart ranges are not supported.
func parseByteRange(header string, size int64) (start, end int64, err error) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return 0, 0, fmt.Errorf("unsupported range %q", header)
	}

	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, 0, fmt.Errorf("malformed range %q", header)
	}

	if startStr == "" {
		// suffix range: last n bytes
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, fmt.Errorf("malformed suffix range %q", header)
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, nil
	}

	start, err = strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, fmt.Errorf("malformed range start %q", header)
	}
	if start >= size {
		return 0, 0, fmt.Errorf("range start %d beyond size %d", start, size)
	}

	if endStr == "" {
		return start, size - 1, nil
	}
	end, err = strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < start {
		return 0, 0, fmt.Errorf("malformed range end %q", header)
	}
	if end >= size {
		end = size - 1
	}
	return start, end, nil
}
