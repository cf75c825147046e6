package utils

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeUnavailable     Code = "UNAVAILABLE"
	CodeTimeout         Code = "TIMEOUT"
	CodeInternal        Code = "INTERNAL"

	// capture / transfer
	CodeDeviceUnavailable Code = "DEVICE_UNAVAILABLE"
	CodeNoAudioCaptured   Code = "NO_AUDIO_CAPTURED"
	CodeChunkMissing      Code = "CHUNK_MISSING"
	CodeReassemblyFailed  Code = "REASSEMBLY_FAILED"

	// playback
	CodeStreamError Code = "STREAM_ERROR"

	// pipeline stages
	CodeTranscriptionFailed  Code = "TRANSCRIPTION_FAILED"
	CodeFormattingFailed     Code = "FORMATTING_FAILED"
	CodeTitleFailed          Code = "TITLE_FAILED"
	CodeSummaryFailed        Code = "SUMMARY_FAILED"
	CodeTaskExtractionFailed Code = "TASK_EXTRACTION_FAILED"
	CodeEmbeddingFailed      Code = "EMBEDDING_FAILED"
	CodePersistenceFailed    Code = "PERSISTENCE_FAILED"
)

// AppError is the unified error contract across layers.
type AppError struct {
	Code    Code
	Op      string // operation name, ex: "UploadService.AcceptChunk"
	Message string // safe message
	Err     error  // wrapped error
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch {
	case e.Op != "" && e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Op != "" && e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return "error"
	}
}

func (e *AppError) Unwrap() error { return e.Err }

func E(code Code, op, msg string, err error) error {
	return &AppError{Code: code, Op: op, Message: msg, Err: err}
}

func IsCode(err error, code Code) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// ErrCode returns the app-level code of err, CodeInternal for foreign errors.
func ErrCode(err error) Code {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

func HTTPStatus(err error) int {
	var ae *AppError
	if errors.As(err, &ae) {
		switch ae.Code {
		case CodeInvalidArgument, CodeNoAudioCaptured:
			return http.StatusBadRequest
		case CodeUnauthorized:
			return http.StatusUnauthorized
		case CodeForbidden:
			return http.StatusForbidden
		case CodeNotFound:
			return http.StatusNotFound
		case CodeConflict, CodeChunkMissing:
			return http.StatusConflict
		case CodeUnavailable, CodeDeviceUnavailable:
			return http.StatusServiceUnavailable
		case CodeTimeout:
			return http.StatusGatewayTimeout
		case CodeTranscriptionFailed, CodeFormattingFailed, CodeTitleFailed,
			CodeSummaryFailed, CodeTaskExtractionFailed, CodeEmbeddingFailed:
			return http.StatusBadGateway
		default:
			return http.StatusInternalServerError
		}
	}
	// fallback
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// Backward-compatible sentinel errors
var (
	ErrNotFound = errors.New("not found")
)
