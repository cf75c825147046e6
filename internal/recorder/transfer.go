package recorder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// HTTPTransfer uploads chunks to the recordings endpoint. It holds the
// client-side manifest: the ordered list of chunk filenames the server has
// accepted so far, resent with every call.
type HTTPTransfer struct {
	baseURL   string
	token     string
	sessionID string
	ext       string
	client    *http.Client

	mu       sync.Mutex
	manifest []string
}

func NewHTTPTransfer(baseURL, token, ext string) *HTTPTransfer {
	if ext == "" {
		ext = "webm"
	}
	return &HTTPTransfer{
		baseURL:   baseURL,
		token:     token,
		sessionID: uuid.NewString(),
		ext:       ext,
		client:    &http.Client{Timeout: 2 * time.Minute},
	}
}

func (t *HTTPTransfer) SessionID() string { return t.sessionID }

func (t *HTTPTransfer) SendChunk(ctx context.Context, data []byte, isLast bool) (string, error) {
	t.mu.Lock()
	prev := append([]string{}, t.manifest...)
	t.mu.Unlock()

	prevJSON, err := json.Marshal(prev)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("chunk", "chunk."+t.ext)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(data); err != nil {
		return "", err
	}
	_ = mw.WriteField("isLastChunk", strconv.FormatBool(isLast))
	_ = mw.WriteField("previousChunks", string(prevJSON))
	_ = mw.WriteField("sessionId", t.sessionID)
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/recordings/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var out struct {
		Filename string `json:"filename"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", err
	}
	if out.Filename == "" {
		return "", fmt.Errorf("upload response missing filename")
	}

	if !isLast {
		t.mu.Lock()
		t.manifest = append(t.manifest, out.Filename)
		t.mu.Unlock()
	}
	return out.Filename, nil
}
