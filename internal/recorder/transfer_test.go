package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedUpload struct {
	body      []byte
	isLast    bool
	previous  []string
	sessionID string
	auth      string
}

func newUploadServer(t *testing.T) (*httptest.Server, *[]recordedUpload) {
	t.Helper()
	var uploads []recordedUpload
	n := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/recordings/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		file, _, err := r.FormFile("chunk")
		require.NoError(t, err)
		body, err := io.ReadAll(file)
		require.NoError(t, err)

		var previous []string
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("previousChunks")), &previous))

		isLast := r.FormValue("isLastChunk") == "true"
		uploads = append(uploads, recordedUpload{
			body:      body,
			isLast:    isLast,
			previous:  previous,
			sessionID: r.FormValue("sessionId"),
			auth:      r.Header.Get("Authorization"),
		})

		n++
		name := fmt.Sprintf("chunk-%d.webm", n)
		if isLast {
			name = "recording-final.webm"
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"filename":%q}`, name)
	}))
	t.Cleanup(srv.Close)
	return srv, &uploads
}

func TestHTTPTransfer_CarriesManifest(t *testing.T) {
	srv, uploads := newUploadServer(t)
	tr := NewHTTPTransfer(srv.URL, "tok-1", "webm")

	name1, err := tr.SendChunk(context.Background(), []byte("aaa"), false)
	require.NoError(t, err)
	assert.Equal(t, "chunk-1.webm", name1)

	name2, err := tr.SendChunk(context.Background(), []byte("bbb"), false)
	require.NoError(t, err)
	assert.Equal(t, "chunk-2.webm", name2)

	final, err := tr.SendChunk(context.Background(), []byte("ccc"), true)
	require.NoError(t, err)
	assert.Equal(t, "recording-final.webm", final)

	got := *uploads
	require.Len(t, got, 3)

	assert.Empty(t, got[0].previous)
	assert.Equal(t, []string{"chunk-1.webm"}, got[1].previous)
	assert.Equal(t, []string{"chunk-1.webm", "chunk-2.webm"}, got[2].previous)

	// same session throughout, bearer token on every call
	for _, u := range got {
		assert.Equal(t, tr.SessionID(), u.sessionID)
		assert.Equal(t, "Bearer tok-1", u.auth)
	}
	assert.Equal(t, "aaa", string(got[0].body))
	assert.Equal(t, "ccc", string(got[2].body))
}

func TestHTTPTransfer_ServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"code":"CONFLICT","message":"manifest diverged"}`, http.StatusConflict)
	}))
	defer srv.Close()

	tr := NewHTTPTransfer(srv.URL, "", "webm")
	_, err := tr.SendChunk(context.Background(), []byte("aaa"), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
}
