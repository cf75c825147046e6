package services

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/echonote/internal/models"
	"github.com/yoockh/echonote/internal/utils"
)

// --- in-memory fakes shared by the service tests ---

type memStore struct {
	files map[string][]byte // key: userID + "/" + name
}

func newMemStore() *memStore {
	return &memStore{files: map[string][]byte{}}
}

func (m *memStore) key(userID, name string) string { return userID + "/" + name }

func (m *memStore) Save(_ context.Context, userID, name string, r io.Reader) (int64, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	m.files[m.key(userID, name)] = b
	return int64(len(b)), nil
}

type memFile struct{ *bytes.Reader }

func (memFile) Close() error { return nil }

func (m *memStore) Open(_ context.Context, userID, name string) (io.ReadSeekCloser, int64, error) {
	b, ok := m.files[m.key(userID, name)]
	if !ok {
		return nil, 0, utils.ErrNotFound
	}
	return memFile{bytes.NewReader(b)}, int64(len(b)), nil
}

func (m *memStore) Exists(_ context.Context, userID, name string) (bool, error) {
	_, ok := m.files[m.key(userID, name)]
	return ok, nil
}

func (m *memStore) Remove(_ context.Context, userID, name string) error {
	k := m.key(userID, name)
	if _, ok := m.files[k]; !ok {
		return utils.ErrNotFound
	}
	delete(m.files, k)
	return nil
}

type memTemp struct {
	store *memStore
	key   string
	buf   bytes.Buffer
}

func (t *memTemp) Write(p []byte) (int, error) { return t.buf.Write(p) }

func (t *memTemp) Close() error {
	t.store.files[t.key] = t.buf.Bytes()
	return nil
}

func (m *memStore) CreateTemp(_ context.Context, userID string) (io.WriteCloser, string, error) {
	name := ".tmp-" + uuid.NewString()
	return &memTemp{store: m, key: m.key(userID, name)}, name, nil
}

func (m *memStore) Promote(_ context.Context, userID, tempName, finalName string) error {
	k := m.key(userID, tempName)
	b, ok := m.files[k]
	if !ok {
		return utils.ErrNotFound
	}
	delete(m.files, k)
	m.files[m.key(userID, finalName)] = b
	return nil
}

func (m *memStore) Discard(_ context.Context, userID, tempName string) error {
	delete(m.files, m.key(userID, tempName))
	return nil
}

type fakeManifestRepo struct {
	byID map[string]*models.UploadManifest
}

func newFakeManifestRepo() *fakeManifestRepo {
	return &fakeManifestRepo{byID: map[string]*models.UploadManifest{}}
}

func (f *fakeManifestRepo) Create(_ context.Context, m *models.UploadManifest) error {
	cp := *m
	f.byID[m.SessionID] = &cp
	return nil
}

func (f *fakeManifestRepo) Get(_ context.Context, sessionID string) (*models.UploadManifest, error) {
	m, ok := f.byID[sessionID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *m
	cp.Chunks = append([]string{}, m.Chunks...)
	return &cp, nil
}

func (f *fakeManifestRepo) AppendChunk(_ context.Context, sessionID, chunkName string, expiresAt time.Time) error {
	m, ok := f.byID[sessionID]
	if !ok || m.Status != models.ManifestOpen {
		return utils.ErrNotFound
	}
	m.Chunks = append(m.Chunks, chunkName)
	m.ExpiresAt = expiresAt
	return nil
}

func (f *fakeManifestRepo) Finalize(_ context.Context, sessionID, finalFilename string) error {
	m, ok := f.byID[sessionID]
	if !ok {
		return utils.ErrNotFound
	}
	m.Status = models.ManifestFinalized
	m.FinalFilename = finalFilename
	m.Chunks = nil
	return nil
}

func (f *fakeManifestRepo) Delete(_ context.Context, sessionID string) error {
	delete(f.byID, sessionID)
	return nil
}

type fakeRecordingRepo struct {
	byID map[string]*models.Recording
}

func newFakeRecordingRepo() *fakeRecordingRepo {
	return &fakeRecordingRepo{byID: map[string]*models.Recording{}}
}

func (f *fakeRecordingRepo) Insert(_ context.Context, rec *models.Recording) error {
	cp := *rec
	f.byID[rec.ID] = &cp
	return nil
}

func (f *fakeRecordingRepo) GetByID(_ context.Context, id string) (*models.Recording, error) {
	rec, ok := f.byID[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeRecordingRepo) GetByFilename(_ context.Context, filename string) (*models.Recording, error) {
	for _, rec := range f.byID {
		if rec.Filename == filename {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (f *fakeRecordingRepo) UpdateState(_ context.Context, id, state string) error {
	rec, ok := f.byID[id]
	if !ok {
		return utils.ErrNotFound
	}
	rec.State = state
	return nil
}

func (f *fakeRecordingRepo) UpdateDerived(_ context.Context, rec *models.Recording) error {
	cur, ok := f.byID[rec.ID]
	if !ok {
		return utils.ErrNotFound
	}
	cur.Title = rec.Title
	cur.Transcript = rec.Transcript
	cur.Summary = rec.Summary
	cur.SummaryDoc = rec.SummaryDoc
	cur.Chapters = rec.Chapters
	cur.State = rec.State
	cur.UpdatedAt = rec.UpdatedAt
	return nil
}

func (f *fakeRecordingRepo) Delete(_ context.Context, id string) error {
	delete(f.byID, id)
	return nil
}

// --- tests ---

func newTestUploadService(recs *fakeRecordingRepo, mans *fakeManifestRepo, store *memStore) UploadService {
	return NewUploadService(recs, mans, store, nil, nil, time.Hour)
}

// uploadChunks pushes parts through the service the way the recorder client
// would, carrying the returned chunk names as previousChunks.
func uploadChunks(t *testing.T, svc UploadService, userID, sessionID string, parts []string) *ChunkResult {
	t.Helper()
	var previous []string
	var last *ChunkResult
	for i, part := range parts {
		isLast := i == len(parts)-1
		res, err := svc.AcceptChunk(context.Background(), userID, sessionID, previous, strings.NewReader(part), "webm", isLast)
		require.NoError(t, err)
		if !isLast {
			previous = append(previous, res.Filename)
		}
		last = res
	}
	return last
}

func TestAcceptChunk_ReassemblesInOrder(t *testing.T) {
	recs := newFakeRecordingRepo()
	mans := newFakeManifestRepo()
	store := newMemStore()
	svc := newTestUploadService(recs, mans, store)

	res := uploadChunks(t, svc, "u1", "s1", []string{"aaa", "bbb", "ccc"})
	require.True(t, res.Finalized)

	rc, size, err := store.Open(context.Background(), "u1", res.Filename)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, int64(9), size)

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "aaabbbccc", string(got))

	// consumed chunks are gone: only the durable file remains
	assert.Len(t, store.files, 1)

	// recording row reached finalized
	rec, err := recs.GetByFilename(context.Background(), res.Filename)
	require.NoError(t, err)
	assert.Equal(t, models.StateFinalized, rec.State)
}

func TestAcceptChunk_SingleChunkSession(t *testing.T) {
	svc := newTestUploadService(newFakeRecordingRepo(), newFakeManifestRepo(), newMemStore())

	res, err := svc.AcceptChunk(context.Background(), "u1", "s1", nil, strings.NewReader("only"), "webm", true)
	require.NoError(t, err)
	assert.True(t, res.Finalized)
	assert.NotEmpty(t, res.Filename)
}

func TestAcceptChunk_MissingChunkAborts(t *testing.T) {
	recs := newFakeRecordingRepo()
	mans := newFakeManifestRepo()
	store := newMemStore()
	svc := newTestUploadService(recs, mans, store)

	res1, err := svc.AcceptChunk(context.Background(), "u1", "s1", nil, strings.NewReader("aaa"), "webm", false)
	require.NoError(t, err)

	// simulate a lost chunk before finalization
	require.NoError(t, store.Remove(context.Background(), "u1", res1.Filename))

	_, err = svc.AcceptChunk(context.Background(), "u1", "s1", []string{res1.Filename}, strings.NewReader("bbb"), "webm", true)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeChunkMissing))

	// no partial durable file was published
	m, err := mans.Get(context.Background(), "s1")
	require.NoError(t, err)
	exists, err := store.Exists(context.Background(), "u1", m.FinalFilename)
	require.NoError(t, err)
	assert.False(t, exists)

	// the stored final chunk was reaped too: it never entered the
	// manifest, so nothing else would ever clean it up
	assert.Empty(t, store.files)
}

func TestAcceptChunk_ManifestDivergenceRejected(t *testing.T) {
	svc := newTestUploadService(newFakeRecordingRepo(), newFakeManifestRepo(), newMemStore())

	res1, err := svc.AcceptChunk(context.Background(), "u1", "s1", nil, strings.NewReader("aaa"), "webm", false)
	require.NoError(t, err)
	_ = res1

	// client claims a chunk list the server never recorded
	_, err = svc.AcceptChunk(context.Background(), "u1", "s1", []string{"bogus-chunk.webm"}, strings.NewReader("bbb"), "webm", false)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeConflict))
}

func TestAcceptChunk_FinalRetryIsIdempotent(t *testing.T) {
	svc := newTestUploadService(newFakeRecordingRepo(), newFakeManifestRepo(), newMemStore())

	res := uploadChunks(t, svc, "u1", "s1", []string{"aaa", "bbb"})
	require.True(t, res.Finalized)

	// retried final call (e.g. the client missed the response)
	again, err := svc.AcceptChunk(context.Background(), "u1", "s1", []string{}, strings.NewReader("bbb"), "webm", true)
	require.NoError(t, err)
	assert.True(t, again.Finalized)
	assert.Equal(t, res.Filename, again.Filename)

	// a non-final chunk on a finalized session is a conflict
	_, err = svc.AcceptChunk(context.Background(), "u1", "s1", []string{}, strings.NewReader("ccc"), "webm", false)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeConflict))
}

func TestAcceptChunk_ForeignSessionForbidden(t *testing.T) {
	svc := newTestUploadService(newFakeRecordingRepo(), newFakeManifestRepo(), newMemStore())

	_, err := svc.AcceptChunk(context.Background(), "u1", "s1", nil, strings.NewReader("aaa"), "webm", false)
	require.NoError(t, err)

	_, err = svc.AcceptChunk(context.Background(), "u2", "s1", nil, strings.NewReader("bbb"), "webm", false)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeForbidden))
}
