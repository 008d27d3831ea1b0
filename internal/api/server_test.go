package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streed/notesai/internal/auth"
	"github.com/streed/notesai/internal/config"
	"github.com/streed/notesai/internal/database"
	"github.com/streed/notesai/internal/embeddings"
	interrors "github.com/streed/notesai/internal/errors"
	"github.com/streed/notesai/internal/services"
)

type testProvider struct {
	vectors map[string][]float32
	failing atomic.Bool
}

func (p *testProvider) ID() embeddings.ProviderID { return "test" }
func (p *testProvider) Dimensions() int           { return 3 }

func (p *testProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if p.failing.Load() {
		return nil, &embeddings.ProviderError{Provider: "test", Op: "embed", StatusCode: 503, Err: errors.New("backend unavailable")}
	}
	if v, ok := p.vectors[text]; ok {
		return v, nil
	}
	return []float32{0.1, 0.1, 0.1}, nil
}

type testServer struct {
	srv   *httptest.Server
	svc   *services.Services
	prov  *testProvider
	token string
	other string
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{DataDirectory: dir, DatabasePath: filepath.Join(dir, "test.db"), TaskWorkers: 1}
	db, err := database.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	prov := &testProvider{vectors: map[string][]float32{
		"buy milk":     {1, 0, 0},
		"walk the dog": {0, 1, 0},
		"milk":         {0.9, 0.1, 0},
	}}
	svc, err := services.New(cfg, db, services.WithProvider(prov))
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	authn, err := auth.New("test-secret", time.Hour)
	require.NoError(t, err)

	ctx := context.Background()
	alice, err := svc.Users.Create(ctx, "alice")
	require.NoError(t, err)
	bob, err := svc.Users.Create(ctx, "bob")
	require.NoError(t, err)
	token, _, err := authn.Issue(alice.ID)
	require.NoError(t, err)
	other, _, err := authn.Issue(bob.ID)
	require.NoError(t, err)

	srv := httptest.NewServer(NewAPIServer(svc, authn).Handler())
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, svc: svc, prov: prov, token: token, other: other}
}

// do sends a request as the token holder and decodes the envelope's data
// into out when given.
func (ts *testServer) do(t *testing.T, token, method, path string, body interface{}, out interface{}) (int, APIResponse) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	if out != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return resp.StatusCode, APIResponse{Success: env.Success, Error: env.Error}
}

type noteJSON struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Content     string  `json:"content"`
	FolderID    *int    `json:"folder_id"`
	Favorite    bool    `json:"favorite"`
	IsDeleted   bool    `json:"is_deleted"`
	IndexStatus string  `json:"index_status"`
	IndexError  string  `json:"index_error"`
	Score       float64 `json:"score"`
}

func TestAuthRequired(t *testing.T) {
	ts := setupServer(t)

	code, resp := ts.do(t, "", "GET", "/api/v1/notes/", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, resp.Success)

	code, _ = ts.do(t, "not-a-token", "GET", "/api/v1/notes/", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	var me struct {
		Username string `json:"username"`
	}
	code, _ = ts.do(t, ts.token, "GET", "/api/v1/me/", nil, &me)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alice", me.Username)
}

func TestPublicEndpoints(t *testing.T) {
	ts := setupServer(t)

	var health map[string]interface{}
	code, _ := ts.do(t, "", "GET", "/api/v1/health", nil, &health)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "test", health["embedding_provider"])

	resp, err := http.Get(ts.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "notesai_http_requests_total")
}

func TestNoteLifecycle(t *testing.T) {
	ts := setupServer(t)

	var created noteJSON
	code, _ := ts.do(t, ts.token, "POST", "/api/v1/notes/", map[string]interface{}{"title": "Milk", "content": "buy milk"}, &created)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "indexed", created.IndexStatus)
	assert.Empty(t, created.IndexError)

	var list []noteJSON
	code, _ = ts.do(t, ts.token, "GET", "/api/v1/notes/", nil, &list)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, list, 1)

	// Other users never see it
	code, _ = ts.do(t, ts.other, "GET", fmt.Sprintf("/api/v1/notes/%d/", created.ID), nil, nil)
	assert.Equal(t, http.StatusNotFound, code)

	var updated noteJSON
	code, _ = ts.do(t, ts.token, "PATCH", fmt.Sprintf("/api/v1/notes/%d/", created.ID), map[string]interface{}{"content": "walk the dog"}, &updated)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "walk the dog", updated.Content)
	assert.Equal(t, "Milk", updated.Title)

	var versions []struct {
		Content string `json:"content"`
	}
	code, _ = ts.do(t, ts.token, "GET", fmt.Sprintf("/api/v1/notes/%d/versions/", created.ID), nil, &versions)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, versions, 1)
	assert.Equal(t, "walk the dog", versions[0].Content)

	var fav map[string]bool
	code, _ = ts.do(t, ts.token, "POST", fmt.Sprintf("/api/v1/notes/%d/favorite/", created.ID), nil, &fav)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, fav["favorite"])

	code, _ = ts.do(t, ts.token, "DELETE", fmt.Sprintf("/api/v1/notes/%d/", created.ID), nil, nil)
	assert.Equal(t, http.StatusOK, code)
	list = nil
	ts.do(t, ts.token, "GET", "/api/v1/notes/", nil, &list)
	assert.Empty(t, list)

	var restored noteJSON
	code, _ = ts.do(t, ts.token, "POST", fmt.Sprintf("/api/v1/notes/%d/restore/", created.ID), nil, &restored)
	assert.Equal(t, http.StatusOK, code)
	assert.False(t, restored.IsDeleted)
}

func TestCreateNoteValidation(t *testing.T) {
	ts := setupServer(t)

	code, resp := ts.do(t, ts.token, "POST", "/api/v1/notes/", map[string]interface{}{"title": "x", "content": "  "}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, resp.Error, "content")

	code, _ = ts.do(t, ts.token, "POST", "/api/v1/notes/", map[string]interface{}{"title": "a title far too long to keep", "content": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ts.do(t, ts.token, "POST", "/api/v1/notes/", map[string]interface{}{"content": "x", "folder": 999}, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCreateNoteWithProviderDown(t *testing.T) {
	ts := setupServer(t)
	ts.prov.failing.Store(true)

	var created noteJSON
	code, resp := ts.do(t, ts.token, "POST", "/api/v1/notes/", map[string]interface{}{"content": "buy milk"}, &created)
	assert.Equal(t, http.StatusCreated, code)
	assert.True(t, resp.Success)
	assert.Equal(t, "failed", created.IndexStatus)
	assert.Contains(t, created.IndexError, "not indexed")

	// Search itself cannot embed the query.
	code, _ = ts.do(t, ts.token, "GET", "/api/v1/search/?q=milk", nil, nil)
	assert.Equal(t, http.StatusBadGateway, code)
}

func TestSearch(t *testing.T) {
	ts := setupServer(t)
	ts.do(t, ts.token, "POST", "/api/v1/notes/", map[string]interface{}{"title": "Dog", "content": "walk the dog"}, nil)
	ts.do(t, ts.token, "POST", "/api/v1/notes/", map[string]interface{}{"title": "Milk", "content": "buy milk"}, nil)
	ts.do(t, ts.other, "POST", "/api/v1/notes/", map[string]interface{}{"title": "Bob", "content": "buy milk"}, nil)

	code, resp := ts.do(t, ts.token, "GET", "/api/v1/search/?q=", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, resp.Error, "query")

	var results []noteJSON
	code, _ = ts.do(t, ts.token, "GET", "/api/v1/search/?q=milk&limit=5", nil, &results)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, results, 2)
	assert.Equal(t, "Milk", results[0].Title)
	assert.InDelta(t, 0.9939, results[0].Score, 1e-3)
	assert.Greater(t, results[0].Score, results[1].Score)

	code, _ = ts.do(t, ts.token, "GET", "/api/v1/search/?q=milk&limit=abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSearchProviderMismatch(t *testing.T) {
	ts := setupServer(t)
	var created noteJSON
	ts.do(t, ts.token, "POST", "/api/v1/notes/", map[string]interface{}{"content": "buy milk"}, &created)
	require.NoError(t, ts.svc.Store.Put(context.Background(), created.ID, []float32{1, 0, 0}, embeddings.ProviderOpenAI))

	code, resp := ts.do(t, ts.token, "GET", "/api/v1/search/?q=milk", nil, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, resp.Error, "reindex")
}

func TestFoldersAndTags(t *testing.T) {
	ts := setupServer(t)

	var folder struct {
		ID int `json:"id"`
	}
	code, _ := ts.do(t, ts.token, "POST", "/api/v1/folders/", map[string]string{"name": "Work"}, &folder)
	require.Equal(t, http.StatusCreated, code)

	var note noteJSON
	code, _ = ts.do(t, ts.token, "POST", "/api/v1/notes/", map[string]interface{}{"content": "buy milk", "folder": folder.ID}, &note)
	require.Equal(t, http.StatusCreated, code)
	require.NotNil(t, note.FolderID)
	assert.Equal(t, folder.ID, *note.FolderID)

	var cleared noteJSON
	code, _ = ts.do(t, ts.token, "PUT", fmt.Sprintf("/api/v1/notes/%d/", note.ID), map[string]interface{}{"folder": nil}, &cleared)
	assert.Equal(t, http.StatusOK, code)
	assert.Nil(t, cleared.FolderID)

	var tag struct {
		ID int `json:"id"`
	}
	code, _ = ts.do(t, ts.token, "POST", "/api/v1/tags/", map[string]string{"name": "groceries"}, &tag)
	require.Equal(t, http.StatusCreated, code)
	code, resp := ts.do(t, ts.token, "POST", "/api/v1/tags/", map[string]string{"name": "groceries"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "you already created this tag", resp.Error)

	code, _ = ts.do(t, ts.token, "POST", "/api/v1/note-tag/", map[string]int{"tag": tag.ID, "note": note.ID}, nil)
	assert.Equal(t, http.StatusCreated, code)
	code, _ = ts.do(t, ts.token, "POST", "/api/v1/note-tag/", map[string]int{"tag": tag.ID, "note": note.ID}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = ts.do(t, ts.other, "POST", "/api/v1/note-tag/", map[string]int{"tag": tag.ID, "note": note.ID}, nil)
	assert.Equal(t, http.StatusNotFound, code)

	var links []map[string]int
	ts.do(t, ts.token, "GET", "/api/v1/note-tag/", nil, &links)
	require.Len(t, links, 1)
	assert.Equal(t, note.ID, links[0]["note"])

	code, resp = ts.do(t, ts.token, "DELETE", "/api/v1/folders/99999999999999999999/delete/", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid folder ID", resp.Error)

	code, _ = ts.do(t, ts.token, "DELETE", fmt.Sprintf("/api/v1/folders/%d/delete/", folder.ID), nil, nil)
	assert.Equal(t, http.StatusOK, code)
	var folders []interface{}
	ts.do(t, ts.token, "GET", "/api/v1/folders/", nil, &folders)
	assert.Empty(t, folders)
}

func TestSummarizeDisabled(t *testing.T) {
	ts := setupServer(t)
	var note noteJSON
	ts.do(t, ts.token, "POST", "/api/v1/notes/", map[string]interface{}{"content": "buy milk"}, &note)

	code, resp := ts.do(t, ts.token, "POST", fmt.Sprintf("/api/v1/notes/%d/summarize/", note.ID), nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, resp.Error, "disabled")

	code, _ = ts.do(t, ts.token, "GET", "/api/v1/tasks/nope/", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrapped: %w", errors.New("boom")), http.StatusInternalServerError},
		{fmt.Errorf("%w: abc", interrors.ErrInvalidFolderID), http.StatusBadRequest},
		{&services.IndexError{NoteID: 1, Err: &embeddings.ProviderError{Provider: "x", Err: errors.New("down")}}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
