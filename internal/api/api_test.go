package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohallaa/mohallaa/internal/store"
	"github.com/mohallaa/mohallaa/pkg/auth"
	"github.com/mohallaa/mohallaa/pkg/middleware"
	"github.com/mohallaa/mohallaa/pkg/remote"
	"github.com/mohallaa/mohallaa/pkg/upload"
)

const testSecret = "test-secret-0123456789"

type testServer struct {
	*httptest.Server
	store    *store.Store
	verifier *auth.Verifier
	token    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	uploads, err := upload.NewDiskStore(t.TempDir(), 0)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	v := auth.NewVerifier(testSecret)
	h, err := New(Config{
		Remote:   st,
		Verifier: v,
		Uploads:  uploads,
		Metrics:  middleware.NewMetrics(middleware.WithRegistry(reg)),
		Gatherer: reg,
		Version:  "test",
	})
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	token, err := v.Issue(auth.Principal{ID: "u1", Name: "Asha"}, time.Hour)
	require.NoError(t, err)
	return &testServer{Server: srv, store: st, verifier: v, token: token}
}

func (s *testServer) do(t *testing.T, method, path string, body any, authed bool) (*http.Response, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp, out
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	env, ok := body["error"].(map[string]any)
	require.True(t, ok, "missing error envelope: %v", body)
	code, _ := env["code"].(string)
	return code
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	resp, body := s.do(t, http.MethodGet, "/v1/health", nil, false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestWriteRequiresAuth(t *testing.T) {
	s := newTestServer(t)
	resp, body := s.do(t, http.MethodPost, "/v1/collections/posts/rows",
		map[string]any{"op": "insert", "values": map[string]any{"title": "x"}}, false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "M100", errorCode(t, body))

	rows, err := s.store.Read(context.Background(), "posts", remote.Filter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestInvalidTokenRejected(t *testing.T) {
	s := newTestServer(t)
	s.token = "not-a-token"
	resp, body := s.do(t, http.MethodGet, "/v1/health", nil, true)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "M101", errorCode(t, body))
}

func TestRowLifecycle(t *testing.T) {
	s := newTestServer(t)

	resp, row := s.do(t, http.MethodPost, "/v1/collections/posts/rows", map[string]any{
		"op":     "insert",
		"key":    "p1",
		"values": map[string]any{"title": "Water outage", "community_id": "c1", "upvotes": 2},
	}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode, row)
	assert.Equal(t, "p1", row["id"])

	resp, row = s.do(t, http.MethodPost, "/v1/collections/posts/rows", map[string]any{
		"op":     "insert",
		"values": map[string]any{"title": "Lost cat", "community_id": "c2", "upvotes": 9},
	}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode, row)

	resp, body := s.do(t, http.MethodGet, "/v1/collections/posts/rows?eq=community_id:c1", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rows := body["rows"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "Water outage", rows[0].(map[string]any)["title"])

	resp, body = s.do(t, http.MethodGet, "/v1/collections/posts/rows?order=upvotes&desc=true", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rows = body["rows"].([]any)
	require.Len(t, rows, 2)
	assert.Equal(t, "Lost cat", rows[0].(map[string]any)["title"])

	resp, body = s.do(t, http.MethodPost, "/v1/collections/posts/rows", map[string]any{
		"op":     "update",
		"key":    "p1",
		"values": map[string]any{"upvotes": 3},
	}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.EqualValues(t, 3, body["upvotes"])
	assert.Equal(t, "Water outage", body["title"])

	resp, _ = s.do(t, http.MethodDelete, "/v1/collections/posts/rows/p1", nil, true)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = s.do(t, http.MethodDelete, "/v1/collections/posts/rows/p1", nil, true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, remote.CodeNotFound, errorCode(t, body))
}

func TestWriteConflict(t *testing.T) {
	s := newTestServer(t)
	req := map[string]any{"op": "insert", "key": "p1", "values": map[string]any{"title": "a"}}
	resp, _ := s.do(t, http.MethodPost, "/v1/collections/posts/rows", req, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := s.do(t, http.MethodPost, "/v1/collections/posts/rows", req, true)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, remote.CodeConflict, errorCode(t, body))
}

func TestBadRequests(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodGet, "/v1/collections/posts/rows?eq=nocolon", nil, false)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, remote.CodeInvalid, errorCode(t, body))

	resp, body = s.do(t, http.MethodPost, "/v1/collections/posts/rows",
		map[string]any{"op": "merge", "values": map[string]any{}}, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, remote.CodeInvalid, errorCode(t, body))
}

func TestSearch(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, err := s.store.Write(ctx, "posts", remote.Insert(remote.Row{"id": "p1", "title": "Garden cleanup"}))
	require.NoError(t, err)
	_, err = s.store.Write(ctx, "communities", remote.Insert(remote.Row{"id": "c1", "name": "Garden club"}))
	require.NoError(t, err)

	resp, body := s.do(t, http.MethodGet, "/v1/search?q=garden", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "garden", body["query"])
	results := body["results"].([]any)
	require.Len(t, results, 2)
	kinds := []string{results[0].(map[string]any)["kind"].(string), results[1].(map[string]any)["kind"].(string)}
	assert.ElementsMatch(t, []string{"post", "community"}, kinds)

	resp, body = s.do(t, http.MethodGet, "/v1/search?q=", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["results"])
}

func TestChangeFeed(t *testing.T) {
	s := newTestServer(t)
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/v1/collections/posts/changes?eq=community_id:c1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	got := make(chan remote.Change, 1)
	go func() {
		var c remote.Change
		if err := conn.ReadJSON(&c); err == nil {
			got <- c
		}
	}()

	// The subscription starts after the handshake completes, so keep
	// writing until the feed delivers.
	ctx := context.Background()
	_, err = s.store.Write(ctx, "posts", remote.Insert(remote.Row{"id": "other", "community_id": "c2"}))
	require.NoError(t, err)
	for i := 0; ; i++ {
		_, err := s.store.Write(ctx, "posts", remote.Upsert("p1", remote.Row{"community_id": "c1", "n": i}))
		require.NoError(t, err)
		select {
		case c := <-got:
			assert.Equal(t, "posts", c.Collection)
			assert.Equal(t, "p1", c.Key)
			assert.Equal(t, "c1", c.Row.String("community_id"))
			return
		case <-time.After(50 * time.Millisecond):
		}
		if i > 100 {
			t.Fatal("no change delivered")
		}
	}
}

func TestUpload(t *testing.T) {
	s := newTestServer(t)

	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "photo.png")
	require.NoError(t, err)
	_, err = fw.Write(png)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	send := func(authed bool) *http.Response {
		req, err := http.NewRequest(http.MethodPost, s.URL+"/v1/uploads", bytes.NewReader(buf.Bytes()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		if authed {
			req.Header.Set("Authorization", "Bearer "+s.token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := send(false)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = send(true)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out upload.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotEmpty(t, out.TempID)
	assert.Equal(t, "image/png", out.ContentType)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/v1/health", nil, false)

	resp, err := http.Get(s.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "http_requests_total")
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", remote.Errorf(remote.CodeNotFound, "missing"), http.StatusNotFound, remote.CodeNotFound},
		{"unavailable", remote.Errorf(remote.CodeUnavailable, "down"), http.StatusServiceUnavailable, remote.CodeUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{"other", io.ErrUnexpectedEOF, http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := handleError(tt.err)
			assert.Equal(t, tt.status, se.GetStatus())
			assert.Equal(t, tt.code, se.(*apiError).Body.Code)
		})
	}
}
