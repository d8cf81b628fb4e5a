package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"filevault/internal/app"
	"filevault/internal/storage"
	"filevault/internal/store"
	"filevault/pkg/domain"
)

type testEnv struct {
	srv   *httptest.Server
	redis *miniredis.Miniredis
}

func newTestEnv(t *testing.T, cfgMods ...func(*Config)) *testEnv {
	t.Helper()
	redis := miniredis.RunT(t)
	blobs, err := storage.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}
	appCore, err := app.New(app.Config{
		Store:    store.NewMemoryStore(),
		Sessions: store.NewRedisSessionStore(redis.Addr(), "", 24*time.Hour),
		Blobs:    blobs,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	cfg := Config{
		App:                       appCore,
		RedisAddr:                 redis.Addr(),
		SignupRateLimitPerMinute:  100,
		ConnectRateLimitPerMinute: 100,
	}
	for _, mod := range cfgMods {
		mod(&cfg)
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, redis: redis}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, raw
}

func (e *testEnv) register(t *testing.T, email, password string) string {
	t.Helper()
	resp, raw := e.do(t, http.MethodPost, "/api/users", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", email, resp.StatusCode, raw)
	}
	var user struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &user); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	return user.ID
}

func (e *testEnv) connect(t *testing.T, email, password string) string {
	t.Helper()
	header := "Basic " + base64.StdEncoding.EncodeToString([]byte(email+":"+password))
	resp, raw := e.do(t, http.MethodGet, "/api/connect", nil, map[string]string{"Authorization": header})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("connect %s: status %d body %s", email, resp.StatusCode, raw)
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode connect response: %v", err)
	}
	if body.Token == "" {
		t.Fatalf("expected non-empty token")
	}
	return body.Token
}

func errorBody(t *testing.T, raw []byte) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode error body %q: %v", raw, err)
	}
	return body.Error
}

func TestStatusAndStatsEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "a@x.com", "pw1")

	resp, raw := env.do(t, http.MethodGet, "/api/status", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d body %s", resp.StatusCode, raw)
	}
	var status map[string]bool
	if err := json.Unmarshal(raw, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status["redis"] || !status["db"] {
		t.Fatalf("expected healthy status, got %v", status)
	}

	resp, raw = env.do(t, http.MethodGet, "/api/stats", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats: %d body %s", resp.StatusCode, raw)
	}
	var stats map[string]int
	if err := json.Unmarshal(raw, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats["users"] != 1 || stats["files"] != 0 {
		t.Fatalf("unexpected stats %v", stats)
	}
}

func TestRegisterEndpointValidation(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "a@x.com", "pw1")

	resp, raw := env.do(t, http.MethodPost, "/api/users", map[string]string{"password": "pw1"}, nil)
	if resp.StatusCode != http.StatusBadRequest || errorBody(t, raw) != "Missing email" {
		t.Fatalf("expected 400 Missing email, got %d %s", resp.StatusCode, raw)
	}
	resp, raw = env.do(t, http.MethodPost, "/api/users", map[string]string{"email": "b@x.com"}, nil)
	if resp.StatusCode != http.StatusBadRequest || errorBody(t, raw) != "Missing password" {
		t.Fatalf("expected 400 Missing password, got %d %s", resp.StatusCode, raw)
	}
	resp, raw = env.do(t, http.MethodPost, "/api/users", map[string]string{"email": "a@x.com", "password": "pw2"}, nil)
	if resp.StatusCode != http.StatusBadRequest || errorBody(t, raw) != "Already exist" {
		t.Fatalf("expected 400 Already exist, got %d %s", resp.StatusCode, raw)
	}
}

func TestConnectDisconnectFlow(t *testing.T) {
	env := newTestEnv(t)
	userID := env.register(t, "a@x.com", "pw1")
	token := env.connect(t, "a@x.com", "pw1")

	resp, raw := env.do(t, http.MethodGet, "/api/users/me", nil, map[string]string{"X-Token": token})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("users/me: %d body %s", resp.StatusCode, raw)
	}
	var me struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(raw, &me); err != nil {
		t.Fatalf("decode users/me: %v", err)
	}
	if me.ID != userID || me.Email != "a@x.com" {
		t.Fatalf("unexpected identity %+v", me)
	}

	resp, raw = env.do(t, http.MethodGet, "/api/disconnect", nil, map[string]string{"X-Token": token})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("disconnect: %d body %s", resp.StatusCode, raw)
	}
	if len(raw) != 0 {
		t.Fatalf("expected empty disconnect body, got %q", raw)
	}

	resp, raw = env.do(t, http.MethodGet, "/api/users/me", nil, map[string]string{"X-Token": token})
	if resp.StatusCode != http.StatusUnauthorized || errorBody(t, raw) != "Unauthorized" {
		t.Fatalf("expected 401 after disconnect, got %d %s", resp.StatusCode, raw)
	}
}

func TestConnectRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "a@x.com", "pw1")

	header := "Basic " + base64.StdEncoding.EncodeToString([]byte("a@x.com:wrong"))
	resp, raw := env.do(t, http.MethodGet, "/api/connect", nil, map[string]string{"Authorization": header})
	if resp.StatusCode != http.StatusUnauthorized || errorBody(t, raw) != "Unauthorized" {
		t.Fatalf("expected 401 Unauthorized, got %d %s", resp.StatusCode, raw)
	}
}

func TestTokenExpiryRejectedAtBoundary(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "a@x.com", "pw1")
	token := env.connect(t, "a@x.com", "pw1")

	env.redis.FastForward(24*time.Hour + time.Second)
	resp, raw := env.do(t, http.MethodGet, "/api/users/me", nil, map[string]string{"X-Token": token})
	if resp.StatusCode != http.StatusUnauthorized || errorBody(t, raw) != "Unauthorized" {
		t.Fatalf("expected 401 for expired token, got %d %s", resp.StatusCode, raw)
	}
}

func TestFileOperationsRequireToken(t *testing.T) {
	env := newTestEnv(t)

	// The token check runs before any body validation.
	resp, raw := env.do(t, http.MethodPost, "/api/files", map[string]string{}, nil)
	if resp.StatusCode != http.StatusUnauthorized || errorBody(t, raw) != "Unauthorized" {
		t.Fatalf("expected 401 before validation, got %d %s", resp.StatusCode, raw)
	}
	resp, raw = env.do(t, http.MethodGet, "/api/files", nil, map[string]string{"X-Token": "bogus"})
	if resp.StatusCode != http.StatusUnauthorized || errorBody(t, raw) != "Unauthorized" {
		t.Fatalf("expected 401 for bogus token, got %d %s", resp.StatusCode, raw)
	}
}

func TestUploadValidationMessages(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "a@x.com", "pw1")
	token := env.connect(t, "a@x.com", "pw1")
	auth := map[string]string{"X-Token": token}

	cases := []struct {
		name string
		body map[string]any
		want string
	}{
		{"no name", map[string]any{"type": "file"}, "Missing name"},
		{"no type", map[string]any{"name": "a.txt"}, "Missing type"},
		{"bad type", map[string]any{"name": "a.txt", "type": "tarball"}, "Missing type"},
		{"no data", map[string]any{"name": "a.txt", "type": "file"}, "Missing data"},
		{"bad parent", map[string]any{"name": "d", "type": "folder", "parentId": "missing"}, "Parent not found"},
	}
	for _, tc := range cases {
		resp, raw := env.do(t, http.MethodPost, "/api/files", tc.body, auth)
		if resp.StatusCode != http.StatusBadRequest || errorBody(t, raw) != tc.want {
			t.Fatalf("%s: expected 400 %q, got %d %s", tc.name, tc.want, resp.StatusCode, raw)
		}
	}
}

func TestUploadGetAndOwnership(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "a@x.com", "pw1")
	env.register(t, "b@x.com", "pw2")
	ownerToken := env.connect(t, "a@x.com", "pw1")
	otherToken := env.connect(t, "b@x.com", "pw2")

	resp, raw := env.do(t, http.MethodPost, "/api/files", map[string]any{
		"name": "docs",
		"type": "folder",
	}, map[string]string{"X-Token": ownerToken})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create folder: %d body %s", resp.StatusCode, raw)
	}
	var folder domain.File
	if err := json.Unmarshal(raw, &folder); err != nil {
		t.Fatalf("decode folder: %v", err)
	}

	resp, raw = env.do(t, http.MethodPost, "/api/files", map[string]any{
		"name":     "a.txt",
		"type":     "file",
		"parentId": folder.ID,
		"data":     base64.StdEncoding.EncodeToString([]byte("hi")),
	}, map[string]string{"X-Token": ownerToken})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create file: %d body %s", resp.StatusCode, raw)
	}
	var file domain.File
	if err := json.Unmarshal(raw, &file); err != nil {
		t.Fatalf("decode file: %v", err)
	}
	if file.ID == "" || file.LocalPath == "" {
		t.Fatalf("expected generated id and blob handle, got %+v", file)
	}

	resp, raw = env.do(t, http.MethodGet, "/api/files/"+file.ID, nil, map[string]string{"X-Token": ownerToken})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get file: %d body %s", resp.StatusCode, raw)
	}

	// Foreign and absent ids produce identical responses.
	respForeign, rawForeign := env.do(t, http.MethodGet, "/api/files/"+file.ID, nil, map[string]string{"X-Token": otherToken})
	respAbsent, rawAbsent := env.do(t, http.MethodGet, "/api/files/no-such-id", nil, map[string]string{"X-Token": otherToken})
	if respForeign.StatusCode != http.StatusNotFound || respAbsent.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404s, got %d and %d", respForeign.StatusCode, respAbsent.StatusCode)
	}
	if errorBody(t, rawForeign) != "Not found" || string(rawForeign) != string(rawAbsent) {
		t.Fatalf("foreign and absent responses differ: %s vs %s", rawForeign, rawAbsent)
	}
}

func TestPublishUnpublishEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "a@x.com", "pw1")
	token := env.connect(t, "a@x.com", "pw1")
	auth := map[string]string{"X-Token": token}

	resp, raw := env.do(t, http.MethodPost, "/api/files", map[string]any{
		"name": "a.txt",
		"type": "file",
		"data": base64.StdEncoding.EncodeToString([]byte("hi")),
	}, auth)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create file: %d body %s", resp.StatusCode, raw)
	}
	var file domain.File
	if err := json.Unmarshal(raw, &file); err != nil {
		t.Fatalf("decode file: %v", err)
	}

	var first, second struct {
		ID       string `json:"id"`
		IsPublic bool   `json:"isPublic"`
	}
	resp, raw = env.do(t, http.MethodPut, "/api/files/"+file.ID+"/publish", nil, auth)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("publish: %d body %s", resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, &first); err != nil {
		t.Fatalf("decode publish: %v", err)
	}
	if first.ID != file.ID || !first.IsPublic {
		t.Fatalf("unexpected publish response %+v", first)
	}

	resp, raw = env.do(t, http.MethodPut, "/api/files/"+file.ID+"/publish", nil, auth)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("repeat publish: %d body %s", resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, &second); err != nil {
		t.Fatalf("decode repeat publish: %v", err)
	}
	if second != first {
		t.Fatalf("publish is not idempotent: %+v vs %+v", first, second)
	}

	resp, raw = env.do(t, http.MethodPut, "/api/files/"+file.ID+"/unpublish", nil, auth)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unpublish: %d body %s", resp.StatusCode, raw)
	}
	var unpublished struct {
		ID       string `json:"id"`
		IsPublic bool   `json:"isPublic"`
	}
	if err := json.Unmarshal(raw, &unpublished); err != nil {
		t.Fatalf("decode unpublish: %v", err)
	}
	if unpublished.IsPublic {
		t.Fatalf("expected isPublic false after unpublish")
	}
}

func TestListEndpointPagination(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "a@x.com", "pw1")
	token := env.connect(t, "a@x.com", "pw1")
	auth := map[string]string{"X-Token": token}

	resp, raw := env.do(t, http.MethodPost, "/api/files", map[string]any{
		"name": "docs",
		"type": "folder",
	}, auth)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create folder: %d body %s", resp.StatusCode, raw)
	}
	var folder domain.File
	if err := json.Unmarshal(raw, &folder); err != nil {
		t.Fatalf("decode folder: %v", err)
	}

	for i := 0; i < 25; i++ {
		resp, raw := env.do(t, http.MethodPost, "/api/files", map[string]any{
			"name":     fmt.Sprintf("f-%02d", i),
			"type":     "file",
			"parentId": folder.ID,
			"data":     base64.StdEncoding.EncodeToString([]byte("x")),
		}, auth)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create file %d: %d body %s", i, resp.StatusCode, raw)
		}
	}

	var page0, page1, empty []domain.File
	resp, raw = env.do(t, http.MethodGet, "/api/files?parentId="+folder.ID, nil, auth)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list page 0: %d body %s", resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, &page0); err != nil {
		t.Fatalf("decode page 0: %v", err)
	}
	if len(page0) != 20 || page0[0].Name != "f-00" {
		t.Fatalf("unexpected page 0: %d records", len(page0))
	}

	resp, raw = env.do(t, http.MethodGet, "/api/files?parentId="+folder.ID+"&page=1", nil, auth)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list page 1: %d body %s", resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, &page1); err != nil {
		t.Fatalf("decode page 1: %v", err)
	}
	if len(page1) != 5 || page1[0].Name != "f-20" {
		t.Fatalf("unexpected page 1: %d records", len(page1))
	}

	// An empty page is a 200 with a JSON array, not an error.
	resp, raw = env.do(t, http.MethodGet, "/api/files?parentId="+folder.ID+"&page=9", nil, auth)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list page 9: %d body %s", resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, &empty); err != nil {
		t.Fatalf("decode empty page: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty page, got %d records", len(empty))
	}
}

func TestConnectRateLimited(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.ConnectRateLimitPerMinute = 1
	})
	env.register(t, "a@x.com", "pw1")

	header := map[string]string{
		"Authorization": "Basic " + base64.StdEncoding.EncodeToString([]byte("a@x.com:pw1")),
	}
	resp, _ := env.do(t, http.MethodGet, "/api/connect", nil, header)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first connect: %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/connect", nil, header)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on second connect, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Retry-After"); got != "60" {
		t.Fatalf("expected Retry-After 60, got %q", got)
	}
}
