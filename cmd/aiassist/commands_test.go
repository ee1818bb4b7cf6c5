package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/aiassist/internal/action"
	"github.com/kalambet/aiassist/internal/config"
	"github.com/kalambet/aiassist/internal/poller"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
	User   string
}

type testServer struct {
	server   *httptest.Server
	mu       sync.Mutex
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.mu.Lock()
		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
			User:   r.Header.Get("X-User-ID"),
		})
		ts.mu.Unlock()

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			code := http.StatusOK
			if strings.Contains(resp, `"error"`) {
				code = http.StatusBadRequest
			}
			w.WriteHeader(code)
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found_error"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

func (ts *testServer) lastRequest(t *testing.T) recordedRequest {
	t.Helper()
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.requests) == 0 {
		t.Fatal("no requests recorded")
	}
	return ts.requests[len(ts.requests)-1]
}

var ctx = context.Background()

func TestModuleCreate(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /modules": `{"id":3,"type":"glossary","name":"Animals","created_at":"2026-01-02T03:04:05Z"}`,
	})

	m, err := ts.client().createModule(ctx, "glossary", "Animals")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.ID != 3 || m.Type != "glossary" || m.Name != "Animals" {
		t.Errorf("module = %+v", m)
	}

	r := ts.lastRequest(t)
	if r.Method != "POST" || r.Path != "/modules" {
		t.Errorf("request = %s %s", r.Method, r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if diff := cmp.Diff(map[string]string{"type": "glossary", "name": "Animals"}, body); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestModuleList(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /modules": `[{"id":1,"type":"quiz","name":"Water"},{"id":2,"type":"book","name":"Reader"}]`,
	})

	modules, err := ts.client().listModules(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(modules) != 2 || modules[1].Type != "book" {
		t.Errorf("modules = %+v", modules)
	}
}

func TestLaunchActionSendsUser(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /modules/3/actions": `{"action_id":42,"status":"pending"}`,
	})

	id, err := ts.client().launchAction(ctx, 3, 7, "generate_definitions", map[string]any{"wordlist": "cat\ndog"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 42 {
		t.Errorf("id = %d, want 42", id)
	}

	r := ts.lastRequest(t)
	if r.User != "7" {
		t.Errorf("X-User-ID = %q, want 7", r.User)
	}
	var body struct {
		Action string         `json:"action"`
		Data   map[string]any `json:"data"`
	}
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body.Action != "generate_definitions" || body.Data["wordlist"] != "cat\ndog" {
		t.Errorf("body = %+v", body)
	}
}

func TestLaunchActionConflict(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /modules/3/actions": `{"error":{"message":"an action is already in progress for context 3 (action 9)","type":"conflict_error","existing_action_id":9}}`,
	})

	_, err := ts.client().launchAction(ctx, 3, 7, "generate_definitions", nil)
	var remote *apiError
	if !errors.As(err, &remote) {
		t.Fatalf("err = %v, want *apiError", err)
	}
	if remote.Type != "conflict_error" || remote.ExistingActionID != 9 {
		t.Errorf("apiError = %+v", remote)
	}
	if got := launchError(err).Error(); !strings.Contains(got, "aiassist status 9 --watch") {
		t.Errorf("launchError = %q, want a hint to follow action 9", got)
	}
}

func TestLaunchErrorHintForLocalConflict(t *testing.T) {
	err := launchError(&action.ConflictError{ContextID: 3, UserID: 7, ExistingID: 5})
	if !strings.Contains(err.Error(), "aiassist status 5 --watch") {
		t.Errorf("launchError = %q", err)
	}
	var conflict *action.ConflictError
	if !errors.As(err, &conflict) {
		t.Error("launchError should keep the conflict in the chain")
	}
}

func TestValidationErrorListsProblems(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /modules/3/actions": `{"error":{"message":"invalid input: wordlist: 1 line(s) are invalid","type":"invalid_request_error","fields":{"wordlist":"1 line(s) are invalid"},"problems":["line 2: missing word"]}}`,
	})

	_, err := ts.client().launchAction(ctx, 3, 7, "generate_definitions", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "server returned 400") || !strings.Contains(msg, "line 2: missing word") {
		t.Errorf("error = %q", msg)
	}
}

func TestActiveAction(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		ts := newTestServer(t, map[string]string{
			"GET /modules/3/actions/active": `{"action_id":null}`,
		})
		a, err := ts.client().activeAction(ctx, 3, 7)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a != nil {
			t.Errorf("action = %+v, want nil", a)
		}
		if r := ts.lastRequest(t); r.Path != "/modules/3/actions/active?user=7" {
			t.Errorf("path = %q", r.Path)
		}
	})

	t.Run("running", func(t *testing.T) {
		ts := newTestServer(t, map[string]string{
			"GET /modules/3/actions/active": `{"action_id":5,"action":{"id":5,"status":"running","progress":40,"status_text":"Processing word: cat"}}`,
		})
		a, err := ts.client().activeAction(ctx, 3, 7)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a == nil || a.ID != 5 || a.Progress != 40 {
			t.Errorf("action = %+v", a)
		}
	})
}

func TestCancelAction(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /actions/5/cancel": `{"cancelled":true,"status":"cancelled"}`,
	})

	cancelled, status, err := ts.client().cancelAction(ctx, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cancelled || status != "cancelled" {
		t.Errorf("cancelled = %v, status = %q", cancelled, status)
	}
}

func TestFetchStatus(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /actions/5": `{"id":5,"action_name":"generate_definitions","status":"running","progress":50,"status_text":"Processing word: dog","description":"List of words: cat, dog"}`,
	})

	st, err := ts.client().FetchStatus(ctx, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.ID != 5 || st.Status != "running" || st.Progress != 50 || st.Description != "List of words: cat, dog" {
		t.Errorf("status = %+v", st)
	}
}

func TestFetchStatusNotFound(t *testing.T) {
	ts := newTestServer(t, map[string]string{})

	_, err := ts.client().FetchStatus(ctx, 404)
	if !errors.Is(err, poller.ErrNotFound) {
		t.Errorf("FetchStatus error = %v, want poller.ErrNotFound", err)
	}
}

func TestClientUnreachable(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	_, err := ts.client().listModules(ctx)
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestParseActionID(t *testing.T) {
	if id, err := parseActionID("12"); err != nil || id != 12 {
		t.Errorf("parseActionID(12) = %d, %v", id, err)
	}
	for _, bad := range []string{"", "abc", "0", "-3"} {
		if _, err := parseActionID(bad); err == nil {
			t.Errorf("parseActionID(%q) should fail", bad)
		}
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	if got := colorize(styleError, "hello"); got != "hello" {
		t.Errorf("colorize with noColor=true = %q, want plain text", got)
	}
}

func stubConfig(t *testing.T) {
	t.Helper()
	old := loadConfig
	dir := t.TempDir()
	loadConfig = func() (config.Config, error) {
		return config.Config{
			Server:   config.ServerConfig{Port: 4100},
			Storage:  config.StorageConfig{DataDir: dir},
			Log:      config.LogConfig{Level: "error"},
			AI:       config.AIConfig{Backend: "openai"},
			Files:    config.FilesConfig{Backend: "local"},
			Wordlist: config.WordlistConfig{MaxWordLen: 100, MaxValueLen: 100},
		}, nil
	}
	t.Cleanup(func() { loadConfig = old })
}

func runCommand(t *testing.T, args ...string) error {
	t.Helper()
	defer rootCmd.SetArgs(nil)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestLaunchCommand_MissingFlags(t *testing.T) {
	err := runCommand(t, "launch", "--param", `{"wordlist":"cat"}`)
	if err == nil || !strings.Contains(err.Error(), "--module-id and --user-id are required") {
		t.Errorf("err = %v", err)
	}
}

func TestLaunchCommand_BadParam(t *testing.T) {
	err := runCommand(t, "launch", "--module-id", "1", "--user-id", "2", "--param", "[1,2]")
	if err == nil || !strings.Contains(err.Error(), "JSON object") {
		t.Errorf("err = %v", err)
	}
}

func TestImportCommand_DryRun(t *testing.T) {
	stubConfig(t)
	dir := t.TempDir()

	good := filepath.Join(dir, "words.txt")
	if err := os.WriteFile(good, []byte("cat\ndog = le chien (pos:noun)\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := runCommand(t, "import", "--file", good, "--dry-run"); err != nil {
		t.Errorf("valid list: %v", err)
	}

	bad := filepath.Join(dir, "bad.txt")
	if err := os.WriteFile(bad, []byte("cat\n(def:orphan)\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := runCommand(t, "import", "--file", bad, "--dry-run")
	if err == nil || !strings.Contains(err.Error(), "invalid line") {
		t.Errorf("invalid list: err = %v", err)
	}
}
