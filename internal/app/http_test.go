package app

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"promptlib/api/internal/archive"
	"promptlib/api/internal/library"
	"promptlib/api/internal/livesync"
	"promptlib/api/internal/store"
)

func newTestServer(st *fakeStore) (*HTTPServer, *fakePublisher) {
	svc, _, publisher := newTestService(st)
	return NewHTTPServer(svc, "*"), publisher
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func decodeJSON(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(&fakeStore{})
	recorder := doRequest(t, server.Handler(), http.MethodGet, "/api/health", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
}

func TestReadyEndpoint(t *testing.T) {
	server, _ := newTestServer(&fakeStore{})
	recorder := doRequest(t, server.Handler(), http.MethodGet, "/api/ready", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}

	var body struct {
		OK bool `json:"ok"`
	}
	decodeJSON(t, recorder, &body)
	if !body.OK {
		t.Fatal("expected ok:true")
	}
}

func TestOptionsRequestsShortCircuit(t *testing.T) {
	server, _ := newTestServer(&fakeStore{})
	recorder := doRequest(t, server.Handler(), http.MethodOptions, "/api/prompts", "")
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
	if recorder.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected CORS headers on preflight")
	}
}

func TestListPromptsServesMirror(t *testing.T) {
	svc, state, _ := newTestService(&fakeStore{})
	state.ApplyPromptSnapshot([]store.Prompt{{ID: "p1", Task: "Summarize"}})
	server := NewHTTPServer(svc, "*")

	recorder := doRequest(t, server.Handler(), http.MethodGet, "/api/prompts", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}

	var body struct {
		Prompts []store.Prompt `json:"prompts"`
	}
	decodeJSON(t, recorder, &body)
	if len(body.Prompts) != 1 || body.Prompts[0].ID != "p1" {
		t.Fatalf("expected mirrored prompt, got %+v", body.Prompts)
	}
}

func TestCreatePromptEndpoint(t *testing.T) {
	server, publisher := newTestServer(&fakeStore{})

	recorder := doRequest(t, server.Handler(), http.MethodPost, "/api/prompts",
		`{"task": "Summarize", "category": "Writing", "prompt": "body", "author": "Avery"}`)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var created store.Prompt
	decodeJSON(t, recorder, &created)
	if created.ID != "p1" || created.Task != "Summarize" {
		t.Fatalf("unexpected created prompt %+v", created)
	}
	if len(publisher.published) != 1 {
		t.Fatalf("expected a change signal, got %v", publisher.published)
	}
}

func TestCreatePromptValidationError(t *testing.T) {
	server, _ := newTestServer(&fakeStore{})

	recorder := doRequest(t, server.Handler(), http.MethodPost, "/api/prompts", `{"task": "only task"}`)
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", recorder.Code)
	}

	var body struct {
		Code string `json:"code"`
	}
	decodeJSON(t, recorder, &body)
	if body.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %s", body.Code)
	}
}

func TestUpdatePromptStaleReference(t *testing.T) {
	server, _ := newTestServer(&fakeStore{})

	recorder := doRequest(t, server.Handler(), http.MethodPut, "/api/prompts/ghost",
		`{"task": "t", "category": "c", "prompt": "p", "author": "a"}`)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", recorder.Code)
	}

	var body struct {
		Code string `json:"code"`
	}
	decodeJSON(t, recorder, &body)
	if body.Code != "STALE_REFERENCE" {
		t.Fatalf("expected STALE_REFERENCE, got %s", body.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	svc, state, _ := newTestService(&fakeStore{})
	state.ApplyPromptSnapshot([]store.Prompt{{
		ID:      "p1",
		History: []store.HistoryEntry{{Prompt: "older body"}},
	}})
	server := NewHTTPServer(svc, "*")

	recorder := doRequest(t, server.Handler(), http.MethodGet, "/api/prompts/p1/history/0", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var body struct {
		Prompt string `json:"prompt"`
	}
	decodeJSON(t, recorder, &body)
	if body.Prompt != "older body" {
		t.Fatalf("expected the historical body, got %q", body.Prompt)
	}

	recorder = doRequest(t, server.Handler(), http.MethodGet, "/api/prompts/p1/history/9", "")
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for an out-of-range index, got %d", recorder.Code)
	}
}

func TestArchiveEndpoints(t *testing.T) {
	arch := &fakeArchiver{
		historyFn: func(string, int) ([]archive.Commit, error) {
			return []archive.Commit{{Hash: "aaa1111", Message: "save prompt p1 (Summarize)", Author: "Avery"}}, nil
		},
		versionAtFn: func(string, string) (store.Prompt, error) {
			return store.Prompt{ID: "p1", Prompt: "older body"}, nil
		},
	}
	svc := NewService(&fakeStore{}, livesync.NewState(), &fakePublisher{}, nil, arch, nil, library.DefaultHistoryLimit)
	server := NewHTTPServer(svc, "*")

	recorder := doRequest(t, server.Handler(), http.MethodGet, "/api/prompts/p1/archive", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var listBody struct {
		Commits []archive.Commit `json:"commits"`
	}
	decodeJSON(t, recorder, &listBody)
	if len(listBody.Commits) != 1 || listBody.Commits[0].Hash != "aaa1111" {
		t.Fatalf("expected the archived commit, got %+v", listBody.Commits)
	}

	recorder = doRequest(t, server.Handler(), http.MethodGet, "/api/prompts/p1/archive/aaa1111", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var versionBody struct {
		Prompt store.Prompt `json:"prompt"`
	}
	decodeJSON(t, recorder, &versionBody)
	if versionBody.Prompt.Prompt != "older body" {
		t.Fatalf("expected the archived body, got %+v", versionBody.Prompt)
	}
}

func TestArchiveEndpointUnconfigured(t *testing.T) {
	server, _ := newTestServer(&fakeStore{})

	recorder := doRequest(t, server.Handler(), http.MethodGet, "/api/prompts/p1/archive", "")
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", recorder.Code)
	}

	var body struct {
		Code string `json:"code"`
	}
	decodeJSON(t, recorder, &body)
	if body.Code != "ARCHIVE_UNAVAILABLE" {
		t.Fatalf("expected ARCHIVE_UNAVAILABLE, got %s", body.Code)
	}
}

func TestImportEndpointRejectsMalformedPayload(t *testing.T) {
	server, _ := newTestServer(&fakeStore{})

	recorder := doRequest(t, server.Handler(), http.MethodPost, "/api/import", `{"oops": true}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}

	var body struct {
		Code string `json:"code"`
	}
	decodeJSON(t, recorder, &body)
	if body.Code != "MALFORMED_IMPORT" {
		t.Fatalf("expected MALFORMED_IMPORT, got %s", body.Code)
	}
}

func TestExportEndpoint(t *testing.T) {
	svc, state, _ := newTestService(&fakeStore{})
	state.ApplyCategorySnapshot([]store.Category{{ID: "c1", Name: "Writing"}})
	server := NewHTTPServer(svc, "*")

	recorder := doRequest(t, server.Handler(), http.MethodGet, "/api/export", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Header().Get("Content-Disposition"), "prompt_library_backup_") {
		t.Fatalf("expected download disposition, got %q", recorder.Header().Get("Content-Disposition"))
	}
	if !strings.Contains(recorder.Body.String(), `"prompt-library-v3.0"`) {
		t.Fatal("expected the export format version in the body")
	}
}

func TestUnknownRoute(t *testing.T) {
	server, _ := newTestServer(&fakeStore{})
	recorder := doRequest(t, server.Handler(), http.MethodGet, "/api/nope", "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
}

type sseEvent struct {
	name string
	data string
}

func readSSEEvent(t *testing.T, reader *bufio.Reader) sseEvent {
	t.Helper()
	var event sseEvent
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read SSE line: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "" && event.name != "":
			return event
		case strings.HasPrefix(line, "event: "):
			event.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			event.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestStreamSendsSnapshotsAndChanges(t *testing.T) {
	svc, state, _ := newTestService(&fakeStore{})
	httpServer := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	defer httpServer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpServer.URL+"/api/stream", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", got)
	}

	reader := bufio.NewReader(resp.Body)

	first := readSSEEvent(t, reader)
	second := readSSEEvent(t, reader)
	if first.name != "categories" || second.name != "prompts" {
		t.Fatalf("expected initial snapshots in order, got %q then %q", first.name, second.name)
	}

	state.ApplyPromptSnapshot([]store.Prompt{{ID: "p1", Task: "Summarize"}})

	third := readSSEEvent(t, reader)
	if third.name != "prompts" {
		t.Fatalf("expected a prompts snapshot after the change, got %q", third.name)
	}
	if !strings.Contains(third.data, `"p1"`) {
		t.Fatalf("expected the new prompt in the snapshot, got %s", third.data)
	}
}
