package state

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

func newTestGitHubStore(t *testing.T, handler http.Handler) (*GitHubStore, *FileStore) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	local := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	g := NewGitHubStore("user/repo", "test-token", local)
	g.baseURL = srv.URL
	g.client = srv.Client()
	return g, local
}

func remoteDoc(t *testing.T, s *State) string {
	t.Helper()
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(data)
}

func TestGitHubLoadRemoteState(t *testing.T) {
	remote := &State{Sent: []SentRecord{{Link: "https://remote", Title: "Remote"}}}

	g, _ := newTestGitHubStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/user/repo/contents/state.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Error("missing auth header")
		}
		json.NewEncoder(w).Encode(map[string]string{
			"content": remoteDoc(t, remote),
			"sha":     "abc123",
		})
	}))

	got, err := g.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Sent) != 1 || got.Sent[0].Link != "https://remote" {
		t.Errorf("expected remote state, got %v", got.Sent)
	}
}

func TestGitHubLoadFallsBackToLocal(t *testing.T) {
	g, local := newTestGitHubStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))

	seeded := &State{Sent: []SentRecord{{Link: "https://local"}}}
	if err := local.Save(seeded); err != nil {
		t.Fatal(err)
	}

	got, err := g.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Sent) != 1 || got.Sent[0].Link != "https://local" {
		t.Errorf("expected local fallback state, got %v", got.Sent)
	}
}

func TestGitHubSaveSuppliesShaPrecondition(t *testing.T) {
	var gotSHA string

	g, _ := newTestGitHubStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]string{
				"content": remoteDoc(t, &State{}),
				"sha":     "current-sha",
			})
		case http.MethodPut:
			var payload struct {
				SHA     string `json:"sha"`
				Content string `json:"content"`
			}
			json.NewDecoder(r.Body).Decode(&payload)
			gotSHA = payload.SHA
			json.NewEncoder(w).Encode(map[string]any{"ok": true})
		}
	}))

	s := &State{Sent: []SentRecord{{Link: "https://a"}}}
	if err := g.Save(s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotSHA != "current-sha" {
		t.Errorf("expected sha precondition 'current-sha', got %q", gotSHA)
	}
}

func TestGitHubSaveConflictFallsBackToLocal(t *testing.T) {
	g, local := newTestGitHubStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]string{
				"content": remoteDoc(t, &State{}),
				"sha":     "stale-sha",
			})
		case http.MethodPut:
			http.Error(w, `{"message":"conflict"}`, http.StatusConflict)
		}
	}))

	s := &State{}
	s.Enqueue(queued("https://pending", "Pending"), time.Now())

	if err := g.Save(s); err != nil {
		t.Fatalf("expected fallback save to succeed, got %v", err)
	}

	got, err := local.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Queue) != 1 || got.Queue[0].Link != "https://pending" {
		t.Errorf("expected state preserved locally, got %v", got.Queue)
	}
}

func TestGitHubSaveTransportErrorFallsBackToLocal(t *testing.T) {
	srv := httptest.NewServer(nil)
	local := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	g := NewGitHubStore("user/repo", "tok", local)
	g.baseURL = srv.URL
	g.client = srv.Client()
	srv.Close() // all requests now fail at the transport level

	s := &State{Sent: []SentRecord{{Link: "https://a"}}}
	if err := g.Save(s); err != nil {
		t.Fatalf("expected fallback save to succeed, got %v", err)
	}

	got, err := local.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Sent) != 1 {
		t.Errorf("expected state preserved locally, got %v", got.Sent)
	}
}

func TestGitHubSaveCreatesMissingFile(t *testing.T) {
	var putBody map[string]any

	g, _ := newTestGitHubStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
		case http.MethodPut:
			json.NewDecoder(r.Body).Decode(&putBody)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{"ok": true})
		}
	}))

	if err := g.Save(&State{Sent: []SentRecord{{Link: "https://first"}}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if putBody == nil {
		t.Fatal("expected a PUT to create the file")
	}
	if _, hasSHA := putBody["sha"]; hasSHA {
		t.Error("first write must not carry a sha precondition")
	}
}

func TestGitHubLoadHandlesWrappedBase64(t *testing.T) {
	remote := &State{Sent: []SentRecord{{Link: "https://wrapped"}}}
	data, _ := json.Marshal(remote)
	encoded := base64.StdEncoding.EncodeToString(data)
	// GitHub wraps encoded content in newlines every 60 chars.
	wrapped := ""
	for i := 0; i < len(encoded); i += 60 {
		end := i + 60
		if end > len(encoded) {
			end = len(encoded)
		}
		wrapped += encoded[i:end] + "\n"
	}

	g, _ := newTestGitHubStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"content": wrapped, "sha": "s"})
	}))

	got, err := g.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Sent) != 1 || got.Sent[0].Link != "https://wrapped" {
		t.Errorf("expected decoded state, got %v", got.Sent)
	}
}
