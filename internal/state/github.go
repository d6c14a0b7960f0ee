package state

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/mvillarino/lectorio/internal/retry"
)

const statePath = "state.json"

// errStateNotFound marks a repository that has no state.json yet.
var errStateNotFound = errors.New("state.json not found in repository")

// GitHubStore keeps the state document as state.json in a GitHub
// repository via the contents API. Every write supplies the blob sha read
// immediately beforehand, so a concurrent writer surfaces as a conflict
// instead of being silently overwritten. Conflicts and transport errors
// degrade to the local fallback store so no update is lost.
type GitHubStore struct {
	repo    string // "user/repo"
	token   string
	baseURL string
	client  *http.Client
	local   *FileStore
}

// NewGitHubStore creates a store for the given repository with a local
// fallback.
func NewGitHubStore(repo, token string, local *FileStore) *GitHubStore {
	return &GitHubStore{
		repo:    repo,
		token:   token,
		baseURL: "https://api.github.com",
		client:  &http.Client{Timeout: 15 * time.Second},
		local:   local,
	}
}

// Load reads state.json from the repository, falling back to the local
// file on any failure.
func (g *GitHubStore) Load() (*State, error) {
	content, _, err := g.fileMeta(context.Background())
	if errors.Is(err, errStateNotFound) {
		log.Printf("No state.json in %s yet, starting fresh", g.repo)
		return g.local.Load()
	}
	if err != nil {
		log.Printf("Failed to load state from GitHub, using local fallback: %v", err)
		return g.local.Load()
	}

	var s State
	if err := json.Unmarshal(content, &s); err != nil {
		log.Printf("Remote state is malformed, using local fallback: %v", err)
		return g.local.Load()
	}
	return &s, nil
}

// Save writes state.json to the repository with the current sha as a
// precondition. Any failure degrades to a local durable write.
func (g *GitHubStore) Save(s *State) error {
	s.truncateSent()

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	if err := g.push(ctx, s); err != nil {
		log.Printf("ERROR: failed to save state to GitHub, writing local fallback: %v", err)
		return g.local.Save(s)
	}
	return nil
}

func (g *GitHubStore) push(ctx context.Context, s *State) error {
	// Read the sha immediately before writing so a concurrent change is
	// detected as a conflict. A missing file means this is the first
	// write; the PUT then omits the sha and creates it.
	_, sha, err := g.fileMeta(ctx)
	if err != nil && !errors.Is(err, errStateNotFound) {
		return err
	}

	content, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	fields := map[string]any{
		"message": "Update state.json [skip ci]",
		"content": base64.StdEncoding.EncodeToString(content),
	}
	if sha != "" {
		fields["sha"] = sha
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/contents/%s", g.baseURL, g.repo, statePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	g.setHeaders(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("pushing state: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity {
		return fmt.Errorf("state write conflict (%d): concurrent writer detected", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("github error %s: %s", resp.Status, string(body))
	}

	log.Printf("state.json pushed to %s", g.repo)
	return nil
}

// fileMeta returns the decoded content and blob sha of state.json.
// Transient failures are retried with backoff.
func (g *GitHubStore) fileMeta(ctx context.Context) ([]byte, string, error) {
	var meta struct {
		Content string `json:"content"`
		SHA     string `json:"sha"`
	}

	notFound := false
	url := fmt.Sprintf("%s/repos/%s/contents/%s", g.baseURL, g.repo, statePath)
	err := retry.Do(ctx, retry.Config{Attempts: 3, BaseDelay: 500 * time.Millisecond}, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		g.setHeaders(req)

		resp, err := g.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			notFound = true
			return nil
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("github returned %s", resp.Status)
		}
		return json.NewDecoder(resp.Body).Decode(&meta)
	})
	if err != nil {
		return nil, "", err
	}
	if notFound {
		return nil, "", errStateNotFound
	}

	content, err := base64.StdEncoding.DecodeString(normalizeBase64(meta.Content))
	if err != nil {
		return nil, "", fmt.Errorf("decoding content: %w", err)
	}
	return content, meta.SHA, nil
}

func (g *GitHubStore) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
}

// normalizeBase64 drops the newlines GitHub inserts into encoded content.
func normalizeBase64(s string) string {
	var b bytes.Buffer
	for _, r := range s {
		if r != '\n' && r != '\r' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
