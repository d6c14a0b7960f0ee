package refill

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mvillarino/lectorio/internal/feed"
	"github.com/mvillarino/lectorio/internal/state"
)

// stubFetcher returns a fixed candidate list minus seen links.
type stubFetcher struct {
	pool  []feed.Candidate
	calls int
}

func (s *stubFetcher) Fetch(_ context.Context, opts feed.Options) []feed.Candidate {
	s.calls++
	var out []feed.Candidate
	for _, c := range s.pool {
		if !opts.Seen[c.Link] {
			out = append(out, c)
		}
	}
	return out
}

// firstPicker always selects the first remaining candidate, optionally
// giving up after a set number of picks.
type firstPicker struct {
	picksLeft int // negative = unlimited
	pools     [][]string
}

func (p *firstPicker) Select(_ context.Context, cands []feed.Candidate, _ []string, maxCandidates int) *state.QueuedArticle {
	var links []string
	for _, c := range cands {
		links = append(links, c.Link)
	}
	p.pools = append(p.pools, links)

	if p.picksLeft == 0 {
		return nil
	}
	if p.picksLeft > 0 {
		p.picksLeft--
	}
	if len(cands) == 0 {
		return nil
	}
	return &state.QueuedArticle{Candidate: cands[0], Reason: "first"}
}

func pool(n int) []feed.Candidate {
	var out []feed.Candidate
	for i := 0; i < n; i++ {
		out = append(out, feed.Candidate{
			Title: fmt.Sprintf("Article %d", i),
			Link:  fmt.Sprintf("https://example.com/%d", i),
		})
	}
	return out
}

func testConfig(target int) Config {
	return Config{
		Keywords:       []string{"datos"},
		MaxCandidates:  30,
		QueueTarget:    target,
		LookbackDays:   3,
		MaxMinutes:     20,
		WordsPerMinute: 200,
	}
}

func TestRefillFillsToTarget(t *testing.T) {
	fetcher := &stubFetcher{pool: pool(8)}
	picker := &firstPicker{picksLeft: -1}
	st := &state.State{}

	added := New(fetcher, picker, testConfig(5)).Refill(context.Background(), st).Added

	if added != 5 {
		t.Fatalf("expected 5 added, got %d", added)
	}
	if len(st.Queue) != 5 {
		t.Fatalf("expected queue of 5, got %d", len(st.Queue))
	}
	if fetcher.calls != 1 {
		t.Errorf("expected a single fetch, got %d", fetcher.calls)
	}

	// Selection order preserved, no duplicates.
	seen := map[string]bool{}
	for i, q := range st.Queue {
		if q.Link != fmt.Sprintf("https://example.com/%d", i) {
			t.Errorf("unexpected order at %d: %q", i, q.Link)
		}
		if seen[q.Link] {
			t.Errorf("duplicate link %q", q.Link)
		}
		seen[q.Link] = true
		if q.QueuedAt == "" {
			t.Errorf("expected queued_at set on %q", q.Link)
		}
	}
}

func TestRefillRemovesPickFromPool(t *testing.T) {
	fetcher := &stubFetcher{pool: pool(3)}
	picker := &firstPicker{picksLeft: -1}
	st := &state.State{}

	New(fetcher, picker, testConfig(3)).Refill(context.Background(), st)

	if len(picker.pools) != 3 {
		t.Fatalf("expected 3 selector calls, got %d", len(picker.pools))
	}
	// Each round loses the previous pick.
	if len(picker.pools[0]) != 3 || len(picker.pools[1]) != 2 || len(picker.pools[2]) != 1 {
		t.Errorf("unexpected pool sizes: %v", picker.pools)
	}
	if picker.pools[1][0] != "https://example.com/1" {
		t.Errorf("expected first pick removed, second pool starts at %q", picker.pools[1][0])
	}
}

func TestRefillNoopWhenQueueFull(t *testing.T) {
	fetcher := &stubFetcher{pool: pool(8)}
	picker := &firstPicker{picksLeft: -1}

	st := &state.State{}
	now := time.Now()
	for i := 0; i < 5; i++ {
		st.Enqueue(state.QueuedArticle{Candidate: feed.Candidate{Link: fmt.Sprintf("https://q/%d", i)}}, now)
	}

	added := New(fetcher, picker, testConfig(5)).Refill(context.Background(), st).Added
	if added != 0 {
		t.Errorf("expected 0 added, got %d", added)
	}
	if fetcher.calls != 0 {
		t.Errorf("expected no fetch for a full queue, got %d", fetcher.calls)
	}
}

func TestRefillExcludesSentAndQueuedLinks(t *testing.T) {
	fetcher := &stubFetcher{pool: pool(4)}
	picker := &firstPicker{picksLeft: -1}

	st := &state.State{
		Sent: []state.SentRecord{{Link: "https://example.com/0"}},
	}
	st.Enqueue(state.QueuedArticle{Candidate: feed.Candidate{Link: "https://example.com/1"}}, time.Now())

	added := New(fetcher, picker, testConfig(5)).Refill(context.Background(), st).Added
	if added != 2 {
		t.Fatalf("expected 2 added, got %d", added)
	}
	for _, q := range st.Queue[1:] {
		if q.Link == "https://example.com/0" || q.Link == "https://example.com/1" {
			t.Errorf("seen link re-surfaced: %q", q.Link)
		}
	}
}

func TestRefillStopsOnNoSelection(t *testing.T) {
	fetcher := &stubFetcher{pool: pool(8)}
	picker := &firstPicker{picksLeft: 2}
	st := &state.State{}

	added := New(fetcher, picker, testConfig(5)).Refill(context.Background(), st).Added
	if added != 2 {
		t.Errorf("expected 2 added before selector gave up, got %d", added)
	}
	if len(picker.pools) != 3 {
		t.Errorf("expected 3 selector calls (2 picks + 1 refusal), got %d", len(picker.pools))
	}
}

func TestRefillStopsWhenCandidatesExhausted(t *testing.T) {
	fetcher := &stubFetcher{pool: pool(2)}
	picker := &firstPicker{picksLeft: -1}
	st := &state.State{}

	added := New(fetcher, picker, testConfig(5)).Refill(context.Background(), st).Added
	if added != 2 {
		t.Errorf("expected 2 added with only 2 candidates, got %d", added)
	}
}

func TestRefillNoCandidates(t *testing.T) {
	fetcher := &stubFetcher{}
	picker := &firstPicker{picksLeft: -1}
	st := &state.State{}

	added := New(fetcher, picker, testConfig(5)).Refill(context.Background(), st).Added
	if added != 0 {
		t.Errorf("expected 0 added, got %d", added)
	}
	if len(picker.pools) != 0 {
		t.Errorf("expected selector never called, got %d calls", len(picker.pools))
	}
}

func TestRefillReportsCandidateCount(t *testing.T) {
	fetcher := &stubFetcher{pool: pool(8)}
	picker := &firstPicker{picksLeft: 0}
	st := &state.State{}

	r := New(fetcher, picker, testConfig(5)).Refill(context.Background(), st)
	if r.Candidates != 8 {
		t.Errorf("expected 8 candidates reported, got %d", r.Candidates)
	}
	if r.Added != 0 {
		t.Errorf("expected 0 added, got %d", r.Added)
	}
}
