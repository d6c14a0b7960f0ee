package refill

import (
	"context"
	"log"
	"time"

	"github.com/mvillarino/lectorio/internal/feed"
	"github.com/mvillarino/lectorio/internal/state"
)

// Fetcher produces filtered article candidates.
type Fetcher interface {
	Fetch(ctx context.Context, opts feed.Options) []feed.Candidate
}

// Selector picks the best candidate from a pool, or nil for no selection.
type Selector interface {
	Select(ctx context.Context, candidates []feed.Candidate, keywords []string, maxCandidates int) *state.QueuedArticle
}

// Config holds the refill parameters.
type Config struct {
	Keywords           []string
	MaxCandidates      int
	QueueTarget        int
	LookbackDays       int
	MinMinutes         float64
	MaxMinutes         float64
	WordsPerMinute     int
	FullTextFloorChars int
}

// Controller tops the delivery queue up to its target size.
type Controller struct {
	fetcher  Fetcher
	selector Selector
	cfg      Config
	now      func() time.Time
}

// New creates a refill controller.
func New(fetcher Fetcher, selector Selector, cfg Config) *Controller {
	return &Controller{fetcher: fetcher, selector: selector, cfg: cfg, now: time.Now}
}

// Candidates fetches the current candidate pool excluding seen links.
func (c *Controller) Candidates(ctx context.Context, seen map[string]bool) []feed.Candidate {
	return c.fetcher.Fetch(ctx, feed.Options{
		Cutoff:             c.now().AddDate(0, 0, -c.cfg.LookbackDays),
		Seen:               seen,
		MinMinutes:         c.cfg.MinMinutes,
		MaxMinutes:         c.cfg.MaxMinutes,
		WordsPerMinute:     c.cfg.WordsPerMinute,
		FullTextFloorChars: c.cfg.FullTextFloorChars,
	})
}

// Result describes one refill pass.
type Result struct {
	Added      int // articles appended to the queue
	Candidates int // candidates available before selection
}

// Refill fills free queue slots one selection at a time. Candidates are
// fetched once; each pick is removed from the remaining pool so the
// selector never re-ranks it. A failed selection ends the pass; the
// selector is not retried.
func (c *Controller) Refill(ctx context.Context, st *state.State) Result {
	slots := c.cfg.QueueTarget - len(st.Queue)
	if slots <= 0 {
		log.Printf("Queue already at target (%d), nothing to refill", len(st.Queue))
		return Result{}
	}

	seen := st.SeenLinks()
	remaining := c.Candidates(ctx, seen)
	if len(remaining) == 0 {
		log.Println("No candidates available for refill")
		return Result{}
	}

	r := Result{Candidates: len(remaining)}
	for r.Added < slots && len(remaining) > 0 {
		pick := c.selector.Select(ctx, remaining, c.cfg.Keywords, c.cfg.MaxCandidates)
		if pick == nil {
			log.Printf("Selector produced no pick after %d additions, stopping refill", r.Added)
			break
		}

		st.Enqueue(*pick, c.now())
		seen[pick.Link] = true
		remaining = removeByLink(remaining, pick.Link)
		r.Added++
		log.Printf("Queued [%d/%d]: %s", r.Added, slots, pick.Title)
	}

	log.Printf("Refill complete: %d added, queue length %d", r.Added, len(st.Queue))
	return r
}

func removeByLink(pool []feed.Candidate, link string) []feed.Candidate {
	out := pool[:0]
	for _, c := range pool {
		if c.Link != link {
			out = append(out, c)
		}
	}
	return out
}
