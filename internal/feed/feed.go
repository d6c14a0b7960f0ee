package feed

import (
	"context"
	"log"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"
)

const (
	maxSummaryChars = 500
	maxWorkers      = 10
)

// Candidate is an article discovered from a feed, not yet selected.
type Candidate struct {
	Title       string  `json:"title"`
	Link        string  `json:"link"`
	Summary     string  `json:"summary"`
	Published   string  `json:"published"` // RFC 3339 or empty
	Source      string  `json:"source"`
	ReadingMin  float64 `json:"estimated_reading_min"`
	TimeGuessed bool    `json:"reading_time_estimated"`
}

// Options controls candidate filtering.
type Options struct {
	Cutoff             time.Time
	Seen               map[string]bool
	MinMinutes         float64
	MaxMinutes         float64
	WordsPerMinute     int
	FullTextFloorChars int
}

// Fetcher retrieves and filters feed entries concurrently.
type Fetcher struct {
	feeds     []string
	client    *http.Client
	extractor Extractor
}

// NewFetcher creates a Fetcher for the given feed URLs. extractor may be
// nil to disable full-text escalation.
func NewFetcher(feeds []string, extractor Extractor) *Fetcher {
	return &Fetcher{
		feeds:     feeds,
		client:    &http.Client{Timeout: 15 * time.Second},
		extractor: extractor,
	}
}

// Fetch retrieves all feeds in parallel and returns the filtered candidate
// list in feed-configuration order. A failing feed contributes no
// candidates and never aborts the others.
func (f *Fetcher) Fetch(ctx context.Context, opts Options) []Candidate {
	results := make([][]Candidate, len(f.feeds))

	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := maxWorkers
	if len(f.feeds) < workers {
		workers = len(f.feeds)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			parser := gofeed.NewParser()
			parser.Client = f.client
			parser.UserAgent = "lectorio/1.0 (article curator)"
			for i := range jobs {
				results[i] = f.fetchOne(ctx, parser, f.feeds[i], opts)
			}
		}()
	}

	for i := range f.feeds {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var all []Candidate
	for _, r := range results {
		all = append(all, r...)
	}
	log.Printf("Total candidates after filtering: %d", len(all))
	return all
}

func (f *Fetcher) fetchOne(ctx context.Context, parser *gofeed.Parser, feedURL string, opts Options) []Candidate {
	parsed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		log.Printf("Failed to fetch feed %s: %v", feedURL, err)
		return nil
	}

	source := extractSourceName(feedURL)

	var out []Candidate
	for _, item := range parsed.Items {
		c := f.filterItem(ctx, item, source, opts)
		if c != nil {
			out = append(out, *c)
		}
	}
	return out
}

// filterItem applies the link/seen/recency/reading-time rules to a single
// entry. It returns nil when the entry is excluded.
func (f *Fetcher) filterItem(ctx context.Context, item *gofeed.Item, source string, opts Options) *Candidate {
	link := item.Link
	if link == "" {
		link = item.GUID
	}
	if link == "" {
		return nil
	}
	if opts.Seen[link] {
		return nil
	}

	published := publishedTime(item)
	// Entries with no timestamp get the benefit of the doubt.
	if published != nil && published.Before(opts.Cutoff) {
		return nil
	}

	summary := stripHTML(firstNonEmpty(item.Description, item.Content))

	readingMin := Estimate(summary, opts.WordsPerMinute)
	guessed := true

	// Escalate to full-text extraction only for thin summaries, and only
	// when time filtering is actually on.
	if f.extractor != nil && readingMin < opts.MinMinutes &&
		len(summary) < opts.FullTextFloorChars && opts.MinMinutes > 0 {
		text, excerpt, err := f.extractor.Extract(ctx, link)
		if err != nil {
			log.Printf("Full-text extraction failed for %s: %v", link, err)
		} else if text != "" {
			readingMin = Estimate(text, opts.WordsPerMinute)
			guessed = false
			if summary == "" && excerpt != "" {
				summary = excerpt
			}
		}
	}

	// A zero estimate means no usable signal; include and let the
	// selector judge by title and summary alone.
	if readingMin > 0 && (readingMin < opts.MinMinutes || readingMin > opts.MaxMinutes) {
		return nil
	}

	summary = truncateRunes(summary, maxSummaryChars)

	publishedStr := ""
	if published != nil {
		publishedStr = published.UTC().Format(time.RFC3339)
	}

	return &Candidate{
		Title:       strings.TrimSpace(item.Title),
		Link:        link,
		Summary:     summary,
		Published:   publishedStr,
		Source:      source,
		ReadingMin:  math.Round(readingMin*10) / 10,
		TimeGuessed: guessed,
	}
}

func publishedTime(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed
	}
	return item.UpdatedParsed
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := result.String()
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")

	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return feedURL
	}

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}
	return host
}
