package state

import (
	"time"

	"github.com/mvillarino/lectorio/internal/feed"
)

// maxSentRecords bounds the delivered-article history; the oldest entries
// are evicted first.
const maxSentRecords = 200

// SentRecord is the archival form of a delivered article.
type SentRecord struct {
	Link   string `json:"link"`
	Title  string `json:"title"`
	Date   string `json:"date"`
	SentAt string `json:"sent_at"`
	ReadAt string `json:"read_at,omitempty"`
}

// QueuedArticle is a selected candidate waiting in the delivery queue.
type QueuedArticle struct {
	feed.Candidate
	Reason          string   `json:"reason"`
	SummaryES       string   `json:"summary_es"`
	MatchedKeywords []string `json:"matched_keywords"`
	QueuedAt        string   `json:"queued_at,omitempty"`
	SentAt          string   `json:"sent_at,omitempty"`
}

// State is the persisted document: delivered history plus the pending
// FIFO queue (head = next to deliver).
type State struct {
	Sent  []SentRecord    `json:"sent"`
	Queue []QueuedArticle `json:"queue"`
}

// SeenLinks returns the union of links in sent history and the queue.
func (s *State) SeenLinks() map[string]bool {
	seen := make(map[string]bool, len(s.Sent)+len(s.Queue))
	for _, r := range s.Sent {
		seen[r.Link] = true
	}
	for _, q := range s.Queue {
		seen[q.Link] = true
	}
	return seen
}

// Enqueue appends an article to the queue, stamping queued_at.
func (s *State) Enqueue(a QueuedArticle, now time.Time) {
	a.QueuedAt = now.UTC().Format(time.RFC3339)
	s.Queue = append(s.Queue, a)
}

// Head returns the next article to deliver, or nil when the queue is empty.
func (s *State) Head() *QueuedArticle {
	if len(s.Queue) == 0 {
		return nil
	}
	return &s.Queue[0]
}

// MarkDelivered stamps sent_at on the queue head. Re-delivery of an
// already-sent head just refreshes the stamp.
func (s *State) MarkDelivered(now time.Time) {
	if len(s.Queue) == 0 {
		return
	}
	s.Queue[0].SentAt = now.UTC().Format(time.RFC3339)
}

// ConfirmRead pops the queue head and archives it with read_at set.
// It returns the new record, or nil when the queue is empty.
func (s *State) ConfirmRead(now time.Time) *SentRecord {
	head := s.Head()
	if head == nil {
		return nil
	}

	rec := SentRecord{
		Link:   head.Link,
		Title:  head.Title,
		Date:   head.Published,
		SentAt: head.SentAt,
		ReadAt: now.UTC().Format(time.RFC3339),
	}
	if rec.SentAt == "" {
		rec.SentAt = rec.ReadAt
	}

	s.Queue = s.Queue[1:]
	s.Sent = append(s.Sent, rec)
	return &s.Sent[len(s.Sent)-1]
}

// AppendSent archives an article delivered outside the queue.
func (s *State) AppendSent(rec SentRecord) {
	s.Sent = append(s.Sent, rec)
}

// LastRead returns the most recently archived record with read_at set.
func (s *State) LastRead() *SentRecord {
	for i := len(s.Sent) - 1; i >= 0; i-- {
		if s.Sent[i].ReadAt != "" {
			return &s.Sent[i]
		}
	}
	return nil
}

// truncateSent keeps only the newest maxSentRecords history entries.
func (s *State) truncateSent() {
	if len(s.Sent) > maxSentRecords {
		s.Sent = s.Sent[len(s.Sent)-maxSentRecords:]
	}
}
