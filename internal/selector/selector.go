package selector

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/mvillarino/lectorio/internal/feed"
	"github.com/mvillarino/lectorio/internal/llm"
	"github.com/mvillarino/lectorio/internal/state"
)

const summarySnippetChars = 300

const promptTemplate = `Sos un curador de contenido. De la siguiente lista de artículos, seleccioná el MÁS relevante e interesante para alguien que trabaja en operaciones, business intelligence, y gestión de datos en una empresa de producción.

Keywords de interés: %s

Artículos candidatos:
%s
Respondé SOLO con un JSON válido, sin markdown:
{"index": <número>, "reason": "<1 línea de por qué>", "summary_es": "<resumen de 2-3 oraciones en español>", "matched_keywords": ["kw1", "kw2"]}`

// Selector asks an LLM to pick the best candidate from a pool.
type Selector struct {
	provider  llm.Provider
	maxTokens int
}

// New creates a Selector. provider may be nil, in which case every Select
// returns no selection.
func New(provider llm.Provider, maxTokens int) *Selector {
	if maxTokens <= 0 {
		maxTokens = 400
	}
	return &Selector{provider: provider, maxTokens: maxTokens}
}

// Select asks the provider to choose from the first maxCandidates entries
// and returns the chosen candidate enriched with the model's reasoning.
// It returns nil (never an error) when no usable selection is produced:
// provider failure, unparseable output, and invalid index all degrade to
// no selection.
func (s *Selector) Select(ctx context.Context, candidates []feed.Candidate, keywords []string, maxCandidates int) *state.QueuedArticle {
	if len(candidates) == 0 {
		log.Println("No candidates provided to selector")
		return nil
	}
	if s.provider == nil {
		log.Println("No LLM provider available for selection")
		return nil
	}

	pool := candidates
	if maxCandidates > 0 && len(pool) > maxCandidates {
		pool = pool[:maxCandidates]
	}

	raw, err := s.provider.Generate(ctx, buildPrompt(pool, keywords), s.maxTokens)
	if err != nil {
		log.Printf("LLM selection call failed: %v", err)
		return nil
	}

	parsed := llm.ParseJSONResponse(raw)
	if parsed == nil {
		log.Printf("Could not parse selection response: %q", raw)
		return nil
	}

	idx, ok := validIndex(parsed["index"], len(pool))
	if !ok {
		log.Printf("Invalid index in selection response: %v", parsed["index"])
		return nil
	}

	chosen := pool[idx]
	keywordsMatched := llm.GetStringSlice(parsed, "matched_keywords")
	if keywordsMatched == nil {
		keywordsMatched = []string{}
	}

	return &state.QueuedArticle{
		Candidate:       chosen,
		Reason:          llm.GetString(parsed, "reason", ""),
		SummaryES:       llm.GetString(parsed, "summary_es", chosen.Summary),
		MatchedKeywords: keywordsMatched,
	}
}

func buildPrompt(pool []feed.Candidate, keywords []string) string {
	var list strings.Builder
	for i, c := range pool {
		snippet := truncateRunes(c.Summary, summarySnippetChars)
		fmt.Fprintf(&list, "[%d] %s — %s\nResumen: %s\n\n", i, c.Title, c.Source, snippet)
	}
	return fmt.Sprintf(promptTemplate, strings.Join(keywords, ", "), list.String())
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

// validIndex accepts only an integral JSON number inside [0, poolSize).
func validIndex(v any, poolSize int) (int, bool) {
	n, ok := v.(float64)
	if !ok {
		return 0, false
	}
	if n != math.Trunc(n) {
		return 0, false
	}
	idx := int(n)
	if idx < 0 || idx >= poolSize {
		return 0, false
	}
	return idx, true
}
