package telegram

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/mvillarino/lectorio/internal/state"
)

// ArticleButtons is the inline keyboard attached to every delivered article.
var ArticleButtons = [][]Button{{
	{Label: "✅ Marcar como leído", Data: "leido"},
	{Label: "📋 Ver cola", Data: "cola"},
}}

// FormatArticle renders the delivery card for an article, shrinking the
// summary as needed to stay inside the message size limit.
func FormatArticle(a *state.QueuedArticle) string {
	summary := a.SummaryES
	msg := buildArticleMessage(a, summary)

	for len(msg) > maxMessageLength && summary != "" {
		cut := int(float64(len(summary)) * 0.85)
		if idx := strings.LastIndex(summary[:cut], " "); idx > 0 {
			cut = idx
		}
		next := truncateRunes(summary, cut) + "…"
		// If the rest of the card alone is over the limit, shrinking
		// the summary further cannot help.
		if len(next) >= len(summary) {
			next = ""
		}
		summary = next
		msg = buildArticleMessage(a, summary)
	}

	return truncateRunes(msg, maxMessageLength)
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

func buildArticleMessage(a *state.QueuedArticle, summary string) string {
	readingMin := "?"
	if a.ReadingMin > 0 {
		readingMin = fmt.Sprintf("%.1f", a.ReadingMin)
	}

	return fmt.Sprintf(
		"📰 <b>%s</b>\n\n"+
			"📝 %s\n\n"+
			"🏷 %s\n"+
			"⏱ ~%s min de lectura\n"+
			"📌 %s\n"+
			"🔗 <a href=\"%s\">Leer artículo completo</a>\n\n"+
			"💡 <i>%s</i>",
		html.EscapeString(a.Title),
		html.EscapeString(summary),
		html.EscapeString(strings.Join(a.MatchedKeywords, ", ")),
		readingMin,
		html.EscapeString(a.Source),
		a.Link,
		html.EscapeString(a.Reason),
	)
}
