package bot

import (
	"context"
	"fmt"
	"html"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mvillarino/lectorio/internal/archive"
	"github.com/mvillarino/lectorio/internal/refill"
	"github.com/mvillarino/lectorio/internal/retry"
	"github.com/mvillarino/lectorio/internal/state"
	"github.com/mvillarino/lectorio/internal/telegram"
)

// Transport is the messaging side of the bot.
type Transport interface {
	SendText(ctx context.Context, text string) error
	SendWithKeyboard(ctx context.Context, text string, buttons [][]telegram.Button) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	GetUpdates(ctx context.Context, offset int64) ([]telegram.Update, error)
}

// Refiller tops the queue up to its target.
type Refiller interface {
	Refill(ctx context.Context, st *state.State) refill.Result
}

// Recorder is the optional delivery log.
type Recorder interface {
	RecordDelivery(link, title, source string) error
	MarkRead(link string) error
	GetStats() (*archive.Stats, error)
}

// Bot is the interactive long-polling listener. It processes one update
// at a time; every handler reloads state fresh from the store and saves
// after mutating, so the scheduled refill process can interleave safely
// behind the store's own conflict handling.
type Bot struct {
	transport Transport
	store     state.Store
	refiller  Refiller
	log       Recorder // may be nil
	chatID    string   // sole authorized recipient
	now       func() time.Time
	offset    int64
}

// New creates a Bot for the single authorized chat.
func New(transport Transport, store state.Store, refiller Refiller, rec Recorder, chatID string) *Bot {
	return &Bot{
		transport: transport,
		store:     store,
		refiller:  refiller,
		log:       rec,
		chatID:    chatID,
		now:       time.Now,
	}
}

// Run polls for updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	log.Println("Bot listener started, waiting for commands")
	if err := b.transport.SendText(ctx, "✅ Bot iniciado. Usá /ayuda para ver los comandos disponibles."); err != nil {
		log.Printf("Failed to announce startup: %v", err)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var updates []telegram.Update
		err := retry.Do(ctx, retry.Config{Attempts: 3, BaseDelay: 2 * time.Second}, func() error {
			var pollErr error
			updates, pollErr = b.transport.GetUpdates(ctx, b.offset)
			return pollErr
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("getUpdates failed: %v", err)
			continue
		}

		for _, u := range updates {
			b.offset = u.UpdateID + 1
			b.handleUpdate(ctx, u)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, u telegram.Update) {
	if u.CallbackQuery != nil {
		b.handleCallback(ctx, u.CallbackQuery)
		return
	}

	msg := u.Message
	if msg == nil {
		msg = u.EditedMessage
	}
	if msg == nil {
		return
	}

	if !b.authorized(msg.Chat.ID) {
		log.Printf("Unauthorized chat_id=%d tried to use the bot", msg.Chat.ID)
		return
	}

	text := strings.TrimSpace(msg.Text)
	log.Printf("Received %q from chat_id=%d", text, msg.Chat.ID)

	switch command(text) {
	case "/articulo", "/siguiente":
		b.handleArticulo(ctx)
	case "/leido":
		b.handleLeido(ctx)
	case "/cola":
		b.handleCola(ctx)
	case "/recargar":
		b.handleRecargar(ctx)
	case "/estado":
		b.handleEstado(ctx)
	case "/ayuda", "/start", "/help":
		b.handleAyuda(ctx)
	default:
		if strings.HasPrefix(text, "/") {
			b.reply(ctx, "❓ Comando no reconocido. Usá /ayuda.")
		}
		// Plain text is ignored.
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) {
	if !b.authorized(cb.ChatID()) {
		log.Printf("Unauthorized callback from chat_id=%d", cb.ChatID())
		return
	}

	switch cb.Data {
	case "leido":
		if err := b.transport.AnswerCallback(ctx, cb.ID, "Marcado como leído"); err != nil {
			log.Printf("Failed to answer callback: %v", err)
		}
		b.handleLeido(ctx)
	case "cola":
		if err := b.transport.AnswerCallback(ctx, cb.ID, ""); err != nil {
			log.Printf("Failed to answer callback: %v", err)
		}
		b.handleCola(ctx)
	default:
		if err := b.transport.AnswerCallback(ctx, cb.ID, ""); err != nil {
			log.Printf("Failed to answer callback: %v", err)
		}
	}
}

// handleArticulo delivers the queue head, refilling first when the queue
// is empty. Re-requesting an unconfirmed head re-displays it.
func (b *Bot) handleArticulo(ctx context.Context) {
	st, err := b.store.Load()
	if err != nil {
		log.Printf("Failed to load state: %v", err)
		b.reply(ctx, "⚠️ No pude leer el estado. Intentá de nuevo.")
		return
	}

	if st.Head() == nil {
		b.reply(ctx, "🔍 Buscando el mejor artículo… puede tardar un minuto.")
		r := b.refiller.Refill(ctx, st)
		if r.Added == 0 {
			if r.Candidates == 0 {
				b.reply(ctx, "⚠️ No encontré artículos candidatos en este momento. Probá de nuevo más tarde.")
			} else {
				b.reply(ctx, "⚠️ No pude seleccionar un artículo. Intentá de nuevo.")
			}
			return
		}
		b.save(st)
	}

	head := st.Head()
	firstDelivery := head.SentAt == ""
	if err := b.transport.SendWithKeyboard(ctx, telegram.FormatArticle(head), telegram.ArticleButtons); err != nil {
		log.Printf("Failed to send article: %v", err)
		return
	}

	st.MarkDelivered(b.now())
	if firstDelivery {
		b.recordDelivery(head)
	}
	b.save(st)
}

func (b *Bot) handleLeido(ctx context.Context) {
	st, err := b.store.Load()
	if err != nil {
		log.Printf("Failed to load state: %v", err)
		b.reply(ctx, "⚠️ No pude leer el estado. Intentá de nuevo.")
		return
	}

	rec := st.ConfirmRead(b.now())
	if rec == nil {
		b.reply(ctx, "📭 La cola está vacía, no hay nada para marcar. Usá /articulo para pedir uno nuevo.")
		return
	}

	b.save(st)
	if b.log != nil {
		if err := b.log.MarkRead(rec.Link); err != nil {
			log.Printf("Failed to mark archive read: %v", err)
		}
	}
	b.reply(ctx, fmt.Sprintf("✅ Marcado como leído: <i>%s</i>", html.EscapeString(rec.Title)))
}

func (b *Bot) handleCola(ctx context.Context) {
	st, err := b.store.Load()
	if err != nil {
		log.Printf("Failed to load state: %v", err)
		return
	}

	if len(st.Queue) == 0 {
		b.reply(ctx, "📭 No hay artículos en cola. Usá /recargar para llenarla.")
		return
	}

	var sb strings.Builder
	sb.WriteString("📋 <b>Artículos en cola</b>\n\n")
	for i, q := range st.Queue {
		fmt.Fprintf(&sb, "%d. %s — %s\n", i+1, html.EscapeString(q.Title), html.EscapeString(q.Source))
	}
	b.reply(ctx, sb.String())
}

func (b *Bot) handleRecargar(ctx context.Context) {
	b.reply(ctx, "🔄 Recargando la cola… puede tardar un minuto.")

	st, err := b.store.Load()
	if err != nil {
		log.Printf("Failed to load state: %v", err)
		b.reply(ctx, "⚠️ No pude leer el estado. Intentá de nuevo.")
		return
	}

	r := b.refiller.Refill(ctx, st)
	if r.Added > 0 {
		b.save(st)
	}

	switch {
	case r.Added > 0:
		b.reply(ctx, fmt.Sprintf("✅ Cola recargada: %d artículo(s) nuevos, %d en total.", r.Added, len(st.Queue)))
	case r.Candidates == 0:
		b.reply(ctx, "⚠️ No encontré artículos candidatos en este momento. Probá de nuevo más tarde.")
	default:
		b.reply(ctx, "⚠️ No pude seleccionar artículos nuevos. La cola queda como estaba.")
	}
}

func (b *Bot) handleEstado(ctx context.Context) {
	st, err := b.store.Load()
	if err != nil {
		log.Printf("Failed to load state: %v", err)
		return
	}

	lastTitle := "—"
	if last := st.LastRead(); last != nil {
		lastTitle = last.Title
	}

	var sb strings.Builder
	sb.WriteString("📊 <b>Estado del bot</b>\n\n")
	fmt.Fprintf(&sb, "📬 Artículos enviados: <b>%d</b>\n", len(st.Sent))
	fmt.Fprintf(&sb, "📋 Artículos en cola: <b>%d</b>\n", len(st.Queue))
	fmt.Fprintf(&sb, "📄 Último leído: <i>%s</i>\n", html.EscapeString(lastTitle))

	if b.log != nil {
		if stats, err := b.log.GetStats(); err == nil && len(stats.BySource) > 0 {
			sb.WriteString("\n🗂 Por fuente:\n")
			sources := make([]string, 0, len(stats.BySource))
			for s := range stats.BySource {
				sources = append(sources, s)
			}
			sort.Strings(sources)
			for _, s := range sources {
				fmt.Fprintf(&sb, "  %s: %d\n", html.EscapeString(s), stats.BySource[s])
			}
		}
	}

	b.reply(ctx, sb.String())
}

func (b *Bot) handleAyuda(ctx context.Context) {
	b.reply(ctx,
		"🤖 <b>Lectorio — Comandos</b>\n\n"+
			"/articulo — Envía el próximo artículo de la cola\n"+
			"/siguiente — Igual que /articulo\n"+
			"/leido — Marca el artículo actual como leído\n"+
			"/cola — Lista los artículos en cola\n"+
			"/recargar — Vuelve a llenar la cola\n"+
			"/estado — Muestra estadísticas del bot\n"+
			"/ayuda — Muestra este mensaje")
}

func (b *Bot) recordDelivery(head *state.QueuedArticle) {
	if b.log == nil {
		return
	}
	if err := b.log.RecordDelivery(head.Link, head.Title, head.Source); err != nil {
		log.Printf("Failed to record delivery: %v", err)
	}
}

func (b *Bot) save(st *state.State) {
	if err := b.store.Save(st); err != nil {
		log.Printf("Failed to save state: %v", err)
	}
}

func (b *Bot) reply(ctx context.Context, text string) {
	if err := b.transport.SendText(ctx, text); err != nil {
		log.Printf("Failed to send reply: %v", err)
	}
}

func (b *Bot) authorized(chatID int64) bool {
	return b.chatID != "" && strconv.FormatInt(chatID, 10) == b.chatID
}

// command extracts the bare command token: first word, lowercased, with
// any @botname suffix removed.
func command(text string) string {
	if text == "" {
		return ""
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	cmd := strings.ToLower(fields[0])
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	return cmd
}
