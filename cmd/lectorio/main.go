package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvillarino/lectorio/internal/archive"
	"github.com/mvillarino/lectorio/internal/bot"
	"github.com/mvillarino/lectorio/internal/config"
	"github.com/mvillarino/lectorio/internal/feed"
	"github.com/mvillarino/lectorio/internal/llm"
	"github.com/mvillarino/lectorio/internal/refill"
	"github.com/mvillarino/lectorio/internal/selector"
	"github.com/mvillarino/lectorio/internal/state"
	"github.com/mvillarino/lectorio/internal/telegram"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "lectorio",
	Short:   "Curated reading queue over Telegram",
	Long:    "Lectorio watches RSS feeds, picks one worthwhile article at a time with an LLM, and delivers it to a single Telegram chat with a read-confirmation queue.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(refillCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("lectorio", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/lectorio/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure feeds, keywords, and API key env vars.")
		return nil
	},
}

// --- send command ---

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Pick one article and send it now (daily push mode)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		client, err := newTelegramClient()
		if err != nil {
			return err
		}

		store := newStore()
		st, err := store.Load()
		if err != nil {
			return fmt.Errorf("loading state: %w", err)
		}

		ctrl := newController()
		candidates := ctrl.Candidates(ctx, st.SeenLinks())
		fmt.Printf("Found %d candidate article(s)\n", len(candidates))

		sel := newSelector()
		pick := sel.Select(ctx, candidates, cfg.Keywords, cfg.Selection.MaxCandidates)
		if pick == nil {
			if err := client.SendText(ctx, noSelectionNotice(len(candidates))); err != nil {
				return fmt.Errorf("sending notice: %w", err)
			}
			fmt.Println("No article selected; sent notice instead.")
			return nil
		}

		if err := client.SendWithKeyboard(ctx, telegram.FormatArticle(pick), telegram.ArticleButtons); err != nil {
			return fmt.Errorf("sending article: %w", err)
		}

		now := time.Now().UTC()
		st.AppendSent(state.SentRecord{
			Link:   pick.Link,
			Title:  pick.Title,
			Date:   now.Format("2006-01-02"),
			SentAt: now.Format(time.RFC3339),
		})
		if err := store.Save(st); err != nil {
			return fmt.Errorf("saving state: %w", err)
		}

		if arch := openArchive(); arch != nil {
			defer arch.Close()
			if err := arch.RecordDelivery(pick.Link, pick.Title, pick.Source); err != nil {
				log.Printf("Failed to record delivery: %v", err)
			}
		}

		fmt.Printf("Sent: %s\n", pick.Title)
		return nil
	},
}

// noSelectionNotice tells an empty candidate pool apart from a failed
// selection in the recipient-facing message.
func noSelectionNotice(candidateCount int) string {
	if candidateCount == 0 {
		return "⚠️ No se encontraron artículos candidatos hoy. Probá de nuevo mañana."
	}
	return "⚠️ No pude seleccionar un artículo hoy. Probá de nuevo más tarde."
}

// --- listen command ---

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Run the interactive bot (long polling)",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newTelegramClient()
		if err != nil {
			return err
		}

		arch := openArchive()
		if arch != nil {
			defer arch.Close()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var rec bot.Recorder
		if arch != nil {
			rec = arch
		}
		b := bot.New(client, newStore(), newController(), rec, client.ChatID())

		fmt.Println("Listening for commands. Press Ctrl+C to stop.")
		if err := b.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		fmt.Println("\nStopped.")
		return nil
	},
}

// --- refill command ---

var refillCmd = &cobra.Command{
	Use:   "refill",
	Short: "Top the article queue up to its target size",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		store := newStore()
		st, err := store.Load()
		if err != nil {
			return fmt.Errorf("loading state: %w", err)
		}

		before := len(st.Queue)
		r := newController().Refill(ctx, st)

		if r.Added > 0 {
			if err := store.Save(st); err != nil {
				return fmt.Errorf("saving state: %w", err)
			}
		}

		fmt.Printf("Queue: %d -> %d (target %d)\n", before, len(st.Queue), cfg.Queue.Target)
		fmt.Printf("  Candidates considered: %d\n", r.Candidates)
		fmt.Printf("  Articles added: %d\n", r.Added)
		return nil
	},
}

// --- status command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue and delivery status",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newStore().Load()
		if err != nil {
			return fmt.Errorf("loading state: %w", err)
		}

		fmt.Println("Queue:")
		fmt.Printf("  Pending articles: %d (target %d)\n", len(st.Queue), cfg.Queue.Target)
		for i, q := range st.Queue {
			marker := " "
			if q.SentAt != "" {
				marker = ">"
			}
			fmt.Printf("  %s %d. %s (%s)\n", marker, i+1, q.Title, q.Source)
		}

		fmt.Println("\nHistory:")
		fmt.Printf("  Sent records: %d\n", len(st.Sent))
		if last := st.LastRead(); last != nil {
			fmt.Printf("  Last read: %s (%s)\n", last.Title, last.ReadAt)
		}

		if arch := openArchive(); arch != nil {
			defer arch.Close()
			stats, err := arch.GetStats()
			if err == nil {
				fmt.Println("\nArchive:")
				fmt.Printf("  Delivered: %d\n", stats.Delivered)
				fmt.Printf("  Read: %d\n", stats.Read)
				if len(stats.BySource) > 0 {
					type kv struct {
						key string
						val int
					}
					var sorted []kv
					for k, v := range stats.BySource {
						sorted = append(sorted, kv{k, v})
					}
					sort.Slice(sorted, func(i, j int) bool { return sorted[i].val > sorted[j].val })
					fmt.Println("  By source:")
					for _, s := range sorted {
						fmt.Printf("    %s: %d\n", s.key, s.val)
					}
				}
			}
		}
		return nil
	},
}

// --- wiring helpers ---

func newSelector() *selector.Selector {
	provider := llm.CreateProvider(
		cfg.LLM.Provider,
		cfg.LLM.Model,
		cfg.LLM.APIKeyEnv,
		cfg.LLM.OpenAIModel,
		cfg.LLM.OpenAIKeyEnv,
	)
	return selector.New(provider, cfg.LLM.MaxTokens)
}

func newController() *refill.Controller {
	fetcher := feed.NewFetcher(cfg.Feeds, feed.NewReadabilityExtractor(20*time.Second))
	return refill.New(fetcher, newSelector(), refill.Config{
		Keywords:           cfg.Keywords,
		MaxCandidates:      cfg.Selection.MaxCandidates,
		QueueTarget:        cfg.Queue.Target,
		LookbackDays:       cfg.Selection.LookbackDays,
		MinMinutes:         cfg.Reading.MinMinutes,
		MaxMinutes:         cfg.Reading.MaxMinutes,
		WordsPerMinute:     cfg.Reading.WordsPerMinute,
		FullTextFloorChars: cfg.Reading.FullTextFloorChars,
	})
}

// newStore prefers the GitHub-backed store when its env vars are set so
// state survives across hosts; otherwise it stays local.
func newStore() state.Store {
	local := state.NewFileStore(cfg.StatePath())
	repo := os.Getenv(cfg.State.GitHubRepoEnv)
	token := os.Getenv(cfg.State.GitHubTokenEnv)
	if repo != "" && token != "" {
		return state.NewGitHubStore(repo, token, local)
	}
	return local
}

func newTelegramClient() (*telegram.Client, error) {
	token := os.Getenv(cfg.Telegram.BotTokenEnv)
	if token == "" {
		return nil, fmt.Errorf("%s is not set", cfg.Telegram.BotTokenEnv)
	}
	chatID := os.Getenv(cfg.Telegram.ChatIDEnv)
	if chatID == "" {
		return nil, fmt.Errorf("%s is not set", cfg.Telegram.ChatIDEnv)
	}
	return telegram.NewClient(token, chatID), nil
}

// openArchive opens the local delivery archive; failures disable it
// rather than aborting the command.
func openArchive() *archive.Archive {
	arch, err := archive.Open(cfg.ArchivePath())
	if err != nil {
		log.Printf("Archive unavailable: %v", err)
		return nil
	}
	return arch
}
