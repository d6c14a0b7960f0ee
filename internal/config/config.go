package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Feeds     []string  `yaml:"feeds"`
	Keywords  []string  `yaml:"keywords"`
	Selection Selection `yaml:"selection"`
	Reading   Reading   `yaml:"reading"`
	Queue     Queue     `yaml:"queue"`
	Telegram  Telegram  `yaml:"telegram"`
	LLM       LLM       `yaml:"llm"`
	State     StateCfg  `yaml:"state"`
	Archive   Archive   `yaml:"archive"`
}

type Selection struct {
	LookbackDays  int `yaml:"lookback_days"`
	MaxCandidates int `yaml:"max_candidates_to_llm"`
}

type Reading struct {
	MinMinutes         float64 `yaml:"min_minutes"`
	MaxMinutes         float64 `yaml:"max_minutes"`
	WordsPerMinute     int     `yaml:"words_per_minute"`
	FullTextFloorChars int     `yaml:"full_text_floor_chars"`
}

type Queue struct {
	Target int `yaml:"target"`
}

type Telegram struct {
	BotTokenEnv string `yaml:"bot_token_env"`
	ChatIDEnv   string `yaml:"chat_id_env"`
}

type LLM struct {
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	APIKeyEnv    string `yaml:"api_key_env"`
	OpenAIModel  string `yaml:"openai_model"`
	OpenAIKeyEnv string `yaml:"openai_api_key_env"`
	MaxTokens    int    `yaml:"max_tokens"`
}

type StateCfg struct {
	Path           string `yaml:"path"`
	GitHubRepoEnv  string `yaml:"github_repo_env"`
	GitHubTokenEnv string `yaml:"github_token_env"`
}

type Archive struct {
	Path string `yaml:"path"`
}

// ConfigDir returns the XDG config directory for lectorio.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "lectorio")
}

// DataDir returns the XDG data directory for lectorio.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "lectorio")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/lectorio/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'lectorio init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Selection: Selection{
			LookbackDays:  3,
			MaxCandidates: 30,
		},
		Reading: Reading{
			MinMinutes:         3,
			MaxMinutes:         20,
			WordsPerMinute:     220,
			FullTextFloorChars: 280,
		},
		Queue: Queue{Target: 5},
		Telegram: Telegram{
			BotTokenEnv: "TELEGRAM_BOT_TOKEN",
			ChatIDEnv:   "TELEGRAM_CHAT_ID",
		},
		LLM: LLM{
			Provider:     "anthropic",
			Model:        "claude-haiku-4-5-20251001",
			APIKeyEnv:    "ANTHROPIC_API_KEY",
			OpenAIModel:  "gpt-4o-mini",
			OpenAIKeyEnv: "OPENAI_API_KEY",
			MaxTokens:    400,
		},
		State: StateCfg{
			GitHubRepoEnv:  "GITHUB_REPO",
			GitHubTokenEnv: "GITHUB_TOKEN",
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// StatePath returns the effective local state file path.
func (c *Config) StatePath() string {
	if c.State.Path != "" {
		return c.State.Path
	}
	return filepath.Join(DataDir(), "state.json")
}

// ArchivePath returns the effective delivery archive path.
func (c *Config) ArchivePath() string {
	if c.Archive.Path != "" {
		return c.Archive.Path
	}
	return filepath.Join(DataDir(), "archive.db")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
