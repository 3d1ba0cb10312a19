package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"linkrelay/internal/domain"
)

const (
	configPathEnv     = "LINKRELAY_CONFIG"
	apiKeyEnv         = "X_API_KEY"
	apiBaseURLEnv     = "X_API_BASE_URL"
	relaySecretEnv    = "PUBLISHER_SECRET"
	publisherURLEnv   = "PUBLISHER_API"
	watcherDBEnv      = "WATCHER_DB"
	publisherDBEnv    = "PUBLISHER_DB"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Relay     RelayConfig     `yaml:"relay"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	Publisher PublisherConfig `yaml:"publisher"`
	Sources   []SourceConfig  `yaml:"sources"`
}

// LoggingConfig controls the console logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// RelayConfig covers the trust boundary shared by both sides: the token
// secret and how long a minted token stays valid.
type RelayConfig struct {
	Secret   string   `yaml:"secret"`
	TokenTTL Duration `yaml:"tokenTtl"`
}

// WatcherConfig drives the polling side.
type WatcherConfig struct {
	Interval     Duration       `yaml:"interval"`
	Stagger      Duration       `yaml:"stagger"`
	Database     string         `yaml:"database"`
	PublisherURL string         `yaml:"publisherUrl"`
	Provider     ProviderConfig `yaml:"provider"`
}

// ProviderConfig describes the upstream timeline API.
type ProviderConfig struct {
	APIBaseURL string `yaml:"apiBaseUrl"`
	APIKey     string `yaml:"apiKey"`
	PageSize   int    `yaml:"pageSize"`
}

// PublisherConfig drives the ingress gateway and the dispatcher.
type PublisherConfig struct {
	Listen            string         `yaml:"listen"`
	Database          string         `yaml:"database"`
	DefaultRetryAfter Duration       `yaml:"defaultRetryAfter"`
	Telegram          TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires the destination channel.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// SourceConfig describes a single monitored source. Handle or URL is
// meaningful depending on Type; Selector only applies to page-scrape.
type SourceConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Handle   string `yaml:"handle"`
	URL      string `yaml:"url"`
	Selector string `yaml:"selector"`
}

// Duration wraps time.Duration so YAML fields accept Go duration strings
// ("90s", "15m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if parsed < 0 {
		return fmt.Errorf("duration %q must be >= 0", raw)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.normalizeSources()

	return cfg
}

// LoadFile reads a specific YAML file, still honoring env overrides.
func LoadFile(path string) (Config, error) {
	cfg := defaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var fileCfg Config
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg = mergeConfig(cfg, fileCfg)

	cfg.applyEnvOverrides()
	cfg.normalizeSources()

	return cfg, nil
}

// Validate enforces startup-fatal requirements for the requested mode.
// Runtime failures are tolerated by the loops; missing credentials are not.
func (c Config) Validate(watcher, publisher bool) error {
	if c.Relay.Secret == "" {
		return fmt.Errorf("relay.secret is required (or set %s)", relaySecretEnv)
	}
	if watcher {
		if len(c.Sources) == 0 {
			return fmt.Errorf("at least one source is required")
		}
		for _, src := range c.Sources {
			if err := src.validate(); err != nil {
				return err
			}
		}
		if c.needsProviderKey() && c.Watcher.Provider.APIKey == "" {
			return fmt.Errorf("watcher.provider.apiKey is required for timeline sources (or set %s)", apiKeyEnv)
		}
	}
	if publisher {
		if c.Publisher.Telegram.BotToken == "" {
			return fmt.Errorf("publisher.telegram.botToken is required (or set %s)", telegramTokenEnv)
		}
		if c.Publisher.Telegram.ChatID == "" {
			return fmt.Errorf("publisher.telegram.chatId is required (or set %s)", telegramChatIDEnv)
		}
	}
	return nil
}

func (c Config) needsProviderKey() bool {
	for _, src := range c.Sources {
		if src.Type == domain.SourceUserTimeline || src.Type == domain.SourceAPIStream {
			return true
		}
	}
	return false
}

func (s SourceConfig) validate() error {
	switch s.Type {
	case domain.SourceUserTimeline:
		if s.Handle == "" {
			return fmt.Errorf("source %q: handle is required for %s", s.Name, s.Type)
		}
	case domain.SourceAPIStream:
		if s.Handle == "" && s.URL == "" {
			return fmt.Errorf("source %q: handle or url is required for %s", s.Name, s.Type)
		}
	case domain.SourcePageScrape, domain.SourceFeed:
		if s.URL == "" {
			return fmt.Errorf("source %q: url is required for %s", s.Name, s.Type)
		}
	case "":
		return fmt.Errorf("source %q: type is required", s.Name)
	default:
		return fmt.Errorf("source %q: unknown type %q", s.Name, s.Type)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(apiKeyEnv); v != "" {
		c.Watcher.Provider.APIKey = v
	}
	if v := os.Getenv(apiBaseURLEnv); v != "" {
		c.Watcher.Provider.APIBaseURL = v
	}
	if v := os.Getenv(relaySecretEnv); v != "" {
		c.Relay.Secret = v
	}
	if v := os.Getenv(publisherURLEnv); v != "" {
		c.Watcher.PublisherURL = v
	}
	if v := os.Getenv(watcherDBEnv); v != "" {
		c.Watcher.Database = v
	}
	if v := os.Getenv(publisherDBEnv); v != "" {
		c.Publisher.Database = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Publisher.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Publisher.Telegram.ChatID = v
	}
}

// normalizeSources fills derived defaults: every source needs a stable name
// because it keys the dedup ledger and the backoff table.
func (c *Config) normalizeSources() {
	for i := range c.Sources {
		src := &c.Sources[i]
		if src.Name != "" {
			continue
		}
		switch src.Type {
		case domain.SourceUserTimeline, domain.SourceAPIStream:
			src.Name = "x:" + strings.ToLower(src.Handle)
		default:
			if u, err := url.Parse(src.URL); err == nil && u.Host != "" {
				src.Name = src.Type + ":" + u.Host
			} else {
				src.Name = src.Type + ":" + src.URL
			}
		}
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.Relay.Secret != "" {
		base.Relay.Secret = override.Relay.Secret
	}
	if override.Relay.TokenTTL != 0 {
		base.Relay.TokenTTL = override.Relay.TokenTTL
	}

	if override.Watcher.Interval != 0 {
		base.Watcher.Interval = override.Watcher.Interval
	}
	if override.Watcher.Stagger != 0 {
		base.Watcher.Stagger = override.Watcher.Stagger
	}
	if override.Watcher.Database != "" {
		base.Watcher.Database = override.Watcher.Database
	}
	if override.Watcher.PublisherURL != "" {
		base.Watcher.PublisherURL = override.Watcher.PublisherURL
	}
	if override.Watcher.Provider.APIBaseURL != "" {
		base.Watcher.Provider.APIBaseURL = override.Watcher.Provider.APIBaseURL
	}
	if override.Watcher.Provider.APIKey != "" {
		base.Watcher.Provider.APIKey = override.Watcher.Provider.APIKey
	}
	if override.Watcher.Provider.PageSize != 0 {
		base.Watcher.Provider.PageSize = override.Watcher.Provider.PageSize
	}

	if override.Publisher.Listen != "" {
		base.Publisher.Listen = override.Publisher.Listen
	}
	if override.Publisher.Database != "" {
		base.Publisher.Database = override.Publisher.Database
	}
	if override.Publisher.DefaultRetryAfter != 0 {
		base.Publisher.DefaultRetryAfter = override.Publisher.DefaultRetryAfter
	}
	if override.Publisher.Telegram.BotToken != "" {
		base.Publisher.Telegram.BotToken = override.Publisher.Telegram.BotToken
	}
	if override.Publisher.Telegram.ChatID != "" {
		base.Publisher.Telegram.ChatID = override.Publisher.Telegram.ChatID
	}

	if len(override.Sources) > 0 {
		base.Sources = override.Sources
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Relay: RelayConfig{
			TokenTTL: Duration(60 * time.Second),
		},
		Watcher: WatcherConfig{
			Interval:     Duration(2 * time.Minute),
			Stagger:      Duration(4 * time.Second),
			Database:     "watcher.db",
			PublisherURL: "http://127.0.0.1:8000/incoming",
			Provider: ProviderConfig{
				APIBaseURL: "https://api.twitterapi.io/twitter",
				PageSize:   10,
			},
		},
		Publisher: PublisherConfig{
			Listen:            ":8000",
			Database:          "publisher.db",
			DefaultRetryAfter: Duration(5 * time.Second),
		},
	}
}
