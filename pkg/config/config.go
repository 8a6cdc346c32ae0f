package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const defaultKeysFile = "/run/secrets/translate_api_keys"

// Pair is one source→target translation direction, identified by its
// lowercase "source:target" key.
type Pair struct {
	Source string
	Target string
	Key    string
}

// TelegramConfig configures the Telegram transport adapter.
type TelegramConfig struct {
	Token string `env:"TELEGRAM_BOT_TOKEN"`
}

// ControlConfig configures the health/control HTTP endpoint.
type ControlConfig struct {
	Enabled bool   `env:"CONTROL_ENABLED" envDefault:"true"`
	Host    string `env:"CONTROL_HOST" envDefault:"0.0.0.0"`
	Port    int    `env:"CONTROL_PORT" envDefault:"38866"`
	Token   string `env:"CONTROL_TOKEN"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format string `env:"LINGORELAY_LOG_FORMAT" envDefault:"text"`
	Level  string `env:"LINGORELAY_LOG_LEVEL" envDefault:"info"`
}

// rawConfig is the flat env surface before normalization.
type rawConfig struct {
	TargetChatID     string `env:"TRANSLATE_TARGET_CHAT_ID"`
	Pairs            string `env:"TRANSLATE_PAIRS" envDefault:"zh-tw:vi,vi:zh-tw"`
	DefaultPair      string `env:"TRANSLATE_DEFAULT_PAIR" envDefault:"zh-tw:vi"`
	APIKeys          string `env:"TRANSLATE_API_KEYS"`
	APIKeysFile      string `env:"TRANSLATE_API_KEYS_FILE"`
	Model            string `env:"TRANSLATE_MODEL" envDefault:"gpt-4o-mini"`
	MinIntervalMS    int    `env:"TRANSLATE_MIN_INTERVAL_MS" envDefault:"12000"`
	TimeoutMS        int    `env:"TRANSLATE_TIMEOUT_MS" envDefault:"45000"`
	MaxRetriesPerKey int    `env:"TRANSLATE_MAX_RETRIES_PER_KEY" envDefault:"1"`
	QueueCapacity    int    `env:"TRANSLATE_QUEUE_MAX_SIZE" envDefault:"100"`
	IncludeFromMe    bool   `env:"TRANSLATE_INCLUDE_FROM_ME" envDefault:"true"`

	Telegram TelegramConfig
	Control  ControlConfig
	Logging  LoggingConfig
}

// Config is the normalized runtime configuration. It is replaced wholesale on
// hot reload; consumers must not mutate it.
type Config struct {
	TargetChatID     string
	Pairs            []Pair
	DefaultPairKey   string
	APIKeys          []string
	Model            string
	MinInterval      time.Duration
	RequestTimeout   time.Duration
	MaxRetriesPerKey int
	QueueCapacity    int
	IncludeFromMe    bool

	Telegram TelegramConfig
	Control  ControlConfig
	Logging  LoggingConfig
}

// Load reads the full configuration from the process environment and
// validates it. Hot reload re-runs Load against the current environment.
func Load() (*Config, error) {
	var raw rawConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg, err := fromRaw(raw)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func fromRaw(raw rawConfig) (*Config, error) {
	keys, err := resolveAPIKeys(raw)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(raw.TimeoutMS) * time.Millisecond
	if timeout < time.Second {
		timeout = time.Second
	}

	minInterval := time.Duration(raw.MinIntervalMS) * time.Millisecond
	if minInterval < 0 {
		minInterval = 0
	}

	retries := raw.MaxRetriesPerKey
	if retries < 0 {
		retries = 0
	}

	return &Config{
		TargetChatID:     strings.TrimSpace(raw.TargetChatID),
		Pairs:            ParsePairs(raw.Pairs),
		DefaultPairKey:   strings.ToLower(strings.TrimSpace(raw.DefaultPair)),
		APIKeys:          keys,
		Model:            strings.TrimSpace(raw.Model),
		MinInterval:      minInterval,
		RequestTimeout:   timeout,
		MaxRetriesPerKey: retries,
		QueueCapacity:    raw.QueueCapacity,
		IncludeFromMe:    raw.IncludeFromMe,
		Telegram:         raw.Telegram,
		Control:          raw.Control,
		Logging:          raw.Logging,
	}, nil
}

// Validate rejects configurations the relay cannot run with. A failed reload
// keeps the previous configuration active, so validation happens before any
// state is swapped.
func (c *Config) Validate() error {
	if c.TargetChatID == "" {
		return errors.New("TRANSLATE_TARGET_CHAT_ID is required")
	}
	if len(c.APIKeys) == 0 {
		return errors.New("no translation API keys: set TRANSLATE_API_KEYS or TRANSLATE_API_KEYS_FILE")
	}
	if len(c.Pairs) == 0 {
		return errors.New("TRANSLATE_PAIRS must contain at least one source:target pair")
	}
	if c.Model == "" {
		return errors.New("TRANSLATE_MODEL is required")
	}
	return nil
}

// PairByKey returns the configured pair with the given key.
func (c *Config) PairByKey(key string) (Pair, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, pair := range c.Pairs {
		if pair.Key == key {
			return pair, true
		}
	}
	return Pair{}, false
}

// DefaultPair resolves the configured default pair, falling back to the first
// configured pair when the default key is absent.
func (c *Config) DefaultPair() Pair {
	if pair, ok := c.PairByKey(c.DefaultPairKey); ok {
		return pair
	}
	return c.Pairs[0]
}

// PairBySourcePrefix returns the first configured pair whose source language
// prefix matches the prefix of sourceLang ("zh-tw" matches "zh").
func (c *Config) PairBySourcePrefix(sourceLang string) (Pair, bool) {
	prefix := LangPrefix(sourceLang)
	for _, pair := range c.Pairs {
		if LangPrefix(pair.Source) == prefix {
			return pair, true
		}
	}
	return Pair{}, false
}

// ParsePairs parses a comma-separated "source:target" list into a
// deduplicated ordered pair set. Malformed tokens are skipped.
func ParsePairs(raw string) []Pair {
	tokens := splitCSV(raw)

	seen := make(map[string]struct{}, len(tokens))
	pairs := make([]Pair, 0, len(tokens))
	for _, token := range tokens {
		parts := strings.Split(token, ":")
		if len(parts) != 2 {
			continue
		}
		source := normalizeLang(parts[0])
		target := normalizeLang(parts[1])
		if source == "" || target == "" {
			continue
		}
		key := source + ":" + target
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		pairs = append(pairs, Pair{Source: source, Target: target, Key: key})
	}

	return slices.Clip(pairs)
}

// LangPrefix truncates a language tag at its first hyphen ("zh-tw" → "zh").
func LangPrefix(lang string) string {
	return strings.SplitN(normalizeLang(lang), "-", 2)[0]
}

func normalizeLang(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// resolveAPIKeys prefers the direct env list and falls back to a secrets file
// with comma or newline separated keys.
func resolveAPIKeys(raw rawConfig) ([]string, error) {
	if direct := splitCSV(raw.APIKeys); len(direct) > 0 {
		return direct, nil
	}

	path := strings.TrimSpace(raw.APIKeysFile)
	explicit := path != ""
	if !explicit {
		path = defaultKeysFile
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if explicit {
			return nil, fmt.Errorf("read API keys file %s: %w", path, err)
		}
		return nil, nil
	}

	return splitCSV(strings.NewReplacer("\r", ",", "\n", ",").Replace(string(content))), nil
}

func splitCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}
	return slices.Clip(clean)
}
