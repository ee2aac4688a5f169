package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"checkinbot/internal/schedule"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for checkinbot.
type Config struct {
	General  GeneralConfig  `json:"general" yaml:"general"`
	Channel  ChannelConfig  `json:"channel" yaml:"channel"`
	Discord  DiscordConfig  `json:"discord" yaml:"discord"`
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
	Slack    SlackConfig    `json:"slack" yaml:"slack"`
	Provider ProviderConfig `json:"provider" yaml:"provider"`
	Schedule ScheduleConfig `json:"schedule" yaml:"schedule"`
	Prompts  PromptsConfig  `json:"prompts" yaml:"prompts"`
	Memory   MemoryConfig   `json:"memory" yaml:"memory"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel              string `json:"logLevel" yaml:"logLevel"`
	LogFile               string `json:"logFile,omitempty" yaml:"logFile,omitempty"` // optional, rotated
	MaxConcurrentMessages int    `json:"maxConcurrentMessages" yaml:"maxConcurrentMessages"`
}

// ChannelConfig selects the platform and the single channel the bot serves.
type ChannelConfig struct {
	Platform string `json:"platform" yaml:"platform"` // "discord" | "telegram" | "slack"
	ID       string `json:"id" yaml:"id"`
}

type DiscordConfig struct {
	Token string `json:"token" yaml:"token"`
}

type TelegramConfig struct {
	Token string `json:"token" yaml:"token"`
}

type SlackConfig struct {
	BotToken string `json:"botToken" yaml:"botToken"`
	AppToken string `json:"appToken" yaml:"appToken"` // required for Socket Mode
}

type ProviderConfig struct {
	Kind               string `json:"kind" yaml:"kind"` // "gemini" | "openai"
	APIKey             string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	APIBase            string `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`
	Model              string `json:"model,omitempty" yaml:"model,omitempty"`
	Flatten            bool   `json:"flatten" yaml:"flatten"`
	TimeoutSeconds     int    `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	RateLimitPerMinute int    `json:"rateLimitPerMinute,omitempty" yaml:"rateLimitPerMinute,omitempty"` // 0 = unlimited
}

type ScheduleConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Hour     int    `json:"hour" yaml:"hour"`
	Minute   int    `json:"minute" yaml:"minute"`
	Timezone string `json:"timezone" yaml:"timezone"`
	Cron     string `json:"cron,omitempty" yaml:"cron,omitempty"` // overrides hour/minute when set
	Strategy string `json:"strategy" yaml:"strategy"`             // "all" | "random"
}

type PromptsConfig struct {
	Greeting  string   `json:"greeting,omitempty" yaml:"greeting,omitempty"`
	Questions []string `json:"questions,omitempty" yaml:"questions,omitempty"`
	File      string   `json:"file,omitempty" yaml:"file,omitempty"` // YAML prompt file, wins over inline values
}

type MemoryConfig struct {
	Strategy     string `json:"strategy" yaml:"strategy"` // "per_user" | "window"
	WindowSize   int    `json:"windowSize" yaml:"windowSize"`
	SystemPrompt string `json:"systemPrompt,omitempty" yaml:"systemPrompt,omitempty"`
}

// MetricsConfig configures the Prometheus text endpoint.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Listen   string `json:"listen" yaml:"listen"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.checkinbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".checkinbot"
	}
	return filepath.Join(home, ".checkinbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads the config file, applies the environment overlay and validates
// the result. A missing file is not an error when allowMissing is set; the
// defaults plus the environment are used instead.
func Load(path string, allowMissing bool) (*Config, error) {
	path = ExpandPath(path)

	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Substitute environment variables: ${VAR} and ${VAR:-default}
		data = []byte(ExpandEnvVars(string(data)))
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	case os.IsNotExist(err) && allowMissing:
	default:
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Prompts.File = ExpandPath(cfg.Prompts.File)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// LoadRaw reads the config file as written, without env substitution or
// validation, so it can be edited and saved back. A missing file yields the
// defaults.
func LoadRaw(path string) (*Config, error) {
	path = ExpandPath(path)
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}
	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func decode(path string, data []byte, cfg *Config) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, cfg)
	}
	return json.Unmarshal(data, cfg)
}

// ApplyEnv overlays the environment variables the bot has always accepted
// on top of the file values. Only variables that are set and non-empty apply.
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		cfg.Discord.Token = v
	}
	if v := os.Getenv("GEMINI_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("CHANNEL_ID"); v != "" {
		cfg.Channel.ID = v
	}
	if v := os.Getenv("CHECKIN_TIMEZONE"); v != "" {
		cfg.Schedule.Timezone = v
	}
	if v := os.Getenv("DAILY_HOUR"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DAILY_HOUR: %q is not an integer", v)
		}
		cfg.Schedule.Hour = n
	}
	if v := os.Getenv("DAILY_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DAILY_MINUTE: %q is not an integer", v)
		}
		cfg.Schedule.Minute = n
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

// Save writes cfg as JSON, or YAML when path ends in .yaml/.yml.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	// Tokens live in this file.
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values. All problems are
// reported at once. A required value that still holds a ${VAR} reference
// means the variable was unset at load time and is reported by name.
func Validate(cfg *Config) error {
	return validate(cfg, true)
}

// requiredValues lists the values the selected platform and provider
// cannot run without.
func requiredValues(cfg *Config) map[string]string {
	req := map[string]string{"channel.id": cfg.Channel.ID}
	switch cfg.Channel.Platform {
	case "discord":
		req["discord.token"] = cfg.Discord.Token
	case "telegram":
		req["telegram.token"] = cfg.Telegram.Token
	case "slack":
		req["slack.botToken"] = cfg.Slack.BotToken
		req["slack.appToken"] = cfg.Slack.AppToken
	}
	if cfg.Provider.Kind == "gemini" {
		req["provider.apiKey"] = cfg.Provider.APIKey
	}
	return req
}

// UnresolvedVars returns the names of ${VAR} references left in s.
func UnresolvedVars(s string) []string {
	var names []string
	for _, m := range envVarPattern.FindAllStringSubmatch(s, -1) {
		names = append(names, m[1])
	}
	return names
}

func validate(cfg *Config, requireResolved bool) error {
	var errs []string

	if requireResolved {
		req := requiredValues(cfg)
		paths := make([]string, 0, len(req))
		for p := range req {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			if names := UnresolvedVars(req[p]); len(names) > 0 {
				errs = append(errs, fmt.Sprintf("%s refers to unset environment variable %s", p, strings.Join(names, ", ")))
			}
		}
	}

	if cfg.General.MaxConcurrentMessages < 1 || cfg.General.MaxConcurrentMessages > 100 {
		errs = append(errs, "general.maxConcurrentMessages must be between 1 and 100")
	}
	switch strings.ToLower(cfg.General.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Channel.ID == "" {
		errs = append(errs, "channel.id is required (or set CHANNEL_ID)")
	}
	switch cfg.Channel.Platform {
	case "discord":
		if cfg.Discord.Token == "" {
			errs = append(errs, "discord.token is required (or set DISCORD_TOKEN)")
		}
	case "telegram":
		if cfg.Telegram.Token == "" {
			errs = append(errs, "telegram.token is required")
		}
		resolved := len(UnresolvedVars(cfg.Channel.ID)) == 0
		if _, err := strconv.ParseInt(cfg.Channel.ID, 10, 64); cfg.Channel.ID != "" && resolved && err != nil {
			errs = append(errs, "channel.id must be a numeric chat id for telegram")
		}
		if cfg.Memory.Strategy == "window" {
			errs = append(errs, "memory.strategy window needs channel history, which telegram does not provide")
		}
	case "slack":
		if cfg.Slack.BotToken == "" || cfg.Slack.AppToken == "" {
			errs = append(errs, "slack.botToken and slack.appToken are required")
		}
	default:
		errs = append(errs, "channel.platform must be one of: discord, telegram, slack")
	}

	switch cfg.Provider.Kind {
	case "gemini":
		if cfg.Provider.APIKey == "" {
			errs = append(errs, "provider.apiKey is required for gemini (or set GEMINI_KEY)")
		}
	case "openai":
		// Local OpenAI-compatible servers may not need a key.
	default:
		errs = append(errs, "provider.kind must be one of: gemini, openai")
	}
	if cfg.Provider.TimeoutSeconds < 1 || cfg.Provider.TimeoutSeconds > 600 {
		errs = append(errs, "provider.timeoutSeconds must be between 1 and 600")
	}
	if cfg.Provider.RateLimitPerMinute < 0 {
		errs = append(errs, "provider.rateLimitPerMinute must be >= 0")
	}

	if _, err := schedule.Parse(cfg.Schedule.Hour, cfg.Schedule.Minute, cfg.Schedule.Timezone, cfg.Schedule.Cron); err != nil {
		errs = append(errs, fmt.Sprintf("schedule: %v", err))
	}
	switch cfg.Schedule.Strategy {
	case "all", "random":
	default:
		errs = append(errs, "schedule.strategy must be one of: all, random")
	}

	for i, q := range cfg.Prompts.Questions {
		if strings.TrimSpace(q) == "" {
			errs = append(errs, fmt.Sprintf("prompts.questions[%d] is blank", i))
		}
	}

	switch cfg.Memory.Strategy {
	case "per_user":
	case "window":
		if cfg.Memory.WindowSize < 2 || cfg.Memory.WindowSize > 100 {
			errs = append(errs, "memory.windowSize must be between 2 and 100")
		}
	default:
		errs = append(errs, "memory.strategy must be one of: per_user, window")
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Listen == "" {
			errs = append(errs, "metrics.listen is required when metrics are enabled")
		}
		if !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
			errs = append(errs, "metrics.endpoint must start with /")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
