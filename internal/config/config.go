package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"

	"github.com/ErgoTechKG/wechat-cc/internal/tier"
)

var ErrInvalid = errors.New("invalid config")

type ClaudeConfig struct {
	CLIPath        string `yaml:"cli_path"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	APIKey         string `yaml:"api_key"`
}

type Limits struct {
	Memory      string  `yaml:"memory"`
	AdminMemory string  `yaml:"admin_memory"`
	CPUs        float64 `yaml:"cpus"`
	AdminCPUs   float64 `yaml:"admin_cpus"`
	Pids        int64   `yaml:"pids"`
	TmpSize     string  `yaml:"tmp_size"`
}

type Networks struct {
	Admin   string `yaml:"admin"`
	Trusted string `yaml:"trusted"`
	Normal  string `yaml:"normal"`
}

type DockerConfig struct {
	Image           string   `yaml:"image"`
	ContainerPrefix string   `yaml:"container_prefix"`
	DataDir         string   `yaml:"data_dir"`
	BuildDir        string   `yaml:"build_dir"`
	Dockerfile      string   `yaml:"dockerfile"`
	Limits          Limits   `yaml:"limits"`
	Network         Networks `yaml:"network"`
}

type PermissionsConfig struct {
	NotifyUnauthorized  bool   `yaml:"notify_unauthorized"`
	UnauthorizedMessage string `yaml:"unauthorized_message"`
	DefaultLevel        string `yaml:"default_level"`
}

type SessionConfig struct {
	ExpireMinutes int `yaml:"expire_minutes"`
	MaxHistory    int `yaml:"max_history"`
}

type RateLimitConfig struct {
	MaxPerMinute int `yaml:"max_per_minute"`
	MaxPerDay    int `yaml:"max_per_day"`
}

type SecurityConfig struct {
	BlockedPatterns   []string `yaml:"blocked_patterns"`
	TrustedFileAccess bool     `yaml:"trusted_file_access"`
}

type LoggingConfig struct {
	Level             string `yaml:"level"`
	Format            string `yaml:"format"` // text | json
	File              string `yaml:"file"`
	LogMessageContent bool   `yaml:"log_message_content"`
}

type TelegramConfig struct {
	Token              string `yaml:"token"`
	APIBase            string `yaml:"api_base"`
	PollTimeoutSeconds int    `yaml:"poll_timeout_seconds"`
}

type TransportConfig struct {
	Kind     string         `yaml:"kind"` // stdin | telegram
	Telegram TelegramConfig `yaml:"telegram"`
}

type Config struct {
	AdminID                string            `yaml:"admin_id"`
	DBPath                 string            `yaml:"db_path"`
	CleanupIntervalMinutes int               `yaml:"cleanup_interval_minutes"`
	Claude                 ClaudeConfig      `yaml:"claude"`
	Docker                 DockerConfig      `yaml:"docker"`
	Permissions            PermissionsConfig `yaml:"permissions"`
	Session                SessionConfig     `yaml:"session"`
	RateLimit              RateLimitConfig   `yaml:"rate_limit"`
	Security               SecurityConfig    `yaml:"security"`
	Logging                LoggingConfig     `yaml:"logging"`
	Transport              TransportConfig   `yaml:"transport"`
}

// Default returns the built-in configuration before any file or
// environment is applied.
func Default() *Config {
	return &Config{
		DBPath:                 "./wechat-cc.db",
		CleanupIntervalMinutes: 60,
		Claude: ClaudeConfig{
			CLIPath:        "claude",
			TimeoutSeconds: 120,
		},
		Docker: DockerConfig{
			Image:           "claude-sandbox:latest",
			ContainerPrefix: "claude-friend-",
			DataDir:         "~/claude-bridge-data",
			BuildDir:        "docker",
			Dockerfile:      "Dockerfile.sandbox",
			Limits: Limits{
				Memory:      "512m",
				AdminMemory: "2g",
				CPUs:        1,
				AdminCPUs:   2,
				Pids:        100,
				TmpSize:     "100m",
			},
			Network: Networks{
				Admin:   "bridge",
				Trusted: "claude-limited",
				Normal:  "none",
			},
		},
		Permissions: PermissionsConfig{
			NotifyUnauthorized:  true,
			UnauthorizedMessage: "Sorry, you are not authorized to use this service.",
			DefaultLevel:        "normal",
		},
		Session: SessionConfig{
			ExpireMinutes: 60,
			MaxHistory:    50,
		},
		RateLimit: RateLimitConfig{
			MaxPerMinute: 10,
			MaxPerDay:    200,
		},
		Security: SecurityConfig{
			TrustedFileAccess: true,
		},
		Logging: LoggingConfig{
			Level:             "info",
			Format:            "text",
			LogMessageContent: true,
		},
		Transport: TransportConfig{
			Kind: "stdin",
			Telegram: TelegramConfig{
				APIBase:            "https://api.telegram.org",
				PollTimeoutSeconds: 30,
			},
		},
	}
}

// Load reads yamlPath over the defaults, applies WECHATCC_* environment
// overrides and validates the result. A missing file is not an error.
func Load(yamlPath string) (*Config, error) {
	cfg := Default()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", yamlPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	cfg.Docker.DataDir = expandHome(cfg.Docker.DataDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WECHATCC_ADMIN_ID"); v != "" {
		cfg.AdminID = v
	}
	if v := os.Getenv("WECHATCC_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("WECHATCC_DATA_DIR"); v != "" {
		cfg.Docker.DataDir = v
	}
	if v := os.Getenv("WECHATCC_IMAGE"); v != "" {
		cfg.Docker.Image = v
	}
	if v := os.Getenv("WECHATCC_CLAUDE_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Claude.TimeoutSeconds = n
		}
	}
	if cfg.Claude.APIKey == "" {
		cfg.Claude.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if v := os.Getenv("WECHATCC_DEFAULT_LEVEL"); v != "" {
		cfg.Permissions.DefaultLevel = v
	}
	if v := os.Getenv("WECHATCC_MAX_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.MaxPerMinute = n
		}
	}
	if v := os.Getenv("WECHATCC_MAX_PER_DAY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.MaxPerDay = n
		}
	}
	if v := os.Getenv("WECHATCC_SESSION_EXPIRE_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Session.ExpireMinutes = n
		}
	}
	if v := os.Getenv("WECHATCC_BLOCKED_PATTERNS"); v != "" {
		cfg.Security.BlockedPatterns = strings.Split(v, ",")
	}
	if v := os.Getenv("WECHATCC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WECHATCC_LOG_MESSAGE_CONTENT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Logging.LogMessageContent = b
		}
	}
	if v := os.Getenv("WECHATCC_TRANSPORT"); v != "" {
		cfg.Transport.Kind = v
	}
	if v := os.Getenv("WECHATCC_TELEGRAM_TOKEN"); v != "" {
		cfg.Transport.Telegram.Token = v
	}
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p[1:], "/"))
}

// Validate checks values that would otherwise fail deep inside a request.
func (c *Config) Validate() error {
	// An empty level leaves new senders unauthorized until an admin allows them.
	if lvl := c.Permissions.DefaultLevel; lvl != "" && tier.Parse(lvl) == tier.Unknown {
		return fmt.Errorf("%w: permissions.default_level %q", ErrInvalid, c.Permissions.DefaultLevel)
	}
	for _, s := range []string{c.Docker.Limits.Memory, c.Docker.Limits.AdminMemory, c.Docker.Limits.TmpSize} {
		if _, err := units.RAMInBytes(s); err != nil {
			return fmt.Errorf("%w: size %q: %v", ErrInvalid, s, err)
		}
	}
	if c.Docker.Limits.CPUs <= 0 || c.Docker.Limits.AdminCPUs <= 0 {
		return fmt.Errorf("%w: docker.limits cpus must be positive", ErrInvalid)
	}
	if c.Claude.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: claude.timeout_seconds must be positive", ErrInvalid)
	}
	if c.Session.MaxHistory < 0 {
		return fmt.Errorf("%w: session.max_history must not be negative", ErrInvalid)
	}
	if c.CleanupIntervalMinutes <= 0 {
		return fmt.Errorf("%w: cleanup_interval_minutes must be positive", ErrInvalid)
	}
	if c.RateLimit.MaxPerMinute < 0 || c.RateLimit.MaxPerDay < 0 {
		return fmt.Errorf("%w: rate_limit values must not be negative", ErrInvalid)
	}
	switch c.Transport.Kind {
	case "stdin":
	case "telegram":
		if c.Transport.Telegram.Token == "" {
			return fmt.Errorf("%w: transport.telegram.token is required", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: transport.kind %q", ErrInvalid, c.Transport.Kind)
	}
	return nil
}

// MemoryBytes returns the memory ceiling for a container of tier t.
func (c *Config) MemoryBytes(t tier.Tier) int64 {
	s := c.Docker.Limits.Memory
	if t == tier.Admin {
		s = c.Docker.Limits.AdminMemory
	}
	n, _ := units.RAMInBytes(s)
	return n
}

// NanoCPUs returns the CPU ceiling for a container of tier t.
func (c *Config) NanoCPUs(t tier.Tier) int64 {
	cpus := c.Docker.Limits.CPUs
	if t == tier.Admin {
		cpus = c.Docker.Limits.AdminCPUs
	}
	return int64(cpus * 1e9)
}

// ToolsAllowed reports whether the agent may run code and touch files for
// tier t. Trusted access follows security.trusted_file_access.
func (c *Config) ToolsAllowed(t tier.Tier) bool {
	switch t.Runnable() {
	case tier.Admin:
		return true
	case tier.Trusted:
		return c.Security.TrustedFileAccess
	}
	return false
}

// NetworkFor returns the network mode for a container of tier t.
func (c *Config) NetworkFor(t tier.Tier) string {
	switch t {
	case tier.Admin:
		return c.Docker.Network.Admin
	case tier.Trusted:
		return c.Docker.Network.Trusted
	}
	return c.Docker.Network.Normal
}

// DefaultTier is the parsed permissions.default_level.
func (c *Config) DefaultTier() tier.Tier {
	return tier.Parse(c.Permissions.DefaultLevel)
}
