package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"formfiller/internal/descriptor"
	"formfiller/internal/executor"
	"formfiller/internal/resolver"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	Admin    AdminConfig    `yaml:"admin"`
	Chrome   ChromeConfig   `yaml:"chrome"`
	Recorder RecorderConfig `yaml:"recorder"`
	Resolver ResolverConfig `yaml:"resolver"`
	Replay   ReplayConfig   `yaml:"replay"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port         string `yaml:"port"`
	Host         string `yaml:"host"`
	Mode         string `yaml:"mode"`
	ReadTimeout  int    `yaml:"read_timeout"`
	WriteTimeout int    `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // mysql or sqlite
	Path     string `yaml:"path"`   // sqlite file
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Charset  string `yaml:"charset"`
}

type JWTConfig struct {
	Secret     string `yaml:"secret"`
	ExpireTime int    `yaml:"expire_time"`
}

// AdminConfig seeds the first account on an empty database.
type AdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type ChromeConfig struct {
	HeadlessMode bool   `yaml:"headless"`
	MaxInstances int    `yaml:"max_instances"` // open sessions, 0 for no cap
	ExecPath     string `yaml:"exec_path"`     // empty: search the usual install paths
	Device       string `yaml:"device"`
}

type RecorderConfig struct {
	CaptureAuxiliaryEvents bool   `yaml:"capture_auxiliary_events"`
	OverlayClass           string `yaml:"overlay_class"`
	MaxDepth               int    `yaml:"max_depth"`
	ExcludeClassPrefix     string `yaml:"exclude_class_prefix"`
	SessionTTL             int    `yaml:"session_ttl"` // seconds
	JanitorSpec            string `yaml:"janitor_spec"`
}

type ResolverConfig struct {
	RetryAttempts     int     `yaml:"retry_attempts"`
	RetryDelay        int     `yaml:"retry_delay"` // milliseconds
	RetryMultiplier   float64 `yaml:"retry_multiplier"`
	RetryMaxDelay     int     `yaml:"retry_max_delay"` // milliseconds
	PositionTolerance float64 `yaml:"position_tolerance"`
}

type ReplayConfig struct {
	SettleDelay      int    `yaml:"settle_delay"` // milliseconds
	HighlightColor   string `yaml:"highlight_color"`
	SubmitColor      string `yaml:"submit_color"`
	ClickRetries     int    `yaml:"click_retries"`
	OverlayHideDelay int    `yaml:"overlay_hide_delay"` // milliseconds
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// LoadConfig builds the configuration from defaults, then the YAML file named
// by CONFIG_FILE if set, then environment variables.
func LoadConfig() (*Config, error) {
	return Load(os.Getenv("CONFIG_FILE"))
}

// Load is LoadConfig with an explicit file; an empty path skips the file.
func Load(path string) (*Config, error) {
	config := Default()
	if path != "" {
		if err := config.LoadFile(path); err != nil {
			return nil, err
		}
	}
	config.applyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func Default() *Config {
	retry := resolver.DefaultRetryPolicy()
	replay := executor.DefaultConfig()
	return &Config{
		Server: ServerConfig{Port: "8080", Host: "0.0.0.0", Mode: "debug", ReadTimeout: 30, WriteTimeout: 30},
		Database: DatabaseConfig{
			Driver:   "sqlite",
			Path:     "formfiller.db",
			Host:     "127.0.0.1",
			Port:     "3306",
			Username: "root",
			Database: "formfiller",
			Charset:  "utf8mb4",
		},
		JWT:   JWTConfig{Secret: "formfiller-secret-key", ExpireTime: 24 * 3600},
		Admin: AdminConfig{Username: "admin"},
		Chrome: ChromeConfig{
			MaxInstances: 5,
			Device:       "Desktop 1920x1080",
		},
		Recorder: RecorderConfig{
			OverlayClass:       "formfiller-overlay",
			MaxDepth:           descriptor.DefaultDepth,
			ExcludeClassPrefix: "formfiller-",
			SessionTTL:         1800,
			JanitorSpec:        "@every 1m",
		},
		Resolver: ResolverConfig{
			RetryAttempts:     retry.Attempts,
			RetryDelay:        int(retry.Delay / time.Millisecond),
			RetryMultiplier:   retry.Multiplier,
			RetryMaxDelay:     int(retry.MaxDelay / time.Millisecond),
			PositionTolerance: resolver.DefaultPositionTolerance,
		},
		Replay: ReplayConfig{
			SettleDelay:      int(replay.SettleDelay / time.Millisecond),
			HighlightColor:   replay.HighlightColor,
			SubmitColor:      replay.SubmitColor,
			ClickRetries:     replay.ClickRetries,
			OverlayHideDelay: int(replay.OverlayHideDelay / time.Millisecond),
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// LoadFile overlays the YAML file at path onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Mode = getEnv("SERVER_MODE", c.Server.Mode)
	c.Server.ReadTimeout = getEnvAsInt("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvAsInt("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)

	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.Path = getEnv("DB_PATH", c.Database.Path)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.Username = getEnv("DB_USERNAME", c.Database.Username)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Database = getEnv("DB_NAME", c.Database.Database)
	c.Database.Charset = getEnv("DB_CHARSET", c.Database.Charset)

	c.JWT.Secret = getEnv("JWT_SECRET", c.JWT.Secret)
	c.JWT.ExpireTime = getEnvAsInt("JWT_EXPIRE_TIME", c.JWT.ExpireTime)
	c.Admin.Username = getEnv("ADMIN_USERNAME", c.Admin.Username)
	c.Admin.Password = getEnv("ADMIN_PASSWORD", c.Admin.Password)

	c.Chrome.HeadlessMode = getEnvAsBool("CHROME_HEADLESS", c.Chrome.HeadlessMode)
	c.Chrome.MaxInstances = getEnvAsInt("CHROME_MAX_INSTANCES", c.Chrome.MaxInstances)
	c.Chrome.ExecPath = getEnv("CHROME_EXEC_PATH", c.Chrome.ExecPath)
	c.Chrome.Device = getEnv("CHROME_DEVICE", c.Chrome.Device)

	c.Recorder.CaptureAuxiliaryEvents = getEnvAsBool("RECORDER_CAPTURE_AUXILIARY", c.Recorder.CaptureAuxiliaryEvents)
	c.Recorder.OverlayClass = getEnv("RECORDER_OVERLAY_CLASS", c.Recorder.OverlayClass)
	c.Recorder.MaxDepth = getEnvAsInt("RECORDER_MAX_DEPTH", c.Recorder.MaxDepth)
	c.Recorder.ExcludeClassPrefix = getEnv("RECORDER_EXCLUDE_CLASS_PREFIX", c.Recorder.ExcludeClassPrefix)
	c.Recorder.SessionTTL = getEnvAsInt("RECORDER_SESSION_TTL", c.Recorder.SessionTTL)
	c.Recorder.JanitorSpec = getEnv("RECORDER_JANITOR_SPEC", c.Recorder.JanitorSpec)

	c.Resolver.RetryAttempts = getEnvAsInt("RESOLVER_RETRY_ATTEMPTS", c.Resolver.RetryAttempts)
	c.Resolver.RetryDelay = getEnvAsInt("RESOLVER_RETRY_DELAY", c.Resolver.RetryDelay)
	c.Resolver.RetryMultiplier = getEnvAsFloat("RESOLVER_RETRY_MULTIPLIER", c.Resolver.RetryMultiplier)
	c.Resolver.RetryMaxDelay = getEnvAsInt("RESOLVER_RETRY_MAX_DELAY", c.Resolver.RetryMaxDelay)
	c.Resolver.PositionTolerance = getEnvAsFloat("RESOLVER_POSITION_TOLERANCE", c.Resolver.PositionTolerance)

	c.Replay.SettleDelay = getEnvAsInt("REPLAY_SETTLE_DELAY", c.Replay.SettleDelay)
	c.Replay.HighlightColor = getEnv("REPLAY_HIGHLIGHT_COLOR", c.Replay.HighlightColor)
	c.Replay.SubmitColor = getEnv("REPLAY_SUBMIT_COLOR", c.Replay.SubmitColor)
	c.Replay.ClickRetries = getEnvAsInt("REPLAY_CLICK_RETRIES", c.Replay.ClickRetries)
	c.Replay.OverlayHideDelay = getEnvAsInt("REPLAY_OVERLAY_HIDE_DELAY", c.Replay.OverlayHideDelay)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Validate rejects settings nothing downstream can work with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Chrome.MaxInstances < 0 {
		return fmt.Errorf("chrome max instances must not be negative, got %d", c.Chrome.MaxInstances)
	}
	if c.Resolver.RetryAttempts < 1 {
		return fmt.Errorf("resolver retry attempts must be at least 1, got %d", c.Resolver.RetryAttempts)
	}
	if c.Recorder.MaxDepth != 0 && (c.Recorder.MaxDepth < descriptor.MinDepth || c.Recorder.MaxDepth > descriptor.MaxDepth) {
		return fmt.Errorf("recorder max depth must be between %d and %d, got %d", descriptor.MinDepth, descriptor.MaxDepth, c.Recorder.MaxDepth)
	}
	return nil
}

func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=%s&parseTime=True&loc=Local",
		c.Database.Username,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.Charset,
	)
}

func (c *Config) GeneratorConfig() descriptor.GeneratorConfig {
	return descriptor.GeneratorConfig{MaxDepth: c.Recorder.MaxDepth, ExcludeClassPrefix: c.Recorder.ExcludeClassPrefix}
}

func (c *Config) RetryPolicy() resolver.RetryPolicy {
	return resolver.RetryPolicy{
		Attempts:   c.Resolver.RetryAttempts,
		Delay:      time.Duration(c.Resolver.RetryDelay) * time.Millisecond,
		Multiplier: c.Resolver.RetryMultiplier,
		MaxDelay:   time.Duration(c.Resolver.RetryMaxDelay) * time.Millisecond,
	}
}

func (c *Config) ReplayConfig() executor.Config {
	return executor.Config{
		SettleDelay:      time.Duration(c.Replay.SettleDelay) * time.Millisecond,
		Retry:            c.RetryPolicy(),
		HighlightColor:   c.Replay.HighlightColor,
		SubmitColor:      c.Replay.SubmitColor,
		ClickRetries:     c.Replay.ClickRetries,
		OverlayHideDelay: time.Duration(c.Replay.OverlayHideDelay) * time.Millisecond,
	}
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Recorder.SessionTTL) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
