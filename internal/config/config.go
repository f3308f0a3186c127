package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreBackendFile     = "file"
	StoreBackendRedis    = "redis"
	StoreBackendPostgres = "postgres"
)

// Config aggregates runtime configuration for the bot.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Slack    SlackConfig
	Store    StoreConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Schedule ScheduleConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// SlackConfig holds the workspace credentials and the channels the bot works in.
type SlackConfig struct {
	BotToken           string
	AppToken           string
	SigningSecret      string
	HelpChannel        string
	TicketsChannel     string
	StaffHomeChannel   string
	WorkspaceDomain    string
	FAQURL             string
	CallTimeoutSeconds int
}

// StoreConfig selects and configures the snapshot store.
type StoreConfig struct {
	Backend      string
	DataFilePath string
	SnapshotKey  string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuthConfig defines operator API authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// ScheduleConfig covers timers and the event pipeline sizing.
type ScheduleConfig struct {
	MembershipRefreshMinutes int
	SaveIntervalMinutes      int
	LeaderboardIntervalHours int
	SerializerShards         int
	SerializerQueueDepth     int
	DedupTTLMinutes          int
	Timezone                 string
	RollingFromLog           bool
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-bot"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Slack: SlackConfig{
			BotToken:           os.Getenv("SLACK_BOT_TOKEN"),
			AppToken:           os.Getenv("SLACK_APP_TOKEN"),
			SigningSecret:      os.Getenv("SLACK_SIGNING_SECRET"),
			HelpChannel:        os.Getenv("HELP_CHANNEL"),
			TicketsChannel:     os.Getenv("TICKETS_CHANNEL"),
			StaffHomeChannel:   os.Getenv("STAFF_HOME_CHANNEL"),
			WorkspaceDomain:    getEnv("SLACK_WORKSPACE_DOMAIN", "yourworkspace"),
			FAQURL:             os.Getenv("FAQ_URL"),
			CallTimeoutSeconds: getEnvAsInt("SLACK_CALL_TIMEOUT_SECONDS", 10),
		},
		Store: StoreConfig{
			Backend:      strings.ToLower(getEnv("STORE_BACKEND", StoreBackendFile)),
			DataFilePath: getEnv("DATA_FILE_PATH", "ticket-data.json"),
			SnapshotKey:  getEnv("SNAPSHOT_KEY", "helpdesk:snapshot"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Schedule: ScheduleConfig{
			MembershipRefreshMinutes: getEnvAsInt("MEMBERSHIP_REFRESH_MINUTES", 60),
			SaveIntervalMinutes:      getEnvAsInt("SAVE_INTERVAL_MINUTES", 5),
			LeaderboardIntervalHours: getEnvAsInt("LEADERBOARD_INTERVAL_HOURS", 24),
			SerializerShards:         getEnvAsInt("SERIALIZER_SHARDS", 16),
			SerializerQueueDepth:     getEnvAsInt("SERIALIZER_QUEUE_DEPTH", 256),
			DedupTTLMinutes:          getEnvAsInt("DEDUP_TTL_MINUTES", 10),
			Timezone:                 getEnv("TIMEZONE", "UTC"),
			RollingFromLog:           getEnvAsBool("ROLLING_FROM_LOG", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the bot cannot run without.
func (c *Config) Validate() error {
	var missing []string
	if c.Slack.BotToken == "" {
		missing = append(missing, "SLACK_BOT_TOKEN")
	}
	if c.Slack.HelpChannel == "" {
		missing = append(missing, "HELP_CHANNEL")
	}
	if c.Slack.TicketsChannel == "" {
		missing = append(missing, "TICKETS_CHANNEL")
	}
	if c.Slack.AppToken == "" && c.Slack.SigningSecret == "" {
		missing = append(missing, "SLACK_APP_TOKEN or SLACK_SIGNING_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	switch c.Store.Backend {
	case StoreBackendFile:
	case StoreBackendRedis:
		if c.Redis.Addr == "" {
			return errors.New("STORE_BACKEND=redis requires REDIS_ADDR")
		}
	case StoreBackendPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("STORE_BACKEND=postgres requires POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q", c.Store.Backend)
	}

	if _, err := c.Schedule.Location(); err != nil {
		return fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// CallTimeout bounds every outbound Slack call.
func (s SlackConfig) CallTimeout() time.Duration {
	if s.CallTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.CallTimeoutSeconds) * time.Second
}

// StaffRosterChannel is the channel whose members see the staff home view.
func (s SlackConfig) StaffRosterChannel() string {
	if s.StaffHomeChannel != "" {
		return s.StaffHomeChannel
	}
	return s.TicketsChannel
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// Location loads the configured timezone for day boundaries.
func (s ScheduleConfig) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

func (s ScheduleConfig) MembershipRefreshInterval() time.Duration {
	return minutes(s.MembershipRefreshMinutes, 60)
}

func (s ScheduleConfig) SaveInterval() time.Duration {
	return minutes(s.SaveIntervalMinutes, 5)
}

func (s ScheduleConfig) LeaderboardInterval() time.Duration {
	if s.LeaderboardIntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(s.LeaderboardIntervalHours) * time.Hour
}

func (s ScheduleConfig) DedupTTL() time.Duration {
	return minutes(s.DedupTTLMinutes, 10)
}

func minutes(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
