package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Database drivers understood by the database package.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds runtime configuration values for the messenger service.
type Config struct {
	AppName             string
	AppEnv              string
	AppPort             string
	DatabaseDriver      string
	DatabaseURL         string
	RedisURL            string
	NATSURL             string
	ChannelBase         string
	JWTSecret           string
	AllowedOrigins      []string
	EditWindow          time.Duration
	PinLimit            int
	TypingTTL           time.Duration
	ScheduleInterval    time.Duration
	AttachmentMaxSizeMB int
	MessagesPerSecond   int
	LinkPreviewTimeout  time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from MESSENGER_* environment variables and an optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("MESSENGER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Messenger")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("realtime.channel_base", "gema:messenger")
	v.SetDefault("cors.allowed_origins", "*")
	v.SetDefault("messaging.edit_window", "15m")
	v.SetDefault("messaging.pin_limit", 5)
	v.SetDefault("messaging.typing_ttl", "3s")
	v.SetDefault("messaging.schedule_interval", "30s")
	v.SetDefault("messaging.link_preview_timeout", "5s")
	v.SetDefault("attachments.max_size_mb", 10)
	v.SetDefault("ratelimit.messages_per_second", 10)

	durations := map[string]time.Duration{}
	for _, key := range []string{"messaging.edit_window", "messaging.typing_ttl", "messaging.schedule_interval", "messaging.link_preview_timeout"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("invalid %s: must be positive", key)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		DatabaseDriver:      strings.ToLower(strings.TrimSpace(v.GetString("database.driver"))),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		NATSURL:             v.GetString("nats.url"),
		ChannelBase:         v.GetString("realtime.channel_base"),
		JWTSecret:           v.GetString("jwt.secret"),
		AllowedOrigins:      splitList(v.GetString("cors.allowed_origins")),
		EditWindow:          durations["messaging.edit_window"],
		PinLimit:            v.GetInt("messaging.pin_limit"),
		TypingTTL:           durations["messaging.typing_ttl"],
		ScheduleInterval:    durations["messaging.schedule_interval"],
		LinkPreviewTimeout:  durations["messaging.link_preview_timeout"],
		AttachmentMaxSizeMB: v.GetInt("attachments.max_size_mb"),
		MessagesPerSecond:   v.GetInt("ratelimit.messages_per_second"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return Config{}, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	if cfg.PinLimit <= 0 {
		cfg.PinLimit = 5
	}
	if cfg.AttachmentMaxSizeMB <= 0 {
		cfg.AttachmentMaxSizeMB = 10
	}
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = 10
	}

	return cfg, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
