package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("MESSENGER_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "GEMA Messenger", cfg.AppName)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, DriverPostgres, cfg.DatabaseDriver)
	require.Equal(t, "gema:messenger", cfg.ChannelBase)
	require.Equal(t, 15*time.Minute, cfg.EditWindow)
	require.Equal(t, 5, cfg.PinLimit)
	require.Equal(t, 3*time.Second, cfg.TypingTTL)
	require.Equal(t, 30*time.Second, cfg.ScheduleInterval)
	require.Equal(t, 10, cfg.AttachmentMaxSizeMB)
	require.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("MESSENGER_JWT_SECRET", "secret")
	t.Setenv("MESSENGER_APP_PORT", ":9090")
	t.Setenv("MESSENGER_DATABASE_DRIVER", "SQLite")
	t.Setenv("MESSENGER_MESSAGING_EDIT_WINDOW", "5m")
	t.Setenv("MESSENGER_MESSAGING_PIN_LIMIT", "3")
	t.Setenv("MESSENGER_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.HTTPAddress())
	require.Equal(t, DriverSQLite, cfg.DatabaseDriver)
	require.Equal(t, 5*time.Minute, cfg.EditWindow)
	require.Equal(t, 3, cfg.PinLimit)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("MESSENGER_JWT_SECRET", "")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("MESSENGER_JWT_SECRET", "secret")
	t.Setenv("MESSENGER_MESSAGING_TYPING_TTL", "soon")
	_, err = Load()
	require.ErrorContains(t, err, "messaging.typing_ttl")

	t.Setenv("MESSENGER_MESSAGING_TYPING_TTL", "3s")
	t.Setenv("MESSENGER_DATABASE_DRIVER", "mysql")
	_, err = Load()
	require.ErrorContains(t, err, "unsupported database driver")
}
