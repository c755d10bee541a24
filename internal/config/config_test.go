package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadYAMLWithDefaults(t *testing.T) {
	path := writeConfig(t, `
telegram:
  bot_token: "123:abc"
operator:
  admin_id: 42
booking:
  times: ["18:00", "19:00"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Telegram.BotToken)
	assert.Equal(t, int64(42), cfg.Operator.AdminID)
	assert.Equal(t, []string{"18:00", "19:00"}, cfg.Booking.Times)
	assert.Equal(t, DefaultCategories, cfg.Booking.Categories)
	assert.Equal(t, "data/venues.json", cfg.Catalog.Path)
	assert.Equal(t, "data/rezme.db", cfg.Database.Path)
	assert.Equal(t, 6, cfg.Booking.PeopleMax)
	assert.Equal(t, 9090, cfg.Monitoring.PrometheusPort)
}

func TestLoadExpandsEnvInsideYAML(t *testing.T) {
	t.Setenv("REZME_TEST_TOKEN", "from-env")
	path := writeConfig(t, "telegram:\n  bot_token: ${REZME_TEST_TOKEN}\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Telegram.BotToken)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	t.Setenv("ADMIN_ID", "777")
	t.Setenv("CATALOG_PATH", "/tmp/catalog.json")
	path := writeConfig(t, "operator:\n  admin_id: 1\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(777), cfg.Operator.AdminID)
	assert.Equal(t, "/tmp/catalog.json", cfg.Catalog.Path)
}

func TestLoadMissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("BOT_TOKEN", "999:xyz")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "999:xyz", cfg.Telegram.BotToken)
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "telegram: [\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "empty", token: "", wantErr: true},
		{name: "placeholder", token: placeholderToken, wantErr: true},
		{name: "set", token: "1:a", wantErr: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Telegram: TelegramConfig{BotToken: tt.token}}
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsOperator(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.IsOperator(0), "no operator configured")
	assert.False(t, cfg.IsOperator(5))

	cfg.Operator.AdminID = 5
	assert.True(t, cfg.IsOperator(5))
	assert.False(t, cfg.IsOperator(6))
}
