package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Operator   OperatorConfig   `yaml:"operator"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Booking    BookingConfig    `yaml:"booking"`
	Exports    ExportConfig     `yaml:"exports"`
	Google     GoogleConfig     `yaml:"google"`
	Info       InfoConfig       `yaml:"info"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token" env:"BOT_TOKEN"`
	Debug    bool   `yaml:"debug" env:"TELEGRAM_DEBUG"`
}

// OperatorConfig - единственный администратор бота. 0 означает, что оператор не задан.
type OperatorConfig struct {
	AdminID int64 `yaml:"admin_id" env:"ADMIN_ID"`
}

type CatalogConfig struct {
	Path string `yaml:"path" env:"CATALOG_PATH"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" env:"DATABASE_PATH"`
}

type RedisConfig struct {
	Address  string        `yaml:"address" env:"REDIS_ADDRESS"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"pool_size"`
	StateTTL time.Duration `yaml:"state_ttl"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format"`
}

type BookingConfig struct {
	Categories []string `yaml:"categories"`
	Times      []string `yaml:"times"`
	PeopleMax  int      `yaml:"people_max"`
}

type ExportConfig struct {
	Path  string `yaml:"path"`
	Limit int    `yaml:"limit"`
}

type GoogleConfig struct {
	CredentialsFile       string `yaml:"credentials_file"`
	BookingsSpreadsheetID string `yaml:"bookings_spreadsheet_id"`
}

// InfoConfig - тексты для информационных кнопок главного меню.
type InfoConfig struct {
	Business  string `yaml:"business"`
	News      string `yaml:"news"`
	Instagram string `yaml:"instagram"`
	Assistant string `yaml:"assistant"`
}

var (
	DefaultCategories = []string{"Кафе/Рестораны", "Караоке", "Боулинг"}
	DefaultTimes      = []string{"16:00", "17:00", "18:00", "19:00", "20:00", "21:00", "22:00"}
)

const placeholderToken = "YOUR_BOT_TOKEN_HERE"

// Load читает .env, YAML-файл и переменные окружения. Отсутствие YAML-файла
// допустимо: всё необходимое может прийти из окружения.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		// Предварительная замена переменных окружения в YAML
		expanded := []byte(os.ExpandEnv(string(data)))
		if err := yaml.Unmarshal(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", configPath, err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "rezme"
	}
	if c.Catalog.Path == "" {
		c.Catalog.Path = "data/venues.json"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/rezme.db"
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if len(c.Booking.Categories) == 0 {
		c.Booking.Categories = append([]string(nil), DefaultCategories...)
	}
	if len(c.Booking.Times) == 0 {
		c.Booking.Times = append([]string(nil), DefaultTimes...)
	}
	if c.Booking.PeopleMax <= 0 {
		c.Booking.PeopleMax = 6
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
	if c.Exports.Limit <= 0 {
		c.Exports.Limit = 200
	}
}

// Validate проверяет обязательные параметры.
func (c *Config) Validate() error {
	token := strings.TrimSpace(c.Telegram.BotToken)
	if token == "" || token == placeholderToken {
		return errors.New("telegram.bot_token is not set")
	}
	return nil
}

// IsOperator - предикат авторизации администратора.
func (c *Config) IsOperator(userID int64) bool {
	return c.Operator.AdminID != 0 && userID == c.Operator.AdminID
}

// SheetsEnabled сообщает, настроена ли синхронизация с Google Sheets.
func (c *Config) SheetsEnabled() bool {
	return c.Google.CredentialsFile != "" && c.Google.BookingsSpreadsheetID != ""
}
