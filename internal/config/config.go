// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"telegram-zao-bot/internal/storage"
)

// Config holds all application configuration.
type Config struct {
	Bot          BotConfig          `mapstructure:"bot"`
	Calendar     CalendarConfig     `mapstructure:"calendar"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Whitelist    WhitelistConfig    `mapstructure:"whitelist"`
	Achievements AchievementsConfig `mapstructure:"achievements"`
	Reminders    RemindersConfig    `mapstructure:"reminders"`
	Messages     MessagesConfig     `mapstructure:"messages"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token    string `mapstructure:"token"`
	Timezone string `mapstructure:"timezone"`
}

// CalendarConfig holds the business-day boundary.
type CalendarConfig struct {
	CutoffHour int `mapstructure:"cutoff_hour"`
}

// StorageConfig selects the storage engine.
type StorageConfig struct {
	// Engine is "sqlite" or "postgres".
	Engine string `mapstructure:"engine"`
	// Path is the SQLite database file.
	Path string `mapstructure:"path"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// WhitelistConfig holds chat whitelist configuration.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// AchievementsConfig holds achievement rule knobs.
type AchievementsConfig struct {
	// OntimeRepeatable grants the on-time award on every qualifying
	// session instead of once per chat.
	OntimeRepeatable bool `mapstructure:"ontime_repeatable"`
}

// RemindersConfig holds the wake-reminder poll settings.
type RemindersConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// MessagesConfig points at an optional message-template override file.
type MessagesConfig struct {
	Path string `mapstructure:"path"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// StoreConfig assembles the storage engine configuration.
func (c *Config) StoreConfig() storage.Config {
	return storage.Config{
		Engine:          c.Storage.Engine,
		CutoffHour:      c.Calendar.CutoffHour,
		Path:            c.Storage.Path,
		DSN:             c.Database.DSN(),
		PoolSize:        c.Database.PoolSize,
		ConnectTimeout:  c.Database.ConnectTimeout,
		MaxConnLifetime: c.Database.MaxConnLifetime,
		MaxConnIdleTime: c.Database.MaxConnIdleTime,
	}
}

// Location resolves the configured timezone, falling back to local time.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Bot.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase
	// e.g., BOT_TOKEN, STORAGE_ENGINE, DATABASE_HOST
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - env vars can provide all config
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.timezone", "Asia/Shanghai")

	v.SetDefault("calendar.cutoff_hour", 4)

	v.SetDefault("storage.engine", "sqlite")
	v.SetDefault("storage.path", "zao.db")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "zaobot")
	v.SetDefault("database.name", "zaobot")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("achievements.ontime_repeatable", false)

	v.SetDefault("reminders.poll_interval", "30s")
}

// IsChatAllowed checks if a chat ID is in the whitelist.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed
	if len(c.Whitelist.Chats) == 0 {
		return true
	}
	for _, id := range c.Whitelist.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}
