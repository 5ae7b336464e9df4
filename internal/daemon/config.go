package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/guildboard/guildboard/internal/app/board"
	"github.com/guildboard/guildboard/internal/infra/redisx"
)

// ConfigFile is the config file name inside the guild home directory.
const ConfigFile = "config.toml"

// validate reports failures by their TOML keys.
var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("toml"), ",", 2)[0]
	})
	return v
}()

// Config holds every runtime setting. Defaults come from DefaultConfig; a
// TOML file and then environment variables override them.
type Config struct {
	API     APIConfig     `toml:"api"`
	Storage StorageConfig `toml:"storage"`
	Redis   RedisConfig   `toml:"redis"`
	Log     LogConfig     `toml:"log"`
	Rewards RewardsConfig `toml:"rewards"`
}

// APIConfig controls the HTTP listener.
type APIConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port" validate:"min=1,max=65535"`
	Metrics bool   `toml:"metrics"`
	Timeout string `toml:"timeout"`
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	Dir string `toml:"dir" validate:"required"`
}

// RedisConfig enables event publishing and idempotency keys. An empty URL
// leaves both disabled.
type RedisConfig struct {
	URL            string `toml:"url" validate:"omitempty,url"`
	Channel        string `toml:"channel" validate:"required"`
	IdempotencyTTL string `toml:"idempotency_ttl"`
}

// LogConfig controls the logrus logger.
type LogConfig struct {
	Level  string `toml:"level" validate:"oneof=panic fatal error warn warning info debug trace"`
	Format string `toml:"format" validate:"oneof=json text"`
}

// RewardsConfig sets the flat XP rewards paid outside task completion.
type RewardsConfig struct {
	ProjectCreatedXP int `toml:"project_created_xp" validate:"gte=0"`
	TaskCreatedXP    int `toml:"task_created_xp" validate:"gte=0"`
}

// Home returns the guild home directory: $GUILD_HOME, else ~/.guild.
func Home() string {
	if h := os.Getenv("GUILD_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".guild"
	}
	return filepath.Join(home, ".guild")
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	rewards := board.DefaultRewards()
	return Config{
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    8420,
			Metrics: true,
			Timeout: "30s",
		},
		Storage: StorageConfig{Dir: Home()},
		Redis: RedisConfig{
			Channel:        redisx.DefaultChannel,
			IdempotencyTTL: "24h",
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Rewards: RewardsConfig{
			ProjectCreatedXP: rewards.ProjectCreatedXP,
			TaskCreatedXP:    rewards.TaskCreatedXP,
		},
	}
}

// LoadConfig reads path over the defaults. A missing file is not an error.
// An empty path means <home>/config.toml.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = filepath.Join(Home(), ConfigFile)
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GUILD_HOME"); v != "" {
		c.Storage.Dir = v
	}
	if v := os.Getenv("GUILD_REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("GUILD_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate rejects settings the daemon cannot run with.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, len(verrs))
		for i, fe := range verrs {
			rule := fe.Tag()
			if fe.Param() != "" {
				rule += "=" + fe.Param()
			}
			// Namespace is "Config.api.port"; drop the type name.
			key := fe.Namespace()[strings.IndexByte(fe.Namespace(), '.')+1:]
			msgs[i] = fmt.Sprintf("%s %v fails %s", key, fe.Value(), rule)
		}
		return errors.New(strings.Join(msgs, "; "))
	}
	if _, err := c.APITimeout(); err != nil {
		return err
	}
	if _, err := c.DedupeTTL(); err != nil {
		return err
	}
	return nil
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// APITimeout parses api.timeout.
func (c Config) APITimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.API.Timeout)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("api.timeout %q is not a positive duration", c.API.Timeout)
	}
	return d, nil
}

// DedupeTTL parses redis.idempotency_ttl.
func (c Config) DedupeTTL() (time.Duration, error) {
	d, err := time.ParseDuration(c.Redis.IdempotencyTTL)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("redis.idempotency_ttl %q is not a positive duration", c.Redis.IdempotencyTTL)
	}
	return d, nil
}

// BoardRewards converts the rewards section for the board service.
func (c Config) BoardRewards() board.Rewards {
	return board.Rewards{
		ProjectCreatedXP: c.Rewards.ProjectCreatedXP,
		TaskCreatedXP:    c.Rewards.TaskCreatedXP,
	}
}

// NewLogger builds the process logger from the log section.
func (c Config) NewLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(os.Stderr)
	if lvl, err := log.ParseLevel(c.Log.Level); err == nil {
		logger.SetLevel(lvl)
	}
	if c.Log.Format == "text" {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&log.JSONFormatter{})
	}
	return logger
}
