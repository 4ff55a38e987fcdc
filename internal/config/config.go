package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	yaml "gopkg.in/yaml.v3"
)

// DefaultAllowedOrigins are the browser origins accepted when ALLOWED_ORIGINS is unset.
var DefaultAllowedOrigins = []string{
	"https://pvp-chess.netlify.app",
	"http://127.0.0.1:5500",
	"http://localhost:5500",
}

type AppConfig struct {
	ListenAddr string `yaml:"listen_addr" validate:"required"`
	AdminAddr  string `yaml:"admin_addr"`

	RedisURL    string `yaml:"redis_url" validate:"omitempty,url"`
	DatabaseURL string `yaml:"database_url"`

	AllowedOrigins []string `yaml:"allowed_origins" validate:"dive,required"`

	StateTTLSec          int  `yaml:"state_ttl_sec" validate:"gte=60"`
	DisconnectGraceSec   int  `yaml:"disconnect_grace_sec" validate:"gte=1"`
	EmptyRoomGraceSec    int  `yaml:"empty_room_grace_sec" validate:"gte=1"`
	FinishedRoomGraceSec int  `yaml:"finished_room_grace_sec" validate:"gte=1"`
	AutoCreateOnJoin     bool `yaml:"auto_create_on_join"`

	MessagesDir string `yaml:"messages_dir"`
}

func (c *AppConfig) StateTTL() time.Duration { return time.Duration(c.StateTTLSec) * time.Second }
func (c *AppConfig) DisconnectGrace() time.Duration {
	return time.Duration(c.DisconnectGraceSec) * time.Second
}
func (c *AppConfig) EmptyRoomGrace() time.Duration {
	return time.Duration(c.EmptyRoomGraceSec) * time.Second
}
func (c *AppConfig) FinishedRoomGrace() time.Duration {
	return time.Duration(c.FinishedRoomGraceSec) * time.Second
}

func defaults() *AppConfig {
	return &AppConfig{
		ListenAddr:           ":3000",
		AllowedOrigins:       append([]string(nil), DefaultAllowedOrigins...),
		StateTTLSec:          3600,
		DisconnectGraceSec:   120,
		EmptyRoomGraceSec:    15,
		FinishedRoomGraceSec: 7200,
	}
}

// Load builds the config from defaults, then CONFIG_FILE (YAML) if set, then the
// environment. The result is validated.
func Load() (*AppConfig, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	} else if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		cfg.ListenAddr = ":" + v
	}
	if v := strings.TrimSpace(os.Getenv("ADMIN_ADDR")); v != "" {
		cfg.AdminAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("MESSAGES_DIR")); v != "" {
		cfg.MessagesDir = v
	}

	for env, dst := range map[string]*int{
		"STATE_TTL_SEC":           &cfg.StateTTLSec,
		"DISCONNECT_GRACE_SEC":    &cfg.DisconnectGraceSec,
		"EMPTY_ROOM_GRACE_SEC":    &cfg.EmptyRoomGraceSec,
		"FINISHED_ROOM_GRACE_SEC": &cfg.FinishedRoomGraceSec,
	} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", env, err)
			}
			*dst = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("AUTO_CREATE_ON_JOIN")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AutoCreateOnJoin = b
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks struct tags and reports every failing field.
func Validate(cfg *AppConfig) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := lo.Map(verrs, func(item validator.FieldError, _ int) string { return item.Error() })
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func splitList(v string) []string {
	parts := lo.Map(strings.Split(v, ","), func(s string, _ int) string { return strings.TrimSpace(s) })
	return lo.Filter(parts, func(s string, _ int) bool { return s != "" })
}
