package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AppCfg struct{ Env, Port string }
type LogCfg struct {
	Level  string
	Buffer int
}
type DBCfg struct{ DSN string }
type RedisCfg struct {
	Addr       string
	SessionTTL time.Duration
}

type GovernanceCfg struct {
	URL        string
	TimeoutSec int
}

type SyncCfg struct {
	PollEvery time.Duration
	Chunk     int
}

type ViewsCfg struct {
	ListPrefix string
	MaxIdle    time.Duration
}

type SecurityCfg struct {
	AdminToken string
	// APIKeys are accepted bearer keys for /api/v1; empty disables the check
	APIKeys []string
}

type Cfg struct {
	App        AppCfg
	Log        LogCfg
	DB         DBCfg
	Redis      RedisCfg
	Governance GovernanceCfg
	Sync       SyncCfg
	Views      ViewsCfg
	Sec        SecurityCfg
}

// Load reads .env (if present) and the environment.
func Load() Cfg {
	_ = godotenv.Load(".env")

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("APP_ENV", "dev")
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_BUFFER", 1000)
	v.SetDefault("GOVERNANCE_TIMEOUT_SEC", 30)
	v.SetDefault("REDIS_SESSION_TTL", "24h")
	v.SetDefault("SYNC_POLL_EVERY", "30s")
	v.SetDefault("SYNC_CHUNK", 50)
	v.SetDefault("LIST_PREFIX", "proposals.")
	v.SetDefault("VIEW_MAX_IDLE", "30m")
	v.SetDefault("ADMIN_TOKEN", "")

	return Cfg{
		App: AppCfg{
			Env:  v.GetString("APP_ENV"),
			Port: v.GetString("APP_PORT"),
		},
		Log: LogCfg{
			Level:  v.GetString("LOG_LEVEL"),
			Buffer: v.GetInt("LOG_BUFFER"),
		},
		DB: DBCfg{DSN: v.GetString("DB_DSN")},
		Redis: RedisCfg{
			Addr:       v.GetString("REDIS_ADDR"),
			SessionTTL: v.GetDuration("REDIS_SESSION_TTL"),
		},
		Governance: GovernanceCfg{
			URL:        strings.TrimRight(v.GetString("GOVERNANCE_URL"), "/"),
			TimeoutSec: v.GetInt("GOVERNANCE_TIMEOUT_SEC"),
		},
		Sync: SyncCfg{
			PollEvery: v.GetDuration("SYNC_POLL_EVERY"),
			Chunk:     v.GetInt("SYNC_CHUNK"),
		},
		Views: ViewsCfg{
			ListPrefix: v.GetString("LIST_PREFIX"),
			MaxIdle:    v.GetDuration("VIEW_MAX_IDLE"),
		},
		Sec: SecurityCfg{
			AdminToken: strings.TrimSpace(v.GetString("ADMIN_TOKEN")),
			APIKeys:    splitList(v.GetString("API_KEYS")),
		},
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports every missing or malformed setting at once.
func (c Cfg) Validate() error {
	var errs []error
	if c.Governance.URL == "" {
		errs = append(errs, errors.New("GOVERNANCE_URL is required"))
	} else if u, err := url.Parse(c.Governance.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("GOVERNANCE_URL %q is not an absolute URL", c.Governance.URL))
	}
	if c.Governance.TimeoutSec <= 0 {
		errs = append(errs, errors.New("GOVERNANCE_TIMEOUT_SEC must be positive"))
	}
	if c.Sync.PollEvery <= 0 {
		errs = append(errs, errors.New("SYNC_POLL_EVERY must be positive"))
	}
	if c.Sync.Chunk <= 0 {
		errs = append(errs, errors.New("SYNC_CHUNK must be positive"))
	}
	if c.Log.Buffer <= 0 {
		errs = append(errs, errors.New("LOG_BUFFER must be positive"))
	}
	if c.App.Env == "production" && c.DB.DSN == "" {
		errs = append(errs, errors.New("DB_DSN is required in production"))
	}
	return errors.Join(errs...)
}
