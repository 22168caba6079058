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

type Config struct {
	Env      string // dev|prod
	LogLevel string

	ServerPort string

	DBDialect   string // sqlite|postgres
	DatabaseURL string
	SQLitePath  string

	SessionSecret string
	SessionTTL    time.Duration
	SessionDBPath string

	UploadDir       string
	UploadURLPrefix string
	MaxUploadBytes  int64
	StorageBackend  string // local|b2
	B2KeyID         string
	B2AppKey        string
	B2Bucket        string

	LDAPURL          string
	LDAPBindDN       string
	LDAPBindPassword string
	LDAPBaseDN       string
	LDAPUserFilter   string

	RedisURL  string
	SentryDSN string

	DemoLogin     bool
	AdminUsername string
	AdminPassword string
}

const devSessionSecret = "dev-session-secret-change-me"

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	maxUploadMB, err := strconv.Atoi(getEnv("MAX_UPLOAD_MB", "50"))
	if err != nil || maxUploadMB <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_MB: invalid value %q", os.Getenv("MAX_UPLOAD_MB"))
	}

	ttl, err := time.ParseDuration(getEnv("SESSION_TTL", "12h"))
	if err != nil {
		return nil, fmt.Errorf("SESSION_TTL: %w", err)
	}

	demo, err := strconv.ParseBool(getEnv("DEMO_LOGIN", "false"))
	if err != nil {
		return nil, fmt.Errorf("DEMO_LOGIN: %w", err)
	}

	cfg := &Config{
		Env:              strings.ToLower(getEnv("ENV", "dev")),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		DBDialect:        strings.ToLower(getEnv("DB_DIALECT", "sqlite")),
		DatabaseURL:      getEnv("DATABASE_URL", "postgresql://postgres@localhost:5432/challenges"),
		SQLitePath:       getEnv("SQLITE_PATH", "data/challenges.db"),
		SessionSecret:    getEnv("SESSION_SECRET", ""),
		SessionTTL:       ttl,
		SessionDBPath:    getEnv("SESSION_DB_PATH", "data/sessions.db"),
		UploadDir:        getEnv("UPLOAD_DIR", "public/uploads"),
		UploadURLPrefix:  strings.TrimRight(getEnv("UPLOAD_URL_PREFIX", "/uploads"), "/"),
		MaxUploadBytes:   int64(maxUploadMB) << 20,
		StorageBackend:   strings.ToLower(getEnv("STORAGE_BACKEND", "local")),
		B2KeyID:          os.Getenv("B2_KEY_ID"),
		B2AppKey:         os.Getenv("B2_APP_KEY"),
		B2Bucket:         os.Getenv("B2_BUCKET"),
		LDAPURL:          os.Getenv("LDAP_URL"),
		LDAPBindDN:       os.Getenv("LDAP_BIND_DN"),
		LDAPBindPassword: os.Getenv("LDAP_BIND_PASSWORD"),
		LDAPBaseDN:       os.Getenv("LDAP_BASE_DN"),
		LDAPUserFilter:   getEnv("LDAP_USER_FILTER", "(&(objectClass=person)(sAMAccountName=%s))"),
		RedisURL:         os.Getenv("REDIS_URL"),
		SentryDSN:        os.Getenv("SENTRY_DSN"),
		DemoLogin:        demo,
		AdminUsername:    getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:    getEnv("ADMIN_PASSWORD", "admin"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDialect {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DB_DIALECT: unsupported dialect %q", c.DBDialect)
	}
	switch c.StorageBackend {
	case "local":
	case "b2":
		if c.B2KeyID == "" || c.B2AppKey == "" || c.B2Bucket == "" {
			return errors.New("STORAGE_BACKEND=b2 requires B2_KEY_ID, B2_APP_KEY and B2_BUCKET")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND: unsupported backend %q", c.StorageBackend)
	}
	if c.SessionSecret == "" {
		if c.IsProd() {
			return errors.New("SESSION_SECRET is required in prod")
		}
		c.SessionSecret = devSessionSecret
	}
	return nil
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

func (c *Config) DirectoryEnabled() bool {
	return c.LDAPURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
