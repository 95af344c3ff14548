package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN builds the lib/pq connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// ObjectStoreConfig holds the media object-store (MinIO/S3) settings.
// PublicBaseURL is the stable URL prefix returned to clients for stored media.
type ObjectStoreConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
}

// DriveOAuthConfig holds the cloud-drive OAuth application credentials.
type DriveOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
}

// BillingConfig holds billing gateway settings. WebhookToken is the
// system-wide fallback checked when a tenant has no token of its own.
type BillingConfig struct {
	BaseURL      string
	WebhookToken string
}

// Config is the full northway-core configuration.
type Config struct {
	HTTP struct {
		Addr string
	}
	Database DatabaseConfig
	Redis    struct {
		Addr     string
		Password string
		DB       int
	}
	Log struct {
		Level  string
		Format string
	}
	ObjectStore ObjectStoreConfig
	DriveOAuth  DriveOAuthConfig
	Billing     BillingConfig
	Messaging   struct {
		DefaultBaseURL string
	}
	// SecretKey is the hex-encoded 32-byte master key sealing OAuth refresh tokens.
	SecretKey string
	// GateRecoveryPaths are extra path prefixes exempt from the access gate
	// (comma-separated), e.g. a payment-recovery page the blocked tenant must reach.
	GateRecoveryPaths []string
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "northway")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "20"), 20)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.ObjectStore.Endpoint = getEnv("OBJECT_STORE_ENDPOINT", "localhost:9000")
	cfg.ObjectStore.AccessKey = getEnv("OBJECT_STORE_ACCESS_KEY", "")
	cfg.ObjectStore.SecretKey = getEnv("OBJECT_STORE_SECRET_KEY", "")
	cfg.ObjectStore.Bucket = getEnv("OBJECT_STORE_BUCKET", "northway-media")
	cfg.ObjectStore.UseSSL = getEnv("OBJECT_STORE_SSL", "false") == "true"
	cfg.ObjectStore.PublicBaseURL = strings.TrimRight(getEnv("OBJECT_STORE_PUBLIC_URL", "http://localhost:9000/northway-media"), "/")

	cfg.DriveOAuth.ClientID = getEnv("GOOGLE_CLIENT_ID", "")
	cfg.DriveOAuth.ClientSecret = getEnv("GOOGLE_CLIENT_SECRET", "")
	cfg.DriveOAuth.RedirectURI = getEnv("GOOGLE_REDIRECT_URI", "http://localhost:8080/api/integrations/drive/callback")
	cfg.DriveOAuth.AuthURL = getEnv("GOOGLE_AUTH_URL", "https://accounts.google.com/o/oauth2/auth")
	cfg.DriveOAuth.TokenURL = getEnv("GOOGLE_TOKEN_URL", "https://oauth2.googleapis.com/token")
	cfg.DriveOAuth.APIBaseURL = getEnv("GOOGLE_DRIVE_API_URL", "https://www.googleapis.com/drive/v3")

	cfg.Billing.BaseURL = getEnv("ASAAS_API_URL", "https://www.asaas.com/api/v3")
	cfg.Billing.WebhookToken = getEnv("ASAAS_WEBHOOK_TOKEN", "")

	cfg.Messaging.DefaultBaseURL = getEnv("ZAPI_API_URL", "https://api.z-api.io")

	cfg.SecretKey = getEnv("SECRET_KEY", "")

	if paths := getEnv("GATE_RECOVERY_PATHS", "/api/billing/checkout,/api/billing/invoices"); paths != "" {
		for _, p := range strings.Split(paths, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.GateRecoveryPaths = append(cfg.GateRecoveryPaths, p)
			}
		}
	}

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
