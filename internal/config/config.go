package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Addr           string
	AppEnv         string
	BackendURL     string
	UseRealBackend bool
	DebugPrints    bool
	DatabaseURL    string
	SessionSecret  string
	SessionTTL     time.Duration
	AdminPassword  string
	PagesDirs      []string
	RFCDir         string
	CORSOrigin     string
	MeiliURL       string
	MeiliMasterKey string
	// Object storage for diary exports; disabled when MinioEndpoint is empty.
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	// Redis session store; in-memory sessions when empty.
	RedisURL          string
	DispatchWorkers   int
	DispatchQueueSize int
}

// Load reads configuration from the environment, optionally layered over a
// config file named by SUPERNOVA_CONFIG.
func Load() Config {
	v := viper.New()

	v.SetDefault("api_addr", ":8787")
	v.SetDefault("app_env", "development")
	v.SetDefault("backend_url", "http://localhost:8000")
	v.SetDefault("use_real_backend", "")
	v.SetDefault("ui_debug_prints", "1")
	v.SetDefault("database_url", "sqlite://./data/supernova.db")
	v.SetDefault("session_secret", "supernova-dev-secret")
	v.SetDefault("session_ttl_seconds", 7*24*60*60)
	v.SetDefault("admin_password", "")
	v.SetDefault("pages_dirs", "./pages")
	v.SetDefault("rfc_dir", "./rfcs")
	v.SetDefault("cors_origin", "*")
	v.SetDefault("meili_url", "")
	v.SetDefault("meili_master_key", "")
	v.SetDefault("minio_endpoint", "")
	v.SetDefault("minio_access_key", "")
	v.SetDefault("minio_secret_key", "")
	v.SetDefault("minio_bucket", "supernova-diary")
	v.SetDefault("minio_use_ssl", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("dispatch_workers", 4)
	v.SetDefault("dispatch_queue_size", 64)

	if path := os.Getenv("SUPERNOVA_CONFIG"); path != "" {
		v.SetConfigFile(path)
		_ = v.ReadInConfig()
	}
	v.AutomaticEnv()

	return Config{
		Addr:              v.GetString("api_addr"),
		AppEnv:            v.GetString("app_env"),
		BackendURL:        strings.TrimRight(v.GetString("backend_url"), "/"),
		UseRealBackend:    Truthy(v.GetString("use_real_backend")),
		DebugPrints:       strings.TrimSpace(v.GetString("ui_debug_prints")) != "0",
		DatabaseURL:       v.GetString("database_url"),
		SessionSecret:     v.GetString("session_secret"),
		SessionTTL:        time.Duration(positive(v.GetInt("session_ttl_seconds"), 7*24*60*60)) * time.Second,
		AdminPassword:     v.GetString("admin_password"),
		PagesDirs:         splitList(v.GetString("pages_dirs")),
		RFCDir:            v.GetString("rfc_dir"),
		CORSOrigin:        v.GetString("cors_origin"),
		MeiliURL:          v.GetString("meili_url"),
		MeiliMasterKey:    v.GetString("meili_master_key"),
		MinioEndpoint:     v.GetString("minio_endpoint"),
		MinioAccessKey:    v.GetString("minio_access_key"),
		MinioSecretKey:    v.GetString("minio_secret_key"),
		MinioBucket:       v.GetString("minio_bucket"),
		MinioUseSSL:       Truthy(v.GetString("minio_use_ssl")),
		RedisURL:          v.GetString("redis_url"),
		DispatchWorkers:   positive(v.GetInt("dispatch_workers"), 4),
		DispatchQueueSize: positive(v.GetInt("dispatch_queue_size"), 64),
	}
}

// Production reports whether the badge should read "Production".
func (c Config) Production() bool {
	return strings.EqualFold(strings.TrimSpace(c.AppEnv), "production")
}

// Truthy accepts 1, true and yes in any case.
func Truthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func positive(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}
