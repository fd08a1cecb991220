package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env  string
	Port int

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	GitHub    GitHubConfig
	CORS      CORSConfig
	Log       LogConfig
	Storage   StorageConfig
	Uploads   UploadConfig
	Notify    NotifyConfig
	Telemetry TelemetryConfig
}

type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	AcquireTimeout time.Duration
	AutoMigrate    bool
}

type RedisConfig struct {
	Enabled  bool
	URL      string
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

// GitHubConfig holds the OAuth app and the organisation team whose members are admins.
type GitHubConfig struct {
	ClientID           string
	ClientSecret       string
	OrgName            string
	TeamSlug           string
	OrgAdminToken      string
	AdminUsernames     []string
	MembershipCacheTTL time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level    string
	Format   string
	Location string
}

// StorageConfig locates question paper files on disk and on the static file server.
type StorageConfig struct {
	StaticFilesURL  string
	StorageRoot     string
	UploadedQPsPath string
	LibraryQPsPath  string
}

// UploadConfig bounds public upload batches.
type UploadConfig struct {
	MaxFiles        int
	MaxFileSize     int64
	MaxRequestBytes int64
}

// NotifyConfig configures the admin webhook.
type NotifyConfig struct {
	SlackWebhookURL string
	DashboardURL    string
	Workers         int
	Retries         int
	Timeout         time.Duration
}

// TelemetryConfig toggles OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
	SampleRatio  float64
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")

	cfg.Database = DatabaseConfig{
		Host:           v.GetString("DB_HOST"),
		Port:           v.GetInt("DB_PORT"),
		User:           v.GetString("DB_USER"),
		Password:       v.GetString("DB_PASSWORD"),
		Name:           v.GetString("DB_NAME"),
		SSLMode:        v.GetString("DB_SSL_MODE"),
		MaxOpenConns:   v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:   v.GetInt("DB_MAX_IDLE_CONNS"),
		AcquireTimeout: parseDuration(v.GetString("DB_ACQUIRE_TIMEOUT"), 3*time.Second),
		AutoMigrate:    v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		URL:      v.GetString("REDIS_URL"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.GitHub = GitHubConfig{
		ClientID:           v.GetString("GH_CLIENT_ID"),
		ClientSecret:       v.GetString("GH_PRIVATE_ID"),
		OrgName:            v.GetString("GH_ORG_NAME"),
		TeamSlug:           v.GetString("GH_ORG_TEAM_SLUG"),
		OrgAdminToken:      v.GetString("GH_ORG_ADMIN_TOKEN"),
		AdminUsernames:     splitAndTrim(v.GetString("GH_ADMIN_USERNAMES")),
		MembershipCacheTTL: parseDuration(v.GetString("MEMBERSHIP_CACHE_TTL"), 10*time.Minute),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("CORS_ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:    v.GetString("LOG_LEVEL"),
		Format:   v.GetString("LOG_FORMAT"),
		Location: v.GetString("LOG_LOCATION"),
	}

	cfg.Storage = StorageConfig{
		StaticFilesURL:  v.GetString("STATIC_FILES_URL"),
		StorageRoot:     v.GetString("STATIC_FILE_STORAGE_LOCATION"),
		UploadedQPsPath: v.GetString("UPLOADED_QPS_PATH"),
		LibraryQPsPath:  v.GetString("LIBRARY_QPS_PATH"),
	}

	maxFileSize := v.GetInt64("MAX_UPLOAD_FILE_SIZE")
	if maxFileSize <= 0 {
		maxFileSize = 10 * 1024 * 1024
	}
	maxFiles := v.GetInt("MAX_UPLOAD_LIMIT")
	if maxFiles <= 0 {
		maxFiles = 10
	}
	cfg.Uploads = UploadConfig{
		MaxFiles:        maxFiles,
		MaxFileSize:     maxFileSize,
		MaxRequestBytes: int64(maxFiles)*maxFileSize + 1024*1024,
	}

	cfg.Notify = NotifyConfig{
		SlackWebhookURL: v.GetString("SLACK_WEBHOOK_URL"),
		DashboardURL:    v.GetString("ADMIN_DASHBOARD_URL"),
		Workers:         v.GetInt("NOTIFY_WORKERS"),
		Retries:         v.GetInt("NOTIFY_RETRIES"),
		Timeout:         parseDuration(v.GetString("NOTIFY_TIMEOUT"), 5*time.Second),
	}

	cfg.Telemetry = TelemetryConfig{
		Enabled:      v.GetBool("OTEL_ENABLED"),
		ServiceName:  v.GetString("OTEL_SERVICE_NAME"),
		OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		SampleRatio:  v.GetFloat64("OTEL_SAMPLER_RATIO"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "iqps")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 5)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_ACQUIRE_TIMEOUT", "3s")
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "168h")

	v.SetDefault("GH_ORG_NAME", "")
	v.SetDefault("GH_ORG_TEAM_SLUG", "")
	v.SetDefault("GH_ADMIN_USERNAMES", "")
	v.SetDefault("MEMBERSHIP_CACHE_TTL", "10m")

	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_LOCATION", "")

	v.SetDefault("STATIC_FILES_URL", "https://static.metakgp.org")
	v.SetDefault("STATIC_FILE_STORAGE_LOCATION", "/srv/static")
	v.SetDefault("UPLOADED_QPS_PATH", "/iqps/uploaded")
	v.SetDefault("LIBRARY_QPS_PATH", "/peqp/qp")

	v.SetDefault("MAX_UPLOAD_LIMIT", 10)
	v.SetDefault("MAX_UPLOAD_FILE_SIZE", 10*1024*1024)

	v.SetDefault("SLACK_WEBHOOK_URL", "")
	v.SetDefault("ADMIN_DASHBOARD_URL", "https://qp.metakgp.org/admin")
	v.SetDefault("NOTIFY_WORKERS", 1)
	v.SetDefault("NOTIFY_RETRIES", 3)
	v.SetDefault("NOTIFY_TIMEOUT", "5s")

	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "iqps-api")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_SAMPLER_RATIO", 1.0)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
