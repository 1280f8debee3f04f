package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Import    ImportConfig
	Separator SeparatorConfig
	Storage   StorageConfig
	Metadata  MetadataConfig
	Progress  ProgressConfig
	Gateway   GatewayConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	JobTTLHours int
}

type JWTConfig struct {
	Secret string
}

type RateLimitConfig struct {
	JobsPerHour int
}

type ImportConfig struct {
	WorkDir string
	Timeout int // seconds, per download
}

type SeparatorConfig struct {
	ServiceURL     string
	Timeout        int // seconds, per request
	Device         string
	CPUFallback    bool
	PollIntervalMs int
	Models         []string
}

type StorageConfig struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type MetadataConfig struct {
	ServiceURL string
	APIKey     string
	Timeout    int // seconds
}

type ProgressConfig struct {
	ThrottleMs int
}

type GatewayConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("STORAGE_ACCOUNT_ID")
	readSecret("STORAGE_ACCESS_KEY_ID")
	readSecret("STORAGE_SECRET_ACCESS_KEY")
	readSecret("METADATA_API_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("redis.job_ttl_hours", "REDIS_JOB_TTL_HOURS")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("ratelimit.jobs_per_hour", "RATELIMIT_JOBS_PER_HOUR")
	_ = viper.BindEnv("import.work_dir", "IMPORT_WORK_DIR")
	_ = viper.BindEnv("import.timeout", "IMPORT_TIMEOUT")
	_ = viper.BindEnv("separator.service_url", "SEPARATOR_SERVICE_URL")
	_ = viper.BindEnv("separator.timeout", "SEPARATOR_TIMEOUT")
	_ = viper.BindEnv("separator.device", "SEPARATOR_DEVICE")
	_ = viper.BindEnv("separator.cpu_fallback", "SEPARATOR_CPU_FALLBACK")
	_ = viper.BindEnv("separator.poll_interval_ms", "SEPARATOR_POLL_INTERVAL_MS")
	_ = viper.BindEnv("storage.account_id", "STORAGE_ACCOUNT_ID")
	_ = viper.BindEnv("storage.access_key_id", "STORAGE_ACCESS_KEY_ID")
	_ = viper.BindEnv("storage.secret_access_key", "STORAGE_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("storage.bucket_name", "STORAGE_BUCKET_NAME")
	_ = viper.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")
	_ = viper.BindEnv("metadata.service_url", "METADATA_SERVICE_URL")
	_ = viper.BindEnv("metadata.api_key", "METADATA_API_KEY")
	_ = viper.BindEnv("metadata.timeout", "METADATA_TIMEOUT")
	_ = viper.BindEnv("progress.throttle_ms", "PROGRESS_THROTTLE_MS")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.job_ttl_hours", 24)
	viper.SetDefault("jwt.secret", "")
	viper.SetDefault("ratelimit.jobs_per_hour", 20)

	// Import defaults
	viper.SetDefault("import.work_dir", os.TempDir())
	viper.SetDefault("import.timeout", 600)

	// Separator defaults
	viper.SetDefault("separator.service_url", "http://localhost:8084")
	viper.SetDefault("separator.timeout", 120)
	viper.SetDefault("separator.device", "cuda")
	viper.SetDefault("separator.cpu_fallback", true)
	viper.SetDefault("separator.poll_interval_ms", 1000)
	viper.SetDefault("separator.models", []string{"htdemucs", "htdemucs_ft"})

	// Metadata defaults
	viper.SetDefault("metadata.timeout", 30)

	// Progress defaults: coalesce bursts to at most two updates per second
	viper.SetDefault("progress.throttle_ms", 500)

	// Gateway defaults
	viper.SetDefault("gateway.enabled", false)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:        viper.GetString("redis.addr"),
			Password:    viper.GetString("redis.password"),
			DB:          viper.GetInt("redis.db"),
			JobTTLHours: viper.GetInt("redis.job_ttl_hours"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
		RateLimit: RateLimitConfig{
			JobsPerHour: viper.GetInt("ratelimit.jobs_per_hour"),
		},
		Import: ImportConfig{
			WorkDir: viper.GetString("import.work_dir"),
			Timeout: viper.GetInt("import.timeout"),
		},
		Separator: SeparatorConfig{
			ServiceURL:     viper.GetString("separator.service_url"),
			Timeout:        viper.GetInt("separator.timeout"),
			Device:         viper.GetString("separator.device"),
			CPUFallback:    viper.GetBool("separator.cpu_fallback"),
			PollIntervalMs: viper.GetInt("separator.poll_interval_ms"),
			Models:         viper.GetStringSlice("separator.models"),
		},
		Storage: StorageConfig{
			AccountID:       viper.GetString("storage.account_id"),
			AccessKeyID:     viper.GetString("storage.access_key_id"),
			SecretAccessKey: viper.GetString("storage.secret_access_key"),
			BucketName:      viper.GetString("storage.bucket_name"),
			PublicURL:       viper.GetString("storage.public_url"),
		},
		Metadata: MetadataConfig{
			ServiceURL: viper.GetString("metadata.service_url"),
			APIKey:     viper.GetString("metadata.api_key"),
			Timeout:    viper.GetInt("metadata.timeout"),
		},
		Progress: ProgressConfig{
			ThrottleMs: viper.GetInt("progress.throttle_ms"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
	}

	return cfg, nil
}
