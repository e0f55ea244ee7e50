package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// RateLimitPlanConfig holds the request budget for a single rate-limit plan.
type RateLimitPlanConfig struct {
	Limit  int
	Window time.Duration
}

// QueueConfig holds the grading job queue settings.
type QueueConfig struct {
	Enabled           bool
	Name              string
	VisibilityTimeout time.Duration
	WaitTime          time.Duration
	MaxMessages       int
	MaxReceiveCount   int
	PollInterval      time.Duration
}

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	JWTSecret              string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	UploadMaxSizeMB        int

	OpenAIAPIKey      string
	AIVisionModel     string
	AIChatModel       string
	AIMaxTokens       int
	AITemperature     float32
	AIMaxRetries      int
	AIRetryBaseDelay  time.Duration
	ConfidenceDefault float64

	Queue QueueConfig

	RateLimitEnabled bool
	RateLimitAPI     RateLimitPlanConfig
	RateLimitUpload  RateLimitPlanConfig
	RateLimitAI      RateLimitPlanConfig
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GRADEFLOW")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GradeFlow API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("cloudinary.folder", "gradeflow/submissions")
	v.SetDefault("upload.max_size_mb", 10)

	v.SetDefault("ai.vision_model", "gpt-4o")
	v.SetDefault("ai.chat_model", "gpt-4o-mini")
	v.SetDefault("ai.max_tokens", 1024)
	v.SetDefault("ai.temperature", 0.2)
	v.SetDefault("ai.max_retries", 3)
	v.SetDefault("ai.retry_base_delay_ms", 1000)
	v.SetDefault("grading.confidence_threshold", 0.80)

	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.name", "grading-jobs")
	v.SetDefault("queue.visibility_timeout_seconds", 300)
	v.SetDefault("queue.wait_time_seconds", 20)
	v.SetDefault("queue.max_messages_per_poll", 10)
	v.SetDefault("queue.max_receive_count", 3)
	v.SetDefault("queue.polling_interval_ms", 1000)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.api_limit", 100)
	v.SetDefault("rate_limit.api_window_seconds", 60)
	v.SetDefault("rate_limit.upload_limit", 10)
	v.SetDefault("rate_limit.upload_window_seconds", 3600)
	v.SetDefault("rate_limit.ai_limit", 50)
	v.SetDefault("rate_limit.ai_window_seconds", 3600)

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		JWTSecret:              v.GetString("jwt.secret"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		UploadMaxSizeMB:        v.GetInt("upload.max_size_mb"),

		OpenAIAPIKey:      v.GetString("openai_api_key"),
		AIVisionModel:     v.GetString("ai.vision_model"),
		AIChatModel:       v.GetString("ai.chat_model"),
		AIMaxTokens:       v.GetInt("ai.max_tokens"),
		AITemperature:     float32(v.GetFloat64("ai.temperature")),
		AIMaxRetries:      v.GetInt("ai.max_retries"),
		AIRetryBaseDelay:  time.Duration(v.GetInt("ai.retry_base_delay_ms")) * time.Millisecond,
		ConfidenceDefault: v.GetFloat64("grading.confidence_threshold"),

		Queue: QueueConfig{
			Enabled:           v.GetBool("queue.enabled"),
			Name:              v.GetString("queue.name"),
			VisibilityTimeout: time.Duration(v.GetInt("queue.visibility_timeout_seconds")) * time.Second,
			WaitTime:          time.Duration(v.GetInt("queue.wait_time_seconds")) * time.Second,
			MaxMessages:       v.GetInt("queue.max_messages_per_poll"),
			MaxReceiveCount:   v.GetInt("queue.max_receive_count"),
			PollInterval:      time.Duration(v.GetInt("queue.polling_interval_ms")) * time.Millisecond,
		},

		RateLimitEnabled: v.GetBool("rate_limit.enabled"),
		RateLimitAPI: RateLimitPlanConfig{
			Limit:  v.GetInt("rate_limit.api_limit"),
			Window: time.Duration(v.GetInt("rate_limit.api_window_seconds")) * time.Second,
		},
		RateLimitUpload: RateLimitPlanConfig{
			Limit:  v.GetInt("rate_limit.upload_limit"),
			Window: time.Duration(v.GetInt("rate_limit.upload_window_seconds")) * time.Second,
		},
		RateLimitAI: RateLimitPlanConfig{
			Limit:  v.GetInt("rate_limit.ai_limit"),
			Window: time.Duration(v.GetInt("rate_limit.ai_window_seconds")) * time.Second,
		},
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.Queue.WaitTime < 0 || cfg.Queue.WaitTime > 20*time.Second {
		return Config{}, fmt.Errorf("queue wait time must be between 0 and 20 seconds")
	}

	if cfg.Queue.MaxMessages < 1 || cfg.Queue.MaxMessages > 10 {
		return Config{}, fmt.Errorf("queue max messages per poll must be between 1 and 10")
	}

	if cfg.AIMaxRetries < 0 {
		cfg.AIMaxRetries = 0
	}

	if cfg.UploadMaxSizeMB <= 0 {
		cfg.UploadMaxSizeMB = 10
	}

	return cfg, nil
}
