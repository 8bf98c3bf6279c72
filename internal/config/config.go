package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const devSecretKey = "dev-secret-change-me"

// Config holds runtime configuration loaded from environment variables.
type Config struct {
	Port          string
	DatabaseURL   string
	SecretKey     string
	SessionTTL    time.Duration
	SecureCookies bool
	CorsOrigins   []string

	AWSRegion          string
	AWSProfile         string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	TextModelID     string
	TextModelFormat string
	ImageModelID    string
	VisionModelID   string
	MaxTokens       int
	Temperature     float64
	TopP            float64

	TextractBucket       string
	TextractPrefix       string
	TextractPollInterval time.Duration
	TextractTimeout      time.Duration
	TextractCleanup      bool

	UploadFolder      string
	MaxUploadBytes    int64
	AllowedExtensions []string
	MaxDocumentChars  int
	ImageSummarize    bool

	LogLevel         string
	LogFormat        string
	LogDir           string
	LogRetentionDays int
	MetricsEnabled   bool

	BootstrapAdminUsername string
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

func Load() Config {
	textModel := envOr("TEXT_MODEL_ID", envOr("LLAMA_MODEL_ID", "meta.llama3-70b-instruct-v1:0"))
	return Config{
		Port:          envOr("PORT", "8080"),
		DatabaseURL:   envOr("DATABASE_URL", "sqlite:///ai_web_app.db"),
		SecretKey:     envOr("SECRET_KEY", devSecretKey),
		SessionTTL:    time.Duration(envOrInt("SESSION_TTL_HOURS", 720)) * time.Hour,
		SecureCookies: envOrBool("SESSION_COOKIE_SECURE", false),
		CorsOrigins: parseCSV(envOr("CORS_ORIGINS",
			"http://localhost:3000,http://127.0.0.1:3000,http://localhost:5001,http://127.0.0.1:5001,http://localhost:8000,http://127.0.0.1:8000")),

		AWSRegion:          envOr("AWS_DEFAULT_REGION", "us-east-1"),
		AWSProfile:         envOr("AWS_PROFILE", ""),
		AWSAccessKeyID:     envOr("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: envOr("AWS_SECRET_ACCESS_KEY", ""),

		TextModelID:     textModel,
		TextModelFormat: strings.ToLower(envOr("TEXT_MODEL_FORMAT", "auto")),
		ImageModelID:    envOr("IMAGE_MODEL_ID", "amazon.titan-image-generator-v2:0"),
		VisionModelID:   envOr("TITAN_VISION_MODEL_ID", ""),
		MaxTokens:       envOrInt("MAX_TOKENS", 1024),
		Temperature:     envOrFloat("TEMPERATURE", 0.7),
		TopP:            envOrFloat("TOP_P", 0.9),

		TextractBucket:       envOr("TEXTRACT_S3_BUCKET", ""),
		TextractPrefix:       envOr("TEXTRACT_S3_PREFIX", "uploads/textract/"),
		TextractPollInterval: time.Duration(envOrInt("TEXTRACT_JOB_POLL_SECONDS", 2)) * time.Second,
		TextractTimeout:      time.Duration(envOrInt("TEXTRACT_JOB_TIMEOUT_SECONDS", 180)) * time.Second,
		TextractCleanup:      envOrBool("TEXTRACT_S3_CLEANUP", true),

		UploadFolder:   envOr("UPLOAD_FOLDER", "uploads"),
		MaxUploadBytes: int64(envOrInt("MAX_UPLOAD_MB", 16)) * 1024 * 1024,
		AllowedExtensions: parseCSV(strings.ToLower(envOr("ALLOWED_EXTENSIONS",
			"txt,md,pdf,png,jpg,jpeg,gif,tif,tiff,doc,docx,html,htm"))),
		MaxDocumentChars: envOrInt("MAX_DOCUMENT_CHARS", 100000),
		ImageSummarize:   envOrBool("IMAGE_SUMMARIZE", true),

		LogLevel:         strings.ToLower(envOr("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(envOr("LOG_FORMAT", "console")),
		LogDir:           envOr("LOG_DIR", "storage/logs"),
		LogRetentionDays: retentionDays(envOrInt("LOG_RETENTION_DAYS", 7)),
		MetricsEnabled:   envOrBool("METRICS_ENABLED", true),

		BootstrapAdminUsername: envOr("ADMIN_BOOTSTRAP_USERNAME", ""),
		BootstrapAdminEmail:    strings.ToLower(envOr("ADMIN_BOOTSTRAP_EMAIL", "")),
		BootstrapAdminPassword: os.Getenv("ADMIN_BOOTSTRAP_PASSWORD"),
	}
}

// UsesDevSecret reports whether the session signing key is the built-in fallback.
func (c Config) UsesDevSecret() bool {
	return c.SecretKey == devSecretKey
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envOrFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func envOrBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func retentionDays(days int) int {
	if days > 7 {
		return 7
	}
	return days
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value != "" {
			items = append(items, value)
		}
	}
	return items
}
