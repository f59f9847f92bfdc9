// Package config loads typed application configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Settings aggregates all configuration groups. Construct with Load at
// startup and pass the groups to the components that need them.
type Settings struct {
	App        AppConfig
	Security   SecurityConfig
	Scraper    ScraperConfig
	Monitoring MonitoringConfig
	Backup     BackupConfig
	Queue      *QueueConfig
}

// AppConfig holds HTTP server and identity settings.
type AppConfig struct {
	Host      string
	Port      int
	JWTSecret string
	JWTExpiry time.Duration
}

// SecurityConfig holds encryption key resolution settings.
type SecurityConfig struct {
	// KeyFile is the fallback key file path; the env var wins when set.
	KeyFile string
}

// ScraperConfig holds platform adapter settings.
type ScraperConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	PageLimit      int

	SessionTTL       time.Duration
	RefreshThreshold time.Duration

	// RateLimitDelay is the pause between consecutive comment posts within
	// one posting stage.
	RateLimitDelay time.Duration
}

// MonitoringConfig holds orchestrator settings.
type MonitoringConfig struct {
	AIPrefix             string
	DefaultDurationMin   int
	MaxConcurrentPerUser int
	MinCommentLength     int
	MaxCommentLength     int
	LLMTimeout           time.Duration
	ProviderMinDelay     time.Duration
	MaxRetries           int
	RetryBackoffBase     time.Duration
	DiscoveryParallelism int
}

// BackupConfig holds student backup settings.
type BackupConfig struct {
	Enabled            bool
	MaxVersions        int
	MaxTrackedStudents int
	ContentChangesOnly bool
	Interval           time.Duration
}

// DefaultAIPrefix is the mandatory German AI-disclosure prefix for every
// posted comment.
const DefaultAIPrefix = "[Dieser Kommentar stammt von einem KI-ChatBot.]"

// Load reads all configuration groups from the environment.
func Load() (*Settings, error) {
	app, err := loadAppConfig()
	if err != nil {
		return nil, err
	}
	return &Settings{
		App:        app,
		Security:   SecurityConfig{KeyFile: getEnvOrDefault("YOURMOMENT_KEY_FILE", ".encryption_key")},
		Scraper:    loadScraperConfig(),
		Monitoring: loadMonitoringConfig(),
		Backup:     loadBackupConfig(),
		Queue:      DefaultQueueConfig(),
	}, nil
}

func loadAppConfig() (AppConfig, error) {
	port, err := strconv.Atoi(getEnvOrDefault("HTTP_PORT", "8000"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid HTTP_PORT: %w", err)
	}
	return AppConfig{
		Host:      getEnvOrDefault("HTTP_HOST", "0.0.0.0"),
		Port:      port,
		JWTSecret: getEnvOrDefault("JWT_SECRET", "insecure-dev-secret-change-in-production"),
		JWTExpiry: getEnvDuration("JWT_EXPIRY", 30*time.Minute),
	}, nil
}

func loadScraperConfig() ScraperConfig {
	return ScraperConfig{
		BaseURL:          getEnvOrDefault("MYMOMENT_BASE_URL", "https://new.mymoment.ch"),
		RequestTimeout:   getEnvDuration("MYMOMENT_TIMEOUT", 30*time.Second),
		PageLimit:        getEnvInt("MYMOMENT_PAGE_LIMIT", 20),
		SessionTTL:       getEnvDuration("SESSION_TTL", 24*time.Hour),
		RefreshThreshold: getEnvDuration("SESSION_REFRESH_THRESHOLD", time.Hour),
		RateLimitDelay:   getEnvDuration("SCRAPING_RATE_LIMIT_DELAY", 2*time.Second),
	}
}

func loadMonitoringConfig() MonitoringConfig {
	return MonitoringConfig{
		AIPrefix:             getEnvOrDefault("AI_COMMENT_PREFIX", DefaultAIPrefix),
		DefaultDurationMin:   getEnvInt("DEFAULT_MONITORING_DURATION_MINUTES", 60),
		MaxConcurrentPerUser: getEnvInt("MAX_MONITORING_PROCESSES", 10),
		MinCommentLength:     getEnvInt("MIN_COMMENT_LENGTH", 50),
		MaxCommentLength:     getEnvInt("MAX_COMMENT_LENGTH", 500),
		LLMTimeout:           getEnvDuration("LLM_TIMEOUT", 30*time.Second),
		ProviderMinDelay:     getEnvDuration("LLM_PROVIDER_MIN_DELAY", 2*time.Second),
		MaxRetries:           getEnvInt("MAX_RETRIES", 3),
		RetryBackoffBase:     getEnvDuration("RETRY_BACKOFF_BASE", time.Second),
		DiscoveryParallelism: getEnvInt("DISCOVERY_PARALLELISM", 1),
	}
}

func loadBackupConfig() BackupConfig {
	return BackupConfig{
		Enabled:            getEnvBool("STUDENT_BACKUP_ENABLED", false),
		MaxVersions:        getEnvInt("STUDENT_BACKUP_MAX_VERSIONS_PER_ARTICLE", 10),
		MaxTrackedStudents: getEnvInt("STUDENT_BACKUP_MAX_TRACKED_STUDENTS_PER_USER", 50),
		ContentChangesOnly: getEnvBool("STUDENT_BACKUP_CONTENT_CHANGES_ONLY", true),
		Interval:           getEnvDuration("STUDENT_BACKUP_INTERVAL", 6*time.Hour),
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
