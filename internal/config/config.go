package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Fetcher  FetcherConfig
	Crawler  CrawlerConfig
	Scraper  ScraperConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
	Migrate  bool
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PollInterval time.Duration
	BatchSize    int

	// RequestStream carries on-demand scrape requests. Empty disables the
	// consumer.
	RequestStream string
	ConsumerGroup string
	ConsumerName  string
}

type FetcherConfig struct {
	// Driver is "http" or "playwright".
	Driver         string
	Headless       bool
	Timeout        time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	MaxRequests    int
	RatePerSecond  float64
	Burst          int
	DelayMin       time.Duration
	DelayMax       time.Duration
	UserAgent      string
	Proxy          string
	Locale         string
	AcceptLanguage string
	TimezoneID     string
}

type CrawlerConfig struct {
	BaseURL        string
	Currency       string
	Concurrency    int
	MaxPages       int
	SkipCategories []string
}

type ScraperConfig struct {
	Workers  int
	StoreKey string
	Kind     string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getIntOrDefault("SERVER_PORT", 8084),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "catalog_scraper"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 20)),
			Migrate:  getBoolOrDefault("DB_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:         getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:     getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:           getIntOrDefault("REDIS_DB", 0),
			PollInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getIntOrDefault("RELAY_BATCH_SIZE", 100),

			RequestStream: getEnvOrDefault("REDIS_REQUEST_STREAM", "stream:scrape_requests"),
			ConsumerGroup: getEnvOrDefault("REDIS_CONSUMER_GROUP", "catalog-scraper"),
			ConsumerName:  getEnvOrDefault("REDIS_CONSUMER_NAME", "consumer-1"),
		},
		Fetcher: FetcherConfig{
			Driver:         strings.ToLower(getEnvOrDefault("FETCHER_DRIVER", "http")),
			Headless:       getBoolOrDefault("FETCHER_HEADLESS", true),
			Timeout:        getDurationOrDefault("FETCHER_TIMEOUT", 30*time.Second),
			MaxRetries:     getIntOrDefault("FETCHER_MAX_RETRIES", 3),
			RetryDelay:     getDurationOrDefault("FETCHER_RETRY_DELAY", time.Second),
			MaxRequests:    getIntOrDefault("FETCHER_MAX_REQUESTS", 0),
			RatePerSecond:  getFloatOrDefault("FETCHER_RATE_PER_SECOND", 2),
			Burst:          getIntOrDefault("FETCHER_BURST", 4),
			DelayMin:       getDurationOrDefault("FETCHER_DELAY_MIN", 0),
			DelayMax:       getDurationOrDefault("FETCHER_DELAY_MAX", 0),
			UserAgent:      getEnvOrDefault("FETCHER_USER_AGENT", ""),
			Proxy:          getEnvOrDefault("FETCHER_PROXY", ""),
			Locale:         getEnvOrDefault("FETCHER_LOCALE", "en-US"),
			AcceptLanguage: getEnvOrDefault("FETCHER_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			TimezoneID:     getEnvOrDefault("FETCHER_TIMEZONE", "America/New_York"),
		},
		Crawler: CrawlerConfig{
			BaseURL:        getEnvOrDefault("CRAWLER_BASE_URL", ""),
			Currency:       getEnvOrDefault("CRAWLER_CURRENCY", "USD"),
			Concurrency:    getIntOrDefault("CRAWLER_CONCURRENCY", 4),
			MaxPages:       getIntOrDefault("CRAWLER_MAX_PAGES", 50),
			SkipCategories: getStringSliceOrDefault("CRAWLER_SKIP_CATEGORIES", []string{"stores", "about"}),
		},
		Scraper: ScraperConfig{
			Workers:  getIntOrDefault("SCRAPER_WORKERS", 2),
			StoreKey: getEnvOrDefault("SCRAPER_STORE_KEY", ""),
			Kind:     getEnvOrDefault("SCRAPER_KIND", "full"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}

	switch c.Fetcher.Driver {
	case "http", "playwright":
	default:
		return fmt.Errorf("FETCHER_DRIVER must be http or playwright, got %q", c.Fetcher.Driver)
	}

	if c.Fetcher.DelayMin > c.Fetcher.DelayMax {
		return fmt.Errorf("FETCHER_DELAY_MIN cannot be greater than FETCHER_DELAY_MAX")
	}

	if c.Crawler.Concurrency < 1 {
		return fmt.Errorf("CRAWLER_CONCURRENCY must be at least 1")
	}

	if c.Scraper.Workers < 1 {
		return fmt.Errorf("at least 1 scraper worker is required")
	}

	switch c.Scraper.Kind {
	case "availability", "full", "mpi":
	default:
		return fmt.Errorf("SCRAPER_KIND must be availability, full or mpi, got %q", c.Scraper.Kind)
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
