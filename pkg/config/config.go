package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: every environment variable is read here and nowhere else
type Config struct {
	Env string  // development, staging, production

	Database   DatabaseConfig
	Crawler    CrawlerConfig
	Simulation SimulationConfig
	Selection  SelectionConfig
	Scheduler  SchedulerConfig
	API        APIConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	URL      string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// SleepRange is a closed interval a paced client draws its pre-request sleep from.
type SleepRange struct {
	Min time.Duration
	Max time.Duration
}

// CrawlerConfig holds remote data source settings
type CrawlerConfig struct {
	RequestTimeout time.Duration

	// Normal pacing per source and the widened interval used after a rate-limit marker.
	TWSESleep    SleepRange
	TPExSleep    SleepRange
	MOPSSleep    SleepRange
	OverrunSleep SleepRange

	TWSERetries int
	TPExRetries int
	MOPSRetries int

	HolidayURL  string
	TWSEBaseURL string
	TPExBaseURL string
	MOPSBaseURL string
}

// SimulationConfig holds backtest defaults exposed as CLI flag defaults
type SimulationConfig struct {
	Principal  int64
	InitVolume int
	MACDNDay   int
	KDJNDay    int
	KDJScalar  int
	TopSize    int
	LimitPrice float64
	ROILimit   float64
}

// SelectionConfig holds recommender defaults
type SelectionConfig struct {
	R1MaxPBR  float64
	R1MinOPM  float64
	R1MinEPS  float64
	R1MinLots float64
}

// SchedulerConfig holds cron settings
type SchedulerConfig struct {
	CrawlSchedule     string
	RecommendSchedule string
	// AggregateAfterCrawl rebuilds weekly/monthly candlesticks after the daily crawl.
	AggregateAfterCrawl bool
}

// APIConfig holds report API settings
type APIConfig struct {
	Port string
}

// Load reads configuration from environment variables, then applies the
// optional TOML file named by STOCKPROPHET_CONFIG.
// ⭐ SSOT: the only function that calls os.Getenv()
func Load() (*Config, error) {
	return LoadWithFile(os.Getenv("STOCKPROPHET_CONFIG"))
}

// LoadWithFile is Load with an explicit overlay file path. An empty path skips the overlay.
func LoadWithFile(path string) (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Env: getEnv("ENV", "development"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			Name:            getEnv("DB_NAME", "stockprophet"),
			User:            getEnv("DB_USER", "stockprophet"),
			Password:        getEnv("DB_PASSWORD", ""),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Crawler: CrawlerConfig{
			RequestTimeout: getEnvAsDuration("CRAWLER_REQUEST_TIMEOUT", "10s"),
			TWSESleep: SleepRange{
				Min: getEnvAsDuration("TWSE_SLEEP_MIN", "5s"),
				Max: getEnvAsDuration("TWSE_SLEEP_MAX", "10s"),
			},
			TPExSleep: SleepRange{
				Min: getEnvAsDuration("TPEX_SLEEP_MIN", "3s"),
				Max: getEnvAsDuration("TPEX_SLEEP_MAX", "5s"),
			},
			MOPSSleep: SleepRange{
				Min: getEnvAsDuration("MOPS_SLEEP_MIN", "5s"),
				Max: getEnvAsDuration("MOPS_SLEEP_MAX", "10s"),
			},
			OverrunSleep: SleepRange{
				Min: getEnvAsDuration("OVERRUN_SLEEP_MIN", "30s"),
				Max: getEnvAsDuration("OVERRUN_SLEEP_MAX", "40s"),
			},
			TWSERetries: getEnvAsInt("TWSE_RETRIES", 3),
			TPExRetries: getEnvAsInt("TPEX_RETRIES", 10),
			MOPSRetries: getEnvAsInt("MOPS_RETRIES", 3),
			HolidayURL:  getEnv("HOLIDAY_URL", "https://raw.githubusercontent.com/chihyi-liao/stock-data/master/date_data.json"),
			TWSEBaseURL: getEnv("TWSE_BASE_URL", "https://www.twse.com.tw"),
			TPExBaseURL: getEnv("TPEX_BASE_URL", "https://www.tpex.org.tw"),
			MOPSBaseURL: getEnv("MOPS_BASE_URL", "https://mops.twse.com.tw"),
		},

		Simulation: SimulationConfig{
			Principal:  int64(getEnvAsInt("SIM_PRINCIPAL", 500_000)),
			InitVolume: getEnvAsInt("SIM_INIT_VOLUME", 2),
			MACDNDay:   getEnvAsInt("SIM_MACD_N_DAY", 90),
			KDJNDay:    getEnvAsInt("SIM_KDJ_N_DAY", 9),
			KDJScalar:  getEnvAsInt("SIM_KDJ_SCALAR", 5),
			TopSize:    getEnvAsInt("SIM_TOP_SIZE", 20),
			LimitPrice: getEnvAsFloat("SIM_LIMIT_PRICE", 25.0),
			ROILimit:   getEnvAsFloat("SIM_ROI_LIMIT", -10.0),
		},

		Selection: SelectionConfig{
			R1MaxPBR:  getEnvAsFloat("R1_MAX_PBR", 1.5),
			R1MinOPM:  getEnvAsFloat("R1_MIN_OPM", 0),
			R1MinEPS:  getEnvAsFloat("R1_MIN_EPS", 0),
			R1MinLots: getEnvAsFloat("R1_MIN_LOTS", 300),
		},

		Scheduler: SchedulerConfig{
			CrawlSchedule:       getEnv("CRAWL_SCHEDULE", "0 30 18 * * 1-5"),
			RecommendSchedule:   getEnv("RECOMMEND_SCHEDULE", "0 0 21 * * 1-5"),
			AggregateAfterCrawl: getEnvAsBool("AGGREGATE_AFTER_CRAWL", true),
		},

		API: APIConfig{
			Port: getEnv("PORT", "8089"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	if path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, fmt.Errorf("apply config file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	ranges := map[string]SleepRange{
		"TWSE":    c.Crawler.TWSESleep,
		"TPEx":    c.Crawler.TPExSleep,
		"MOPS":    c.Crawler.MOPSSleep,
		"overrun": c.Crawler.OverrunSleep,
	}
	for name, r := range ranges {
		if r.Min < 0 || r.Max < r.Min {
			return fmt.Errorf("%s sleep range is invalid: %s..%s", name, r.Min, r.Max)
		}
	}

	return nil
}

// Helper functions (private, only used within this package)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
		"backend/.env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
