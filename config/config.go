package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Port        string
	Environment string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	MongoURI        string
	TelemetryDBPath string

	JWTSecret         string
	AdminUser         string
	AdminPasswordHash string

	CORSOrigins []string

	// Crawl settings. The listed venue is fetched one symbol-month per call,
	// the OTC venue one calendar day per call, so they carry separate delays.
	CrawlBegin         time.Time
	CutoffHour         int
	ListedDelay        time.Duration
	OTCDelay           time.Duration
	ConsumerTick       time.Duration
	EmptyRunLimit      int
	EmptyResultRetries int
	MaxJobRetries      int
	Cooldown           time.Duration

	AnalyticsTimeout time.Duration
}

var AppConfig *Config
var DB *gorm.DB

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	crawlBegin, err := time.Parse("2006-01-02", getEnv("CRAWL_BEGIN_DATE", "2022-06-01"))
	if err != nil {
		return nil, fmt.Errorf("invalid CRAWL_BEGIN_DATE: %w", err)
	}

	config := &Config{
		Port:        getEnv("PORT", "9218"),
		Environment: getEnv("ENVIRONMENT", "development"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "stock_searcher"),

		MongoURI:        getEnv("MONGODB_URI", ""),
		TelemetryDBPath: getEnv("TELEMETRY_DB_PATH", "data/telemetry.db"),

		JWTSecret:         getEnv("JWT_SECRET", "dev-secret"),
		AdminUser:         getEnv("ADMIN_USER", "admin"),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),

		CORSOrigins: []string{
			getEnv("FRONTEND_URL", "http://localhost:4200"),
			"http://localhost:9218",
		},

		CrawlBegin:         crawlBegin,
		CutoffHour:         getEnvInt("CRAWL_CUTOFF_HOUR", 15),
		ListedDelay:        time.Duration(getEnvInt("LISTED_DELAY_MS", 6000)) * time.Millisecond,
		OTCDelay:           time.Duration(getEnvInt("OTC_DELAY_MS", 3000)) * time.Millisecond,
		ConsumerTick:       time.Duration(getEnvInt("CONSUMER_TICK_MS", 10000)) * time.Millisecond,
		EmptyRunLimit:      getEnvInt("EMPTY_RUN_LIMIT", 36),
		EmptyResultRetries: getEnvInt("EMPTY_RESULT_RETRIES", 11),
		MaxJobRetries:      getEnvInt("MAX_JOB_RETRIES", 5),
		Cooldown:           time.Duration(getEnvInt("COOLDOWN_MINUTES", 60)) * time.Minute,

		AnalyticsTimeout: time.Duration(getEnvInt("ANALYTICS_TIMEOUT_SEC", 15)) * time.Second,
	}

	AppConfig = config
	return config, nil
}

// InitDB initializes database connection
func InitDB() (*gorm.DB, error) {
	log.Printf("Connecting to database: host=%s port=%s user=%s dbname=%s",
		maskHost(AppConfig.DBHost),
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBName,
	)

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=Asia/Taipei",
		AppConfig.DBHost,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBPort,
	)

	var logLevel logger.LogLevel
	if AppConfig.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})

	if err != nil {
		log.Printf("Database connection error: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection with ping
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Failed to get underlying database: %v", err)
		return nil, fmt.Errorf("failed to get database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		log.Printf("Database ping failed: %v", err)
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Printf("Database connection verified successfully")
	DB = db
	return db, nil
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}
