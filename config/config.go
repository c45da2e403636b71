package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"mailsprint/models"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	DB        *gorm.DB
	AppConfig Config
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type Config struct {
	Environment   string `json:"environment"`
	ServerPort    string `json:"server_port"`
	EncryptionKey string `json:"-"`
	APIJWTSecret  string `json:"-"`

	// Database. Driver is "postgres" or "sqlite"; sqlite keeps the
	// whole deployment on a single box the way the original did.
	DBDriver       string `json:"db_driver"`
	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	SQLitePath     string `json:"sqlite_path"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	// Send window state files
	ControlsPath string `json:"controls_path"`
	CountersPath string `json:"counters_path"`

	// Sequence definitions
	SequencesPath string `json:"sequences_path"`

	// Counter backend; when Redis is enabled quota counters live there
	// instead of the counters file
	Redis RedisConfig `json:"redis"`

	// Content generation
	OpenAIAPIKey string `json:"-"`
	OpenAIModel  string `json:"openai_model"`

	// Scheduling
	TickSchedule      string `json:"tick_schedule"`
	ReplyPollInterval int    `json:"reply_poll_interval_minutes"`

	// LiveArmed must be explicitly set (SEQ_RUNNER_LIVE=YES) for any
	// live send to happen, anywhere. Absence is a hard refusal.
	LiveArmed bool `json:"live_armed"`

	// Dispatcher pacing (seconds)
	SendInterval int `json:"send_interval_seconds"`
	SendJitter   int `json:"send_jitter_seconds"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:   getEnv("ENVIRONMENT", "development"),
		ServerPort:    getEnv("SERVER_PORT", "5000"),
		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		APIJWTSecret:  getEnv("API_JWT_SECRET", ""),

		DBDriver:       getEnv("DB_DRIVER", "sqlite"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "mailsprint"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		SQLitePath:     getEnv("SQLITE_PATH", "mailsprint.db"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		ControlsPath:  getEnv("CONTROLS_PATH", "followup_controls.json"),
		CountersPath:  getEnv("COUNTERS_PATH", "followup_counters.json"),
		SequencesPath: getEnv("SEQUENCES_PATH", "sequences.yml"),

		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ENABLED", "false") == "true",
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		TickSchedule:      getEnv("TICK_SCHEDULE", "*/10 * * * *"),
		ReplyPollInterval: getEnvAsInt("REPLY_POLL_INTERVAL_MINUTES", 5),

		LiveArmed: getEnv("SEQ_RUNNER_LIVE", "") == "YES",

		SendInterval: getEnvAsInt("SEND_INTERVAL_SECONDS", 120),
		SendJitter:   getEnvAsInt("SEND_JITTER_SECONDS", 20),
	}

	// Validate required configurations
	if AppConfig.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if len(AppConfig.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(AppConfig.EncryptionKey))
	}
	if AppConfig.DBDriver == "postgres" && AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required when DB_DRIVER=postgres")
	}
	if AppConfig.Environment == "production" && AppConfig.APIJWTSecret == "" {
		return fmt.Errorf("API_JWT_SECRET is required in production")
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	var dialector gorm.Dialector
	switch AppConfig.DBDriver {
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			AppConfig.DBHost,
			AppConfig.DBPort,
			AppConfig.DBUser,
			AppConfig.DBPassword,
			AppConfig.DBName,
			AppConfig.DBSSLMode,
		)
		log.Println("Using connection string:", maskPassword(dsn))
		dialector = postgres.Open(dsn)
	case "sqlite":
		log.Println("Using sqlite database:", AppConfig.SQLitePath)
		dialector = sqlite.Open(AppConfig.SQLitePath)
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", AppConfig.DBDriver)
	}

	var err error
	DB, err = gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("Successfully connected to the database")
	log.Println("Starting database migration...")
	if err := MigrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("Database migration completed")
	return nil
}

// MigrateDB runs auto-migration for every persisted model.
func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Lead{},
		&models.LeadCustomField{},
		&models.Sender{},
		&models.SequencePointer{},
		&models.SendRecord{},
		&models.SendActivity{},
	)
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s (%s)", AppConfig.DBDriver, AppConfig.DBName)
	log.Printf("Controls: %s | Counters: %s | Sequences: %s",
		AppConfig.ControlsPath,
		AppConfig.CountersPath,
		AppConfig.SequencesPath)
	log.Printf("Redis counters: %t | LLM rendering: %t | Live armed: %t",
		AppConfig.Redis.Enabled,
		AppConfig.OpenAIAPIKey != "",
		AppConfig.LiveArmed)
}
