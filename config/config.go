package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Server   ServerConfig
	Logger   LoggerConfig
	Postgres PostgresConfig
	JWT      JWTConfig
	Backend  BackendConfig
	POS      POSConfig
}

type ServerConfig struct {
	AppEnv       string
	Port         string
	CORSOrigins  string
	CheckoutWait time.Duration
}

type LoggerConfig struct {
	Level             string
	Encoding          string
	DisableCaller     bool
	DisableStacktrace bool
}

type PostgresConfig struct {
	// URL wins over the individual fields when set.
	URL             string
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogSQL          bool
}

type JWTConfig struct {
	SecretKey string
	TTL       time.Duration
}

type BackendConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type POSConfig struct {
	SessionKey            string
	Store                 string
	ScanGap               time.Duration
	MinBarcodeLength      int
	ClampRestoredQuantity bool
	StoreTimeout          time.Duration
}

func LoadEnv() *Config {
	return &Config{
		Server: ServerConfig{
			AppEnv:       getEnv("APP_ENV", "development"),
			Port:         getEnv("PORT", "3000"),
			CORSOrigins:  getEnv("CORS_ORIGINS", "*"),
			CheckoutWait: getEnvMillis("CHECKOUT_WAIT_MS", 3000),
		},
		Logger: LoggerConfig{
			Level:             getEnv("LOGGER_LEVEL", "info"),
			Encoding:          getEnv("LOGGER_ENCODING", "console"),
			DisableCaller:     getEnvBool("LOGGER_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOGGER_DISABLE_STACKTRACE", true),
		},
		Postgres: PostgresConfig{
			URL:             getEnv("DATABASE_URL", ""),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			DBName:          getEnv("DB_NAME", "pos"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME", 3600)) * time.Second,
			LogSQL:          getEnvBool("DB_LOG_SQL", false),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET", "your-super-secret-key-change-in-production"),
			TTL:       time.Duration(getEnvInt("JWT_TTL_HOURS", 24)) * time.Hour,
		},
		Backend: BackendConfig{
			BaseURL: getEnv("BACKEND_BASE_URL", "http://localhost:8080/api"),
			Token:   getEnv("BACKEND_TOKEN", ""),
			Timeout: getEnvMillis("BACKEND_TIMEOUT_MS", 10000),
		},
		POS: POSConfig{
			SessionKey:            getEnv("POS_SESSION_KEY", "pos_cart"),
			Store:                 strings.ToLower(getEnv("POS_STORE", StorePostgres)),
			ScanGap:               getEnvMillis("POS_SCAN_GAP_MS", 50),
			MinBarcodeLength:      getEnvInt("POS_MIN_BARCODE_LENGTH", 3),
			ClampRestoredQuantity: getEnvBool("POS_CLAMP_RESTORED_QUANTITY", true),
			StoreTimeout:          getEnvMillis("POS_STORE_TIMEOUT_MS", 5000),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvMillis(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Millisecond
}
