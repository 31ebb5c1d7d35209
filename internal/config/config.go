package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Booking  BookingConfig
	LogLevel string
}

type ServerConfig struct {
	Host string
	Port int
}

type StorageConfig struct {
	Driver         string
	Timeout        time.Duration
	MaxRetries     int
	MigrateOnStart bool
}

type RedisConfig struct {
	// Addr is empty when redis is disabled.
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
	MaxConns int32
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Name, p.SSLMode,
	)
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type BookingConfig struct {
	Location        *time.Location
	AvailabilityTTL time.Duration
	RateLimit       int
	RateWindow      time.Duration
	IdempotencyTTL  time.Duration
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverPort, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host: stringEnv("SERVER_HOST", "localhost"),
		Port: serverPort,
	}

	storageCfg := StorageConfig{Driver: stringEnv("STORAGE_DRIVER", DriverPostgres)}
	if storageCfg.Driver != DriverPostgres && storageCfg.Driver != DriverMemory {
		return nil, fmt.Errorf("%s: invalid STORAGE_DRIVER %q", op, storageCfg.Driver)
	}

	if storageCfg.Timeout, err = durationEnv("STORAGE_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if storageCfg.MaxRetries, err = intEnv("STORAGE_MAX_RETRIES", 3); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if storageCfg.MigrateOnStart, err = boolEnv("MIGRATE_ON_START", true); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var postgresCfg PostgresConfig
	if storageCfg.Driver == DriverPostgres {
		if postgresCfg, err = postgresConfig(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	redisDB, err := intEnv("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	redisCfg := RedisConfig{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("%s: missing JWT_SECRET", op)
	}

	tokenTTL, err := durationEnv("JWT_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	bookingCfg, err := bookingConfig()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Config{
		Server:   serverCfg,
		Storage:  storageCfg,
		Postgres: postgresCfg,
		Redis:    redisCfg,
		Auth:     AuthConfig{JWTSecret: jwtSecret, TokenTTL: tokenTTL},
		Booking:  bookingCfg,
		LogLevel: stringEnv("LOG_LEVEL", "info"),
	}, nil
}

func postgresConfig() (PostgresConfig, error) {
	port, err := intEnv("POSTGRES_PORT", 5432)
	if err != nil {
		return PostgresConfig{}, err
	}

	maxConns, err := intEnv("POSTGRES_MAX_CONNS", 10)
	if err != nil {
		return PostgresConfig{}, err
	}

	cfg := PostgresConfig{
		User:     os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Name:     os.Getenv("POSTGRES_DB"),
		Host:     stringEnv("POSTGRES_HOST", "localhost"),
		Port:     port,
		SSLMode:  stringEnv("POSTGRES_SSLMODE", "disable"),
		MaxConns: int32(maxConns),
	}

	if cfg.User == "" {
		return PostgresConfig{}, fmt.Errorf("missing POSTGRES_USER")
	}

	if cfg.Password == "" {
		return PostgresConfig{}, fmt.Errorf("missing POSTGRES_PASSWORD")
	}

	if cfg.Name == "" {
		return PostgresConfig{}, fmt.Errorf("missing POSTGRES_DB")
	}

	return cfg, nil
}

func bookingConfig() (BookingConfig, error) {
	var (
		cfg BookingConfig
		err error
	)

	tz := stringEnv("APP_TIMEZONE", "UTC")
	if cfg.Location, err = time.LoadLocation(tz); err != nil {
		return BookingConfig{}, fmt.Errorf("invalid APP_TIMEZONE: %w", err)
	}

	if cfg.AvailabilityTTL, err = durationEnv("AVAILABILITY_TTL", 15*time.Second); err != nil {
		return BookingConfig{}, err
	}

	if cfg.RateLimit, err = intEnv("BOOKING_RATE_LIMIT", 10); err != nil {
		return BookingConfig{}, err
	}

	if cfg.RateWindow, err = durationEnv("BOOKING_RATE_WINDOW", time.Minute); err != nil {
		return BookingConfig{}, err
	}

	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", 2*time.Hour); err != nil {
		return BookingConfig{}, err
	}

	return cfg, nil
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}

func boolEnv(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}

	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}
