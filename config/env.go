package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
)

// ErrInvalidConfig is returned when an environment variable holds an unusable value.
var ErrInvalidConfig = errors.New("invalid configuration")

// Store backends.
const (
	BackendMemory = "memory"
	BackendMongo  = "mongo"
	BackendNATS   = "nats"
)

// Config holds every setting read from the environment.
type Config struct {
	Port string
	Env  string

	StoreBackend  string
	MongoURI      string
	MongoDatabase string
	NATSURL       string
	NATSBucket    string

	RedisAddress      string
	RedisPassword     string
	AssignQueuePrefix string
	AssignLimitPerDay int

	JWTSecret     string
	TokenTTL      time.Duration
	AdminEmail    string
	AdminPassword string

	ReconcilePolicy   string
	ReconcileInterval time.Duration

	CORSOrigins []string
	LogLevel    string
}

// IsProduction reports whether GO_ENV is production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Load reads a .env file if present and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	return FromEnv()
}

// FromEnv builds a Config from the process environment, applying defaults.
func FromEnv() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		Env:               getenv("GO_ENV", "development"),
		StoreBackend:      strings.ToLower(getenv("STORE_BACKEND", BackendMemory)),
		MongoURI:          os.Getenv("MONGODB_URI"),
		MongoDatabase:     getenv("MONGODB_DATABASE", "civicsync"),
		NATSURL:           getenv("NATS_URL", nats.DefaultURL),
		NATSBucket:        getenv("NATS_BUCKET", "civicsync"),
		RedisAddress:      os.Getenv("REDIS_ADDRESS"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		AssignQueuePrefix: getenv("REDIS_QUEUE_FOR_ASSIGN_LIMIT", "assign_limit"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		AdminEmail:        os.Getenv("ADMIN_EMAIL"),
		AdminPassword:     os.Getenv("ADMIN_PASSWORD"),
		ReconcilePolicy:   getenv("RECONCILE_POLICY", "report"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.AssignLimitPerDay, err = intEnv("ASSIGN_LIMIT_PER_DAY", 50); err != nil {
		return Config{}, err
	}
	if cfg.TokenTTL, err = durationEnv("TOKEN_TTL", 72*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.ReconcileInterval, err = durationEnv("RECONCILE_INTERVAL", 0); err != nil {
		return Config{}, err
	}

	for _, origin := range strings.Split(os.Getenv("CORS_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the settings every command needs.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendNATS:
	case BackendMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("%w: please define the MONGODB_URI environment variable", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: STORE_BACKEND must be memory, mongo or nats, got %q", ErrInvalidConfig, c.StoreBackend)
	}

	if c.AssignLimitPerDay <= 0 {
		return fmt.Errorf("%w: ASSIGN_LIMIT_PER_DAY must be positive", ErrInvalidConfig)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("%w: TOKEN_TTL must be positive", ErrInvalidConfig)
	}
	if c.ReconcileInterval < 0 {
		return fmt.Errorf("%w: RECONCILE_INTERVAL must not be negative", ErrInvalidConfig)
	}

	return nil
}

// ValidateServer checks the additional settings the HTTP server needs.
func (c Config) ValidateServer() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("%w: JWT_SECRET environment variable is not set", ErrInvalidConfig)
	}
	if c.AdminEmail == "" || c.AdminPassword == "" {
		return fmt.Errorf("%w: ADMIN_EMAIL and ADMIN_PASSWORD must be set", ErrInvalidConfig)
	}

	return nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}

	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}

	return n, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}

	return d, nil
}
