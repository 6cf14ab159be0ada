package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL string
	Port        string
	JWTSecret   string
	OTPSalt     string
	DevMode     bool
	LogLevel    int

	// OTP challenge lifetime
	OTPTTL time.Duration

	// Due-task scheduler
	SchedulerInterval time.Duration
	SchedulerBatch    int
	SchedulerTZ       *time.Location

	// Outbound email (OTP dispatch)
	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	// Push gateway
	PushEndpoint string
	PushAPIKey   string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port: "8080", // default port
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	cfg.DatabaseURL = databaseURL

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	cfg.JWTSecret = jwtSecret

	otpSalt := os.Getenv("OTP_SALT")
	if otpSalt == "" {
		return nil, fmt.Errorf("OTP_SALT environment variable is required")
	}
	cfg.OTPSalt = otpSalt

	cfg.DevMode = os.Getenv("DEV_MODE") == "true"

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		n, err := strconv.Atoi(lvl)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", lvl, err)
		}
		cfg.LogLevel = n
	}

	ttlMin, err := intEnv("OTP_TTL_MIN", 10)
	if err != nil {
		return nil, err
	}
	cfg.OTPTTL = time.Duration(ttlMin) * time.Minute

	intervalSec, err := intEnv("SCHEDULER_INTERVAL_SEC", 60)
	if err != nil {
		return nil, err
	}
	if intervalSec <= 0 {
		return nil, fmt.Errorf("SCHEDULER_INTERVAL_SEC must be positive, got %d", intervalSec)
	}
	cfg.SchedulerInterval = time.Duration(intervalSec) * time.Second

	batch, err := intEnv("SCHEDULER_BATCH_SIZE", 100)
	if err != nil {
		return nil, err
	}
	if batch <= 0 {
		return nil, fmt.Errorf("SCHEDULER_BATCH_SIZE must be positive, got %d", batch)
	}
	cfg.SchedulerBatch = batch

	tzName := os.Getenv("SCHEDULER_TZ")
	if tzName == "" {
		tzName = "UTC"
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_TZ %q: %w", tzName, err)
	}
	cfg.SchedulerTZ = loc

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.SMTPPort = os.Getenv("SMTP_PORT")
	if cfg.SMTPPort == "" {
		cfg.SMTPPort = "587"
	}
	cfg.SMTPUser = os.Getenv("SMTP_USER")
	cfg.SMTPPass = os.Getenv("SMTP_PASS")
	cfg.SMTPFrom = os.Getenv("SMTP_FROM")
	if cfg.SMTPFrom == "" {
		cfg.SMTPFrom = cfg.SMTPUser
	}

	cfg.PushEndpoint = os.Getenv("PUSH_ENDPOINT")
	cfg.PushAPIKey = os.Getenv("PUSH_API_KEY")

	return cfg, nil
}

// intEnv reads an integer environment variable with a default.
func intEnv(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return n, nil
}
