package app

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"library_circulation/circulation"
	"library_circulation/db"
)

// Config 从环境变量读取（可选 .env）
type Config struct {
	Store       string // postgres | memory
	DB          db.Options
	RedisAddr   string
	RedisPwd    string
	WebOrigin   string
	Port        string
	LogLevel    slog.Level
	Policy      circulation.Policy
	SweepEvery  time.Duration // 0 关闭后台巡检
	NotifyTTL   time.Duration
	NotifyQueue string
}

// LoadEnv loads .env when present; a missing file is not an error.
func LoadEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("load .env", slog.Any("error", err))
	}
}

func get(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func LoadConfig() (Config, error) {
	p := circulation.DefaultPolicy()
	var err error

	if p.DailyRate, err = getDecimal("FINE_DAILY_RATE", p.DailyRate); err != nil {
		return Config{}, err
	}
	if p.FineCeiling, err = getDecimal("FINE_CEILING", p.FineCeiling); err != nil {
		return Config{}, err
	}
	if p.MaxFinePerLoan, err = getDecimal("FINE_MAX_PER_LOAN", p.MaxFinePerLoan); err != nil {
		return Config{}, err
	}
	if p.MaxActiveLoans, err = getInt("MAX_ACTIVE_LOANS", p.MaxActiveLoans); err != nil {
		return Config{}, err
	}
	if p.LoanPeriod, err = getDays("LOAN_PERIOD_DAYS", p.LoanPeriod); err != nil {
		return Config{}, err
	}
	if p.MaxDueHorizon, err = getDays("MAX_DUE_DAYS", p.MaxDueHorizon); err != nil {
		return Config{}, err
	}
	if p.MaxRenewalHorizon, err = getDays("MAX_RENEWAL_DAYS", p.MaxRenewalHorizon); err != nil {
		return Config{}, err
	}
	if p.PickupWindow, err = getDays("PICKUP_WINDOW_DAYS", p.PickupWindow); err != nil {
		return Config{}, err
	}

	sweep, err := time.ParseDuration(get("SWEEP_INTERVAL", "15m"))
	if err != nil {
		return Config{}, fmt.Errorf("SWEEP_INTERVAL: %w", err)
	}
	notifyTTL, err := time.ParseDuration(get("NOTIFY_DEDUPE", "24h"))
	if err != nil {
		return Config{}, fmt.Errorf("NOTIFY_DEDUPE: %w", err)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(get("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	return Config{
		Store: strings.ToLower(get("STORE", "postgres")),
		DB: db.Options{
			DSN:      os.Getenv("DATABASE_URL"),
			Host:     get("DB_HOST", "127.0.0.1"),
			User:     get("DB_USER", "postgres"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     get("DB_NAME", "library"),
			Port:     get("DB_PORT", "5432"),
			SSLMode:  get("DB_SSLMODE", "disable"),
		},
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		RedisPwd:    os.Getenv("REDIS_PASSWORD"),
		WebOrigin:   get("WEB_ORIGIN", "http://localhost:5173"),
		Port:        get("PORT", "3001"),
		LogLevel:    level,
		Policy:      p,
		SweepEvery:  sweep,
		NotifyTTL:   notifyTTL,
		NotifyQueue: get("NOTIFY_QUEUE", "circulation:notifications"),
	}, nil
}

func getDecimal(k string, def decimal.Decimal) (decimal.Decimal, error) {
	v := get(k, "")
	if v == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", k, err)
	}
	if d.IsNegative() {
		return def, fmt.Errorf("%s: must not be negative", k)
	}
	return d, nil
}

func getInt(k string, def int) (int, error) {
	v := get(k, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", k, err)
	}
	if n <= 0 {
		return def, fmt.Errorf("%s: must be positive", k)
	}
	return n, nil
}

func getDays(k string, def time.Duration) (time.Duration, error) {
	n, err := getInt(k, int(def/(24*time.Hour)))
	if err != nil {
		return def, err
	}
	return time.Duration(n) * 24 * time.Hour, nil
}
