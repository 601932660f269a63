// Package config loads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the service settings. LLM provider settings live in
// llm.ConfigFromEnv.
type Config struct {
	// DBPath is the SQLite file. Empty means store.DefaultDBPath.
	DBPath string

	HTTPAddr    string
	CORSOrigins []string

	DefaultTimeLimit time.Duration
	DifficultyWindow int
	GeneratorTimeout time.Duration
	NarratorTimeout  time.Duration
	Narrator         bool

	// Retention is how long completed sessions stay in memory. Zero keeps
	// them until restart.
	Retention     time.Duration
	SweepInterval time.Duration

	// AMQPURL enables the RabbitMQ event publisher when set.
	AMQPURL      string
	AMQPExchange string

	// ArchiveDSN enables the PostgreSQL result archive when set.
	ArchiveDSN string

	// Seed fixes the question shuffle. Zero seeds from the clock.
	Seed int64

	LogLevel slog.Level
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		HTTPAddr:         ":8080",
		CORSOrigins:      []string{"*"},
		DefaultTimeLimit: 30 * time.Minute,
		DifficultyWindow: 3,
		GeneratorTimeout: 20 * time.Second,
		NarratorTimeout:  10 * time.Second,
		Narrator:         true,
		Retention:        24 * time.Hour,
		SweepInterval:    15 * time.Second,
		AMQPExchange:     "adaptiq.sessions",
		LogLevel:         slog.LevelInfo,
	}
}

// Load reads the .env files (missing files are ignored) and overlays
// ADAPTIQ_* variables on the defaults. Variables already set in the
// environment win over .env values.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv overlays ADAPTIQ_* variables on the defaults.
func FromEnv() (Config, error) {
	cfg := Default()
	var errs []string

	str := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	dur := func(dst *time.Duration, key string) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d < 0 {
				errs = append(errs, fmt.Sprintf("%s=%q is not a duration", key, v))
				return
			}
			*dst = d
		}
	}
	num := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				errs = append(errs, fmt.Sprintf("%s=%q is not a positive integer", key, v))
				return
			}
			*dst = n
		}
	}

	str(&cfg.DBPath, "ADAPTIQ_DB")
	str(&cfg.HTTPAddr, "ADAPTIQ_HTTP_ADDR")
	str(&cfg.AMQPURL, "ADAPTIQ_AMQP_URL")
	str(&cfg.AMQPExchange, "ADAPTIQ_AMQP_EXCHANGE")
	str(&cfg.ArchiveDSN, "ADAPTIQ_ARCHIVE_DSN")
	dur(&cfg.DefaultTimeLimit, "ADAPTIQ_DEFAULT_TIME_LIMIT")
	dur(&cfg.GeneratorTimeout, "ADAPTIQ_GENERATOR_TIMEOUT")
	dur(&cfg.NarratorTimeout, "ADAPTIQ_NARRATOR_TIMEOUT")
	dur(&cfg.Retention, "ADAPTIQ_RETENTION")
	dur(&cfg.SweepInterval, "ADAPTIQ_SWEEP_INTERVAL")
	num(&cfg.DifficultyWindow, "ADAPTIQ_DIFFICULTY_WINDOW")

	if v := os.Getenv("ADAPTIQ_CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("ADAPTIQ_NARRATOR"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("ADAPTIQ_NARRATOR=%q is not a boolean", v))
		} else {
			cfg.Narrator = b
		}
	}
	if v := os.Getenv("ADAPTIQ_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("ADAPTIQ_SEED=%q is not an integer", v))
		} else {
			cfg.Seed = n
		}
	}
	if v := os.Getenv("ADAPTIQ_LOG_LEVEL"); v != "" {
		lvl, err := ParseLevel(v)
		if err != nil {
			errs = append(errs, err.Error())
		} else {
			cfg.LogLevel = lvl
		}
	}

	if len(errs) > 0 {
		return cfg, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// ParseLevel accepts debug, info, warn and error in any case.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
