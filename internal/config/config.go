package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Classifier ClassifierConfig
	Storage    StorageConfig
	Spike      SpikeConfig
}

type ServerConfig struct {
	Port         string
	Mode         string
	AllowOrigins []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Driver          string // postgres or mysql
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// ClassifierConfig selects the labelling backend used during ingestion.
type ClassifierConfig struct {
	Backend     string // http or gemini
	URL         string
	Timeout     time.Duration
	GeminiModel string
	// RatePerSecond caps outgoing classifier calls. Zero disables the limit.
	RatePerSecond float64
}

type StorageConfig struct {
	LogoBucket      string
	CredentialsFile string
}

type SpikeConfig struct {
	HistoryLimit int
	Threshold    float64
	HourWindow   int
	TimeWeight   float64
}

// Load reads the configuration from the environment. Call godotenv.Load first
// when a .env file should be honoured.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Mode:         getEnv("GIN_MODE", "debug"),
			AllowOrigins: getList("CORS_ALLOW_ORIGINS", []string{"http://localhost:3000"}),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 2*time.Minute),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "postgres"),
			DSN:             getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=carbonwatch port=5432 sslmode=disable"),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 50),
			ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		},
		Classifier: ClassifierConfig{
			Backend:       getEnv("CLASSIFIER_BACKEND", "http"),
			URL:           getEnv("CLASSIFIER_URL", "http://localhost:5000"),
			Timeout:       getDuration("CLASSIFIER_TIMEOUT", 30*time.Second),
			GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			RatePerSecond: getFloat("CLASSIFIER_RATE_PER_SECOND", 0),
		},
		Storage: StorageConfig{
			LogoBucket:      os.Getenv("LOGO_BUCKET"),
			CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		},
		Spike: SpikeConfig{
			HistoryLimit: getInt("SPIKE_HISTORY_LIMIT", 10),
			Threshold:    getFloat("SPIKE_THRESHOLD", 2.5),
			HourWindow:   getInt("SPIKE_HOUR_WINDOW", 3),
			TimeWeight:   getFloat("SPIKE_TIME_WEIGHT", 1.5),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getList(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
