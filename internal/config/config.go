package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port           string
	StorageDir     string
	MaxUploadBytes int64
	SweepInterval  time.Duration
	SweepMaxAge    time.Duration
	ManualSweepAge time.Duration
	DownloadGrace  time.Duration
	ConverterBin   string
	ConvertTimeout time.Duration
	AllowedOrigins []string
}

func LoadConfig() (Config, error) {
	cfg := Config{}

	cfg.Port = envOrDefault("PORT", "8080")
	cfg.StorageDir = envOrDefault("STORAGE_DIR", os.TempDir())
	cfg.ConverterBin = envOrDefault("CONVERTER_BIN", "soffice")

	maxUploadMB, err := parseIntEnv("MAX_UPLOAD_MB", 20)
	if err != nil {
		return Config{}, fmt.Errorf("parse MAX_UPLOAD_MB: %w", err)
	}
	cfg.MaxUploadBytes = maxUploadMB * 1024 * 1024

	sweepInterval, err := parseIntEnv("SWEEP_INTERVAL_SECONDS", 300)
	if err != nil {
		return Config{}, fmt.Errorf("parse SWEEP_INTERVAL_SECONDS: %w", err)
	}
	cfg.SweepInterval = time.Duration(sweepInterval) * time.Second

	sweepMaxAge, err := parseIntEnv("SWEEP_MAX_AGE_SECONDS", 3600)
	if err != nil {
		return Config{}, fmt.Errorf("parse SWEEP_MAX_AGE_SECONDS: %w", err)
	}
	cfg.SweepMaxAge = time.Duration(sweepMaxAge) * time.Second

	manualSweepAge, err := parseIntEnv("MANUAL_SWEEP_AGE_SECONDS", 1800)
	if err != nil {
		return Config{}, fmt.Errorf("parse MANUAL_SWEEP_AGE_SECONDS: %w", err)
	}
	cfg.ManualSweepAge = time.Duration(manualSweepAge) * time.Second

	downloadGrace, err := parseIntEnv("DOWNLOAD_GRACE_SECONDS", 30)
	if err != nil {
		return Config{}, fmt.Errorf("parse DOWNLOAD_GRACE_SECONDS: %w", err)
	}
	cfg.DownloadGrace = time.Duration(downloadGrace) * time.Second

	convertTimeout, err := parseIntEnv("CONVERT_TIMEOUT_SECONDS", 120)
	if err != nil {
		return Config{}, fmt.Errorf("parse CONVERT_TIMEOUT_SECONDS: %w", err)
	}
	cfg.ConvertTimeout = time.Duration(convertTimeout) * time.Second

	cfg.AllowedOrigins = splitEnvList("CORS_ORIGINS", []string{
		"http://localhost:5173",
		"http://localhost:8080",
	})

	absStorageDir, err := filepath.Abs(cfg.StorageDir)
	if err != nil {
		return Config{}, fmt.Errorf("resolve storage dir: %w", err)
	}
	cfg.StorageDir = absStorageDir

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func parseIntEnv(key string, fallback int64) (int64, error) {
	value := envOrDefault(key, "")
	if value == "" {
		return fallback, nil
	}

	num, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	return num, nil
}

func splitEnvList(key string, fallback []string) []string {
	raw := envOrDefault(key, "")
	if raw == "" {
		return fallback
	}

	parts := strings.Split(raw, ",")
	values := parts[:0]
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
