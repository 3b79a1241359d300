package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	ServerAddr    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	StoreBackend  string // "redis" or "memory"
	SweepInterval time.Duration
	StoreTimeout  time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		ServerAddr:    GetEnv("SERVER_ADDR", ":8080"),
		RedisAddr:     GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: GetEnv("REDIS_PASSWORD", ""),
		RedisDB:       GetEnvInt("REDIS_DB", 0),
		StoreBackend:  GetEnv("STORE_BACKEND", "redis"),
		SweepInterval: GetEnvDuration("SWEEP_INTERVAL", time.Second),
		StoreTimeout:  GetEnvDuration("STORE_TIMEOUT", 5*time.Second),
	}
}

// GetEnv returns the value of an environment variable or a default
func GetEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// GetEnvInt returns an integer environment variable or a default
func GetEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// GetEnvDuration returns a duration environment variable or a default
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
