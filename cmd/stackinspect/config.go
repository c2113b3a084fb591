package main

import (
	"fmt"
	"os"
	"strings"
)

// config is read from the environment.
type config struct {
	Store        string
	MySQLDSN     string
	RedisURL     string
	ListenAddr   string
	LogFormat    string
	LogLevel     string
	JWTSecret    string
	AllowOrigins []string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

func loadConfig() (config, error) {
	cfg := config{
		Store:      getenv("STACK_STORE", "memory"),
		MySQLDSN:   os.Getenv("MYSQL_DSN"),
		RedisURL:   getenv("REDIS_URL", "redis://localhost:6379/0"),
		ListenAddr: getenv("LISTEN_ADDR", ":8080"),
		LogFormat:  getenv("LOG_FORMAT", "tint"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		JWTSecret:  os.Getenv("JWT_SECRET"),
	}

	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowOrigins = append(cfg.AllowOrigins, o)
			}
		}
	}

	switch cfg.Store {
	case "memory", "redis":
	case "mysql":
		if cfg.MySQLDSN == "" {
			return cfg, fmt.Errorf("missing env MYSQL_DSN for STACK_STORE=mysql")
		}
	default:
		return cfg, fmt.Errorf("unknown STACK_STORE %q (memory, mysql, redis)", cfg.Store)
	}

	return cfg, nil
}
