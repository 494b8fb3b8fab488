// Package config resolves server configuration from flags, falling
// back to environment variables, falling back to defaults.
package config

import (
	"errors"
	"flag"
	"os"
	"strconv"
)

type Config struct {
	Port   int
	DBPath string
}

// Parse validates flags and resolves the final configuration
func Parse(args []string) (Config, error) {
	var cfg Config

	fs := flag.NewFlagSet("pointdeck", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.DBPath, "d", "", "Analytics database path")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.Port == 0 {
		if portStr := os.Getenv("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return Config{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		} else {
			cfg.Port = 8080
		}
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, errors.New("port out of range")
	}

	if cfg.DBPath == "" {
		cfg.DBPath = os.Getenv("POINTDECK_DB_PATH")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./data/pointdeck.db"
	}

	return cfg, nil
}
