// Package config loads the environment/secret-store configuration
// spec §6 names (USER_ID, PASSWORD, PROXY_ADDR, DOH_URL, LOG_LEVEL,
// HOSTNAME, PORT, CONFIG), in the shape of the teacher's
// hub/executor.Parse/ApplyConfig, except the source is os.LookupEnv
// instead of an on-disk YAML file — there is no config file in this
// deployment model.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gofrs/uuid"

	"github.com/FarelRA/underpass/log"
)

// Route is one entry of the router's CONFIG JSON array (spec §4.6/§6):
// a path prefix and the backends eligible to serve it.
type Route struct {
	Path     string   `json:"path"`
	Backends []string `json:"backends"`
}

// Config is the fully-loaded, validated process configuration.
type Config struct {
	UserID    string
	Password  string
	ProxyAddr string
	DoHURL    string
	LogLevel  log.Level
	Hostname  string
	Port      int
	Routes    []Route
}

// Load reads and validates the configuration from the environment.
func Load() (*Config, error) {
	userID := strings.TrimSpace(os.Getenv("USER_ID"))
	if userID == "" {
		return nil, fmt.Errorf("config: USER_ID is required")
	}
	if _, err := uuid.FromString(userID); err != nil {
		return nil, fmt.Errorf("config: USER_ID is not a valid uuid: %w", err)
	}

	password := os.Getenv("PASSWORD")
	if password == "" {
		return nil, fmt.Errorf("config: PASSWORD is required")
	}

	cfg := &Config{
		UserID:    strings.ToLower(userID),
		Password:  password,
		ProxyAddr: os.Getenv("PROXY_ADDR"),
		DoHURL:    os.Getenv("DOH_URL"),
		LogLevel:  logLevelFromEnv(),
		Hostname:  os.Getenv("HOSTNAME"),
		Port:      8080,
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("config: PORT is not an integer: %w", err)
		}
		cfg.Port = port
	}

	if routesJSON := os.Getenv("CONFIG"); routesJSON != "" {
		var routes []Route
		if err := json.Unmarshal([]byte(routesJSON), &routes); err != nil {
			return nil, fmt.Errorf("config: CONFIG is not a valid route array: %w", err)
		}
		cfg.Routes = routes
	}

	return cfg, nil
}

func logLevelFromEnv() log.Level {
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case string(log.LevelError):
		return log.LevelError
	case string(log.LevelWarn):
		return log.LevelWarn
	case string(log.LevelDebug):
		return log.LevelDebug
	default:
		return log.LevelInfo
	}
}
