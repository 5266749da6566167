package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	people "github.com/mochi-os/people/sdk/golang"
)

// Environment variables that override the config file. A .env file in the
// working directory is loaded first.
const (
	envBaseURL = "PEOPLE_BASE_URL"
	envToken   = "PEOPLE_TOKEN"
	envAppPath = "PEOPLE_APP_PATH"
)

// applyEnv loads .env (if present) and overlays the environment on cfg.
func applyEnv(cfg *Config) {
	_ = godotenv.Load()
	if v := os.Getenv(envBaseURL); v != "" {
		cfg.Default.BaseURL = v
	}
	if v := os.Getenv(envToken); v != "" {
		cfg.Auth.Token = v
	}
	if v := os.Getenv(envAppPath); v != "" {
		cfg.Default.AppPath = v
	}
}

func clientOptions(cfg *Config) []people.ClientOption {
	var opts []people.ClientOption
	if cfg.Default.BaseURL != "" {
		opts = append(opts, people.WithBaseURL(cfg.Default.BaseURL))
	} else if cfg.Default.Environment != "" && cfg.Default.Environment != string(people.Production) {
		opts = append(opts, people.WithEnvironment(people.Environment(cfg.Default.Environment)))
	}
	if cfg.Default.AppPath != "" {
		opts = append(opts, people.WithAppPath(cfg.Default.AppPath))
	}
	if logger := newLogger(); logger != nil {
		opts = append(opts, people.WithLogger(logger), people.WithDevelopment(true))
	}
	return opts
}

// getClient creates a People client from the config file and environment.
func getClient() (*people.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyEnv(cfg)
	if cfg.Auth.Token == "" {
		return nil, fmt.Errorf("no token configured; run 'people init <token>' or set %s", envToken)
	}
	return people.NewClient(cfg.Auth.Token, clientOptions(cfg)...), nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// requestError turns a failed call into the CLI's error, naming any
// permission the backend asked for.
func requestError(err error) error {
	if pe, ok := people.AsPermissionError(err); ok {
		return fmt.Errorf("permission required: %s", pe.Permission)
	}
	if apiErr, ok := people.AsAPIError(err); ok {
		return fmt.Errorf("request failed: %s", apiErr)
	}
	return fmt.Errorf("request failed: %s", people.ErrorMessage(err, "unknown error"))
}

// maskToken shows the first 4 and last 4 characters of a token.
func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
