package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads .env files from the working directory and the user's
// config directories. Variables already present in the environment win.
func LoadEnvFiles() error {
	envPaths := []string{
		"./.env",
	}

	if home, err := os.UserHomeDir(); err == nil {
		envPaths = append(envPaths,
			filepath.Join(home, ".medtrack", ".env"),
			filepath.Join(home, ".config", "medtrack", ".env"),
		)
	}

	return loadEnvFiles(envPaths)
}

func loadEnvFiles(paths []string) error {
	var existing []string
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			existing = append(existing, path)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	return godotenv.Load(existing...)
}

func GetEnvWithFallback(keys ...string) string {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}

func GetEnvDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

var envAliases = map[string][]string{
	"MEDTRACK_STORAGE_DATA_DIR": {"MEDTRACK_DATA_DIR"},
	"MEDTRACK_SERVER_PORT":      {"PORT"},
	"MEDTRACK_LOGGING_LEVEL":    {"LOG_LEVEL"},
}

// ApplyEnvAliases copies well-known alias variables onto their canonical
// MEDTRACK_* names so viper's AutomaticEnv picks them up.
func ApplyEnvAliases() {
	for canonical := range envAliases {
		if os.Getenv(canonical) != "" {
			continue
		}
		if val := ResolveEnvWithAliases(canonical); val != "" {
			os.Setenv(canonical, val)
		}
	}
}

func ResolveEnvWithAliases(canonicalKey string) string {
	if val := os.Getenv(canonicalKey); val != "" {
		return val
	}

	if aliases, ok := envAliases[canonicalKey]; ok {
		for _, alias := range aliases {
			if val := os.Getenv(alias); val != "" {
				return val
			}
		}
	}

	return ""
}
