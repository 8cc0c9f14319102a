package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/rhuss/duplex/pkg/debug"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. Config file (explicit path, DUPLEX_CONFIG env, ./duplex.yaml,
//     ./duplex.toml, /etc/duplex/duplex.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
		debug.Log(debug.Config, "config file loaded", "path", filePath)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. DUPLEX_CONFIG environment variable
// 3. ./duplex.yaml, then ./duplex.toml in the current directory
// 4. /etc/duplex/duplex.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("DUPLEX_CONFIG"); envPath != "" {
		return envPath
	}
	for _, path := range []string{"duplex.yaml", "duplex.toml", "/etc/duplex/duplex.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadFile parses a config file into cfg, picking the syntax from the
// extension. Fields not present in the file retain their current values.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(data, cfg)
	case ".yaml", ".yml", "":
		return yaml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

// applyEnvOverrides maps DUPLEX_* environment variables to config fields.
// Malformed boolean or JSON values are errors rather than being ignored.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DUPLEX_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DUPLEX_PREFIX"); v != "" {
		cfg.Server.Prefix = v
	}
	if v := os.Getenv("DUPLEX_STRICT_PARAMS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DUPLEX_STRICT_PARAMS: %w", err)
		}
		cfg.Dispatch.StrictParams = b
	}
	if v := os.Getenv("DUPLEX_EXPOSE_ERRORS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DUPLEX_EXPOSE_ERRORS: %w", err)
		}
		cfg.Debug.ExposeErrors = b
	}
	if v := os.Getenv("DUPLEX_AUTH_TYPE"); v != "" {
		cfg.Auth.Type = v
	}

	if v := os.Getenv("DUPLEX_STORAGE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("DUPLEX_STORAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DUPLEX_STORAGE_SIZE: %w", err)
		}
		cfg.Storage.MaxSize = n
	}
	if v := os.Getenv("DUPLEX_POSTGRES_DSN"); v != "" {
		cfg.Storage.Postgres.DSN = v
	}

	// DUPLEX_API_KEYS: JSON array of API key entries.
	if v := os.Getenv("DUPLEX_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err != nil {
			return err
		}
		cfg.Auth.APIKeys = keys
	}
	return nil
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing DUPLEX_API_KEYS: %w", err)
	}
	return keys, nil
}

// resolveFileReferences reads _file fields and populates the corresponding
// value fields. An explicit value wins over its file reference.
func resolveFileReferences(cfg *Config) error {
	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		if k.KeyFile != "" && k.Key == "" {
			val, err := readSecretFile(k.KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			k.Key = val
		}
	}
	if pg := &cfg.Storage.Postgres; pg.DSNFile != "" && pg.DSN == "" {
		val, err := readSecretFile(pg.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		pg.DSN = val
	}
	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
