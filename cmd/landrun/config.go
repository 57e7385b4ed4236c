//go:build linux

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// ErrDuplicateConfigFiles is returned when both .json and .jsonc config files exist.
var ErrDuplicateConfigFiles = errors.New("duplicate config files")

// Config holds the application configuration.
type Config struct {
	Env        []string         `json:"env,omitempty"`
	Filesystem FilesystemConfig `json:"filesystem"`
	Network    NetworkConfig    `json:"network"`

	// Resolved (not serialized)
	EffectiveCwd string `json:"-"`
}

// FilesystemConfig holds filesystem access rules, one list per access level.
type FilesystemConfig struct {
	Ro           []string `json:"ro,omitempty"`
	Rw           []string `json:"rw,omitempty"`
	Rox          []string `json:"rox,omitempty"`
	Rwx          []string `json:"rwx,omitempty"`
	Unrestricted *bool    `json:"unrestricted,omitempty"`
}

// NetworkConfig holds TCP port allowlists.
type NetworkConfig struct {
	BindTCP      []uint16 `json:"bindTcp,omitempty"`
	ConnectTCP   []uint16 `json:"connectTcp,omitempty"`
	Unrestricted *bool    `json:"unrestricted,omitempty"`
}

// DefaultConfig returns the default configuration: confine everything,
// allow nothing.
func DefaultConfig() Config {
	return Config{}
}

// LoadConfigInput holds the inputs for LoadConfig.
type LoadConfigInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // --config flag value
	Env             map[string]string // Environment variables (for XDG_CONFIG_HOME)
}

// LoadConfig loads configuration with the following precedence (later overrides earlier):
//  1. Built-in defaults
//  2. Global config: $XDG_CONFIG_HOME/landrun/config.json or config.jsonc
//     (defaults to ~/.config/landrun/) - always loaded if exists
//  3. Project config OR --config path (not both):
//     - Without --config: .landrun.json or .landrun.jsonc in workDir
//     - With --config: uses that path instead of project config
//
// Both .json and .jsonc files support comments via tailscale/hujson.
// If both .json and .jsonc exist at the same location, it's an error.
func LoadConfig(input LoadConfigInput) (Config, error) {
	// Resolve effective working directory
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	// Make workDir absolute
	if !filepath.IsAbs(workDir) {
		cwd, err := os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}

		workDir = filepath.Join(cwd, workDir)
	}

	// Start with defaults
	cfg := DefaultConfig()

	// Load global config (always loaded if exists)
	globalConfigBasePath, err := getUserConfigBasePath(input.Env)
	if err != nil {
		return Config{}, err
	}

	if globalConfigBasePath != "" {
		globalConfigPath, findErr := findConfigFile(globalConfigBasePath)
		if findErr == nil {
			globalCfg, loadErr := loadConfigFile(globalConfigPath)
			if loadErr != nil {
				// File exists but is invalid - this is an error
				return Config{}, loadErr
			}

			cfg = mergeConfigs(&cfg, &globalCfg)
		} else if !errors.Is(findErr, os.ErrNotExist) {
			// Error finding config (e.g., both .json and .jsonc exist)
			return Config{}, findErr
		}
		// If os.ErrNotExist, silently skip
	}

	// Load project config OR --config path (not both)
	if input.ConfigPath != "" {
		// Explicit --config path replaces project config
		configPath := input.ConfigPath
		if !filepath.IsAbs(configPath) {
			configPath = filepath.Join(workDir, configPath)
		}

		explicitCfg, err := loadConfigFile(configPath)
		if err != nil {
			return Config{}, err
		}

		cfg = mergeConfigs(&cfg, &explicitCfg)
	} else {
		// Load project config
		projectConfigBasePath := filepath.Join(workDir, ".landrun")

		projectConfigPath, findErr := findConfigFile(projectConfigBasePath)
		if findErr == nil {
			projectCfg, loadErr := loadConfigFile(projectConfigPath)
			if loadErr != nil {
				return Config{}, loadErr
			}

			cfg = mergeConfigs(&cfg, &projectCfg)
		} else if !errors.Is(findErr, os.ErrNotExist) {
			return Config{}, findErr
		}
		// If os.ErrNotExist, silently skip (project config is optional)
	}

	cfg.EffectiveCwd = workDir

	return cfg, nil
}

// findConfigFile finds a config file at the given base path (directory + base
// name without extension). It checks for both .json and .jsonc extensions and
// returns an error if both exist.
func findConfigFile(basePath string) (string, error) {
	jsonPath := basePath + ".json"
	jsoncPath := basePath + ".jsonc"

	jsonExists, jsonErr := fileExists(jsonPath)
	jsoncExists, jsoncErr := fileExists(jsoncPath)

	// Return errors that aren't "not found"
	if jsonErr != nil && !errors.Is(jsonErr, os.ErrNotExist) {
		return "", fmt.Errorf("checking %s: %w", jsonPath, jsonErr)
	}

	if jsoncErr != nil && !errors.Is(jsoncErr, os.ErrNotExist) {
		return "", fmt.Errorf("checking %s: %w", jsoncPath, jsoncErr)
	}

	if jsonExists && jsoncExists {
		return "", fmt.Errorf("%w: both %s and %s exist; remove one", ErrDuplicateConfigFiles, jsonPath, jsoncPath)
	}

	if jsonExists {
		return jsonPath, nil
	}

	if jsoncExists {
		return jsoncPath, nil
	}

	return "", os.ErrNotExist
}

// fileExists checks if a file exists and is not a directory.
// Returns (true, nil) if file exists, (false, nil) if not found,
// or (false, error) for other errors (e.g., permission denied).
func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("checking file %s: %w", path, err)
	}

	if info.IsDir() {
		return false, nil
	}

	return true, nil
}

// loadConfigFile loads and parses a JSON/JSONC config file.
// Both .json and .jsonc files support comments via hujson.
func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	// Standardize JSONC to JSON (handles comments in both .json and .jsonc)
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	var cfg Config

	err = json.Unmarshal(standardized, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// mergeConfigs merges override into base, with override taking precedence.
// Empty/zero values in override do not override base values.
func mergeConfigs(base, override *Config) Config {
	result := *base

	if len(override.Env) > 0 {
		result.Env = override.Env
	}

	// Merge filesystem config
	if len(override.Filesystem.Ro) > 0 {
		result.Filesystem.Ro = override.Filesystem.Ro
	}

	if len(override.Filesystem.Rw) > 0 {
		result.Filesystem.Rw = override.Filesystem.Rw
	}

	if len(override.Filesystem.Rox) > 0 {
		result.Filesystem.Rox = override.Filesystem.Rox
	}

	if len(override.Filesystem.Rwx) > 0 {
		result.Filesystem.Rwx = override.Filesystem.Rwx
	}

	if override.Filesystem.Unrestricted != nil {
		result.Filesystem.Unrestricted = override.Filesystem.Unrestricted
	}

	// Merge network config
	if len(override.Network.BindTCP) > 0 {
		result.Network.BindTCP = override.Network.BindTCP
	}

	if len(override.Network.ConnectTCP) > 0 {
		result.Network.ConnectTCP = override.Network.ConnectTCP
	}

	if override.Network.Unrestricted != nil {
		result.Network.Unrestricted = override.Network.Unrestricted
	}

	return result
}

// getUserConfigBasePath returns the user config base path (without extension).
// Uses env map for XDG_CONFIG_HOME instead of os.Getenv().
func getUserConfigBasePath(env map[string]string) (string, error) {
	if xdg, ok := env["XDG_CONFIG_HOME"]; ok && xdg != "" {
		return filepath.Join(xdg, "landrun", "config"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, ".config", "landrun", "config"), nil
}
