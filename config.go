package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/dnschanger/dnschanger/providers"
)

// Config holds all configuration options for dnschanger.
type Config struct {
	// Network settings
	Interface string `json:"interface"`

	// Behavior
	Verify bool `json:"verify"`

	// Logging
	LogLevel string `json:"logLevel"`

	// Control API
	EnableAPI  bool   `json:"enableApi"`
	APIAddr    string `json:"apiAddr"`
	SocketPath string `json:"socketPath"`

	// User-defined providers, offered after the built-in presets
	Providers []providers.Provider `json:"providers,omitempty"`

	// Source tracking (not in JSON)
	sources map[string]string `json:"-"`

	// Profile tracking (not in JSON)
	activeProfile string `json:"-"`
}

// fileConfig mirrors Config for decoding the JSON file. The booleans are
// pointers so an absent key is distinguishable from an explicit false.
type fileConfig struct {
	Interface  string               `json:"interface"`
	Verify     *bool                `json:"verify"`
	LogLevel   string               `json:"logLevel"`
	EnableAPI  *bool                `json:"enableApi"`
	APIAddr    string               `json:"apiAddr"`
	SocketPath string               `json:"socketPath"`
	Providers  []providers.Provider `json:"providers,omitempty"`
}

// ConfigSource tracks where each config value came from.
type ConfigSource string

const (
	SourceDefault ConfigSource = "default"
	SourceFile    ConfigSource = "file"
	SourceEnv     ConfigSource = "environment"
	SourceCLI     ConfigSource = "cli"
)

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	config := &Config{
		Interface:     "",
		Verify:        true,
		LogLevel:      "INFO",
		EnableAPI:     false,
		APIAddr:       "127.0.0.1:9453",
		SocketPath:    defaultSocketPath(),
		sources:       make(map[string]string),
		activeProfile: "default",
	}

	for _, key := range []string{"interface", "verify", "logLevel", "enableApi", "apiAddr", "socketPath"} {
		config.sources[key] = string(SourceDefault)
	}
	return config
}

func defaultSocketPath() string {
	if runtime.GOOS == "windows" {
		return `\\.\pipe\dnschanger`
	}
	return "/var/run/dnschanger.sock"
}

// configDir returns the config directory path.
func configDir() string {
	if dir := os.Getenv("DNSCHANGER_CONFIG_DIR"); dir != "" {
		return dir
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "dnschanger")
	case "windows":
		return filepath.Join(os.Getenv("PROGRAMDATA"), "dnschanger")
	default:
		return filepath.Join(os.Getenv("HOME"), ".config", "dnschanger")
	}
}

// configPath returns the path to the config file. A non-default profile
// uses config-{profile}.json.
func configPath(profile string) string {
	if file := os.Getenv("DNSCHANGER_CONFIG_FILE"); file != "" {
		return file
	}

	dir := configDir()
	if profile != "" && profile != "default" {
		return filepath.Join(dir, fmt.Sprintf("config-%s.json", profile))
	}
	return filepath.Join(dir, "config.json")
}

// LoadConfig loads configuration from file and env vars.
// Priority: CLI flags (applied by the caller) > env vars > config file >
// defaults.
func LoadConfig(profile string) (*Config, error) {
	if profile == "" {
		profile = os.Getenv("DNSCHANGER_PROFILE")
	}

	config := DefaultConfig()
	if profile != "" {
		config.activeProfile = profile
	}

	fromFile, err := loadConfigFromFile(profile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	if fromFile != nil {
		mergeConfigs(config, fromFile)
	}

	loadConfigFromEnv(config)
	return config, nil
}

// SaveConfig writes the config to the active profile's file.
func SaveConfig(config *Config) error {
	path := configPath(config.activeProfile)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func loadConfigFromFile(profile string) (*fileConfig, error) {
	data, err := os.ReadFile(configPath(profile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var config fileConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &config, nil
}

func mergeConfigs(dst *Config, src *fileConfig) {
	if src.Interface != "" {
		dst.Interface = src.Interface
		dst.sources["interface"] = string(SourceFile)
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
		dst.sources["logLevel"] = string(SourceFile)
	}
	if src.APIAddr != "" {
		dst.APIAddr = src.APIAddr
		dst.sources["apiAddr"] = string(SourceFile)
	}
	if src.SocketPath != "" {
		dst.SocketPath = src.SocketPath
		dst.sources["socketPath"] = string(SourceFile)
	}
	if src.EnableAPI != nil {
		dst.EnableAPI = *src.EnableAPI
		dst.sources["enableApi"] = string(SourceFile)
	}
	if src.Verify != nil {
		dst.Verify = *src.Verify
		dst.sources["verify"] = string(SourceFile)
	}
	if len(src.Providers) > 0 {
		dst.Providers = src.Providers
		dst.sources["providers"] = string(SourceFile)
	}
}

func loadConfigFromEnv(config *Config) {
	if val := os.Getenv("DNSCHANGER_INTERFACE"); val != "" {
		config.Interface = val
		config.sources["interface"] = string(SourceEnv)
	}
	if val := os.Getenv("DNSCHANGER_LOG_LEVEL"); val != "" {
		config.LogLevel = val
		config.sources["logLevel"] = string(SourceEnv)
	}
	if val := os.Getenv("DNSCHANGER_API_ADDR"); val != "" {
		config.APIAddr = val
		config.sources["apiAddr"] = string(SourceEnv)
	}
	if val := os.Getenv("DNSCHANGER_SOCKET_PATH"); val != "" {
		config.SocketPath = val
		config.sources["socketPath"] = string(SourceEnv)
	}
	if val := os.Getenv("DNSCHANGER_ENABLE_API"); val == "true" {
		config.EnableAPI = true
		config.sources["enableApi"] = string(SourceEnv)
	}
	if val := os.Getenv("DNSCHANGER_VERIFY"); val == "false" {
		config.Verify = false
		config.sources["verify"] = string(SourceEnv)
	}
}

// setFromCLI records a CLI override for source tracking.
func (c *Config) setFromCLI(key string) {
	c.sources[key] = string(SourceCLI)
}

// ShowConfig prints the effective configuration with the source of each
// value.
func (c *Config) ShowConfig() {
	fmt.Printf("Active profile: %s\n", c.activeProfile)
	fmt.Printf("Config file:    %s\n\n", configPath(c.activeProfile))

	rows := []struct {
		key   string
		value any
	}{
		{"interface", c.Interface},
		{"verify", c.Verify},
		{"logLevel", c.LogLevel},
		{"enableApi", c.EnableAPI},
		{"apiAddr", c.APIAddr},
		{"socketPath", c.SocketPath},
	}
	for _, row := range rows {
		source := c.sources[row.key]
		if source == "" {
			source = string(SourceDefault)
		}
		fmt.Printf("%-12s = %-25v (%s)\n", row.key, row.value, source)
	}

	if len(c.Providers) > 0 {
		fmt.Println("\nUser-defined providers:")
		for _, p := range c.Providers {
			fmt.Printf("  %-12s %v\n", p.Name, p.AddrStrings())
		}
	}
}

// ListProfiles lists all available configuration profiles.
func ListProfiles() ([]string, error) {
	entries, err := os.ReadDir(configDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []string{"default"}, nil
		}
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	profiles := []string{}
	hasDefault := false

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if name == "config.json" {
			hasDefault = true
		} else if profile, ok := cutProfileName(name); ok {
			profiles = append(profiles, profile)
		}
	}

	if hasDefault {
		profiles = append([]string{"default"}, profiles...)
	} else if len(profiles) == 0 {
		profiles = append(profiles, "default")
	}
	return profiles, nil
}

func cutProfileName(filename string) (string, bool) {
	const prefix, suffix = "config-", ".json"
	if len(filename) <= len(prefix)+len(suffix) {
		return "", false
	}
	if filename[:len(prefix)] != prefix || filename[len(filename)-len(suffix):] != suffix {
		return "", false
	}
	return filename[len(prefix) : len(filename)-len(suffix)], true
}
