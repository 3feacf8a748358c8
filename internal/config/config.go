// Package config provides configuration loading.
//
// Values are resolved in this order, later sources winning: built-in defaults,
// THREADSAUTO_* environment variables, the TOML config file, and the
// environment again so that env always overrides the file. Every value is
// stored as a string and normalized by the validator registered for its key.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dthanhvu03/threadsauto-sub000/internal/colors"
	"github.com/pelletier/go-toml/v2"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "THREADSAUTO_"
	// FileExtTOML is the file extension for TOML configuration files.
	FileExtTOML = ".toml"
)

var (
	config    map[string]string
	configMap map[string]string
	mu        sync.RWMutex
)

func init() {
	initValidators()
}

// Load initializes configuration.
func Load() {
	mu.Lock()
	defer mu.Unlock()

	config = make(map[string]string)
	configMap = make(map[string]string)

	setDefaults()
	loadFromEnv()
	loadFromFile()
	loadFromEnv()
	validate()
	computeDirs()
}

// reset clears loaded values so tests start from scratch.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	config = nil
	configMap = nil
}

func setDefaults() {
	home, _ := os.UserHomeDir()
	xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfigHome == "" {
		xdgConfigHome = filepath.Join(home, ".config")
	}
	xdgStateHome := os.Getenv("XDG_STATE_HOME")
	if xdgStateHome == "" {
		xdgStateHome = filepath.Join(home, ".local", "state")
	}

	setDefault("config_dir", filepath.Join(xdgConfigHome, "threadsauto"))
	setDefault("state_dir", filepath.Join(xdgStateHome, "threadsauto"))

	// Data source and transports.
	setDefault("api_base_url", "http://127.0.0.1:8080")
	setDefault("api_token", "")
	setDefault("api_timeout", "15s")
	setDefault("ws_url", "")
	setDefault("account_id", "")
	setDefault("push_events", "job.created,job.updated")
	setDefault("db_driver", "sqlite")
	setDefault("db_dsn", "")
	setDefault("listen_addr", "127.0.0.1:8080")
	setDefault("metrics_addr", "")

	// Controller tuning.
	setDefault("page_size", "20")
	setDefault("max_page_size", "200")
	setDefault("user_debounce", "500ms")
	setDefault("push_debounce", "5s")
	setDefault("rate_limit_backoff", "5s")
	setDefault("rate_limit_max_backoff", "30s")
	setDefault("transient_backoff", "1s")
	setDefault("location_grace", "300ms")
	setDefault("poll_interval", "30s")
	setDefault("poll_jitter", "0.2")
	setDefault("location_file", "")

	// Dev server mutation hooks.
	setDefault("hooks_dir", "")
	setDefault("hooks_failure_mode", "warn")
	setDefault("hooks_timeout", "30s")
	setDefault("hooks_max_async", "10")
	setDefault("rate_limit_every", "0")
	setDefault("status_format", "compact")

	setDefault("logging_enabled", "false")
	setDefault("logging_level", "info")
	setDefault("logging_max_files", "10")
	setDefault("debug", "false")
	setDefault("quiet", "false")
}

func setDefault(key, value string) {
	config[key] = value
	configMap[key] = value
}

func loadFromFile() {
	configPath := os.Getenv(EnvPrefix + "CONFIG_PATH")
	if configPath == "" {
		if configDir, ok := config["config_dir"]; ok {
			configPath = filepath.Join(configDir, "config"+FileExtTOML)
			if _, err := os.Stat(configPath); err != nil {
				configPath = ""
			}
		}
	}
	if configPath == "" {
		return
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		colors.Debug(fmt.Sprintf("unable to read config file %s: %v", configPath, err))
		return
	}
	if strings.ToLower(filepath.Ext(configPath)) != FileExtTOML {
		colors.Warning(fmt.Sprintf("unsupported config file extension: %s", configPath))
		return
	}

	var raw map[string]interface{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		colors.Warning(fmt.Sprintf("unable to parse config file %s: %v", configPath, err))
		return
	}

	for k, v := range raw {
		key := strings.ToLower(k)
		converted, ok := coerceConfigValue(v)
		if !ok {
			colors.Warning(fmt.Sprintf("unsupported config value type for %s: %T", key, v))
			continue
		}
		config[key] = converted
	}
}

// coerceConfigValue converts a TOML value to its string representation.
// Arrays of strings are joined with commas.
func coerceConfigValue(value interface{}) (string, bool) {
	switch typed := value.(type) {
	case string:
		return typed, true
	case int64:
		return strconv.FormatInt(typed, 10), true
	case int:
		return strconv.Itoa(typed), true
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(typed), true
	case []interface{}:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			s, ok := item.(string)
			if !ok {
				return "", false
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), true
	default:
		return "", false
	}
}

func loadFromEnv() {
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, EnvPrefix) {
			continue
		}
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(parts[0], EnvPrefix))
		if key == "config_path" {
			continue
		}
		config[key] = parts[1]
	}
}

func validate() {
	for key, value := range config {
		validator := getValidator(key)
		if validator == nil {
			continue
		}
		defaultValue := configMap[key]
		normalizedValue, err := validator(key, value, defaultValue)
		if err != nil {
			colors.Warning(fmt.Sprintf("validation error for %s: %v, using default: %s", key, err, defaultValue))
			config[key] = defaultValue
			continue
		}
		config[key] = normalizedValue
	}
}

// computeDirs derives paths that depend on other values.
func computeDirs() {
	if config["db_dsn"] == "" && config["db_driver"] == "sqlite" {
		if stateDir := config["state_dir"]; stateDir != "" {
			config["db_dsn"] = filepath.Join(stateDir, "jobs.db")
		}
	}
	if config["hooks_dir"] == "" {
		if configDir := config["config_dir"]; configDir != "" {
			config["hooks_dir"] = filepath.Join(configDir, "hooks")
		}
	}
}

// Get returns a configuration value or default.
func Get(key, defaultValue string) string {
	mu.RLock()
	defer mu.RUnlock()
	if val, ok := config[key]; ok {
		return val
	}
	return defaultValue
}

// GetInt returns a configuration value as integer, or default.
func GetInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(Get(key, ""))
	if err != nil {
		return defaultValue
	}
	return n
}

// GetFloat returns a configuration value as float, or default.
func GetFloat(key string, defaultValue float64) float64 {
	f, err := strconv.ParseFloat(Get(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return f
}

// GetBool returns a configuration value as boolean, or default.
func GetBool(key string, defaultValue bool) bool {
	switch strings.ToLower(Get(key, "")) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}

// GetDuration returns a configuration value as duration, or default.
func GetDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(Get(key, ""))
	if err != nil {
		return defaultValue
	}
	return d
}

// GetList returns a comma separated configuration value as a trimmed slice.
func GetList(key string) []string {
	raw := Get(key, "")
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
