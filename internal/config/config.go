// Package config loads runtime configuration from an optional YAML
// file overlaid with environment variables, env taking precedence.
// Grounded on cmd/main.go's getEnv/getEnvInt helpers, generalized from
// inline os.Getenv calls scattered through main into one struct loaded
// once at startup.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds every value cmd/pluginrtd needs to start the runtime.
type Config struct {
	AgentID         string                 `yaml:"agentId"`
	HTTPAddr        string                 `yaml:"httpAddr"`
	WSAddr          string                 `yaml:"wsAddr"`
	ShutdownTimeout int                    `yaml:"shutdownTimeoutSeconds"`
	LogLevel        string                 `yaml:"logLevel"`
	RedisAddr       string                 `yaml:"redisAddr"`
	NATSURL         string                 `yaml:"natsUrl"`
	Plugins         map[string]PluginEntry `yaml:"plugins"`
}

// PluginEntry supplies one registered plugin's initial config and
// context, keyed by name under the top-level plugins map. Only
// available via the YAML file — there is no per-plugin env-var form.
type PluginEntry struct {
	Config  map[string]any `yaml:"config"`
	Context map[string]any `yaml:"context"`
}

// PluginConfig returns the initial config given to a named plugin at
// AddPlugin time, or nil if none was supplied.
func (c Config) PluginConfig(name string) map[string]any {
	return c.Plugins[name].Config
}

// PluginContext returns the initial context given to a named plugin at
// AddPlugin time, or nil if none was supplied.
func (c Config) PluginContext(name string) map[string]any {
	return c.Plugins[name].Context
}

// Default returns the built-in fallback configuration, used as the base
// that a YAML file and environment variables overlay in turn.
func Default() Config {
	return Config{
		AgentID:         "pluginrt",
		HTTPAddr:        ":8080",
		WSAddr:          ":8081",
		ShutdownTimeout: 15,
		LogLevel:        "info",
		RedisAddr:       "",
		NATSURL:         "",
	}
}

// Load builds a Config by starting from Default, overlaying yamlPath's
// contents if non-empty and readable, then overlaying environment
// variables. A missing yamlPath is not an error — it is a supported way
// to run on environment variables alone.
func Load(yamlPath string) (Config, error) {
	cfg := Default()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err == nil {
			if uerr := yaml.Unmarshal(data, &cfg); uerr != nil {
				return Config{}, uerr
			}
		}
	}

	cfg.AgentID = getEnv("PLUGINRT_AGENT_ID", cfg.AgentID)
	cfg.HTTPAddr = getEnv("PLUGINRT_HTTP_ADDR", cfg.HTTPAddr)
	cfg.WSAddr = getEnv("PLUGINRT_WS_ADDR", cfg.WSAddr)
	cfg.ShutdownTimeout = getEnvInt("PLUGINRT_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.LogLevel = getEnv("PLUGINRT_LOG_LEVEL", cfg.LogLevel)
	cfg.RedisAddr = getEnv("PLUGINRT_REDIS_ADDR", cfg.RedisAddr)
	cfg.NATSURL = getEnv("PLUGINRT_NATS_URL", cfg.NATSURL)

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
