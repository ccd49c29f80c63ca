// file: meshd/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rskv-p/meshd/pkt"
)

// Config holds everything one mesh process needs to dial the Registry,
// announce itself, and connect to the broker.
type Config struct {
	ServiceName string `json:"service_name"`
	Version     string `json:"version"`
	ListenAddr  string `json:"listen_addr"`
	LogLevel    string `json:"log_level"`
	DevMode     bool   `json:"dev_mode"`

	RegistryAddr  string               `json:"registry_addr"`
	Dependencies  []pkt.Vendor         `json:"dependencies"`
	Subscriptions []pkt.SubscribeEvent `json:"subscriptions"`

	NATS NATSSettings `json:"nats"`
}

// NATSSettings configures the production Broker's connection to NATS,
// grounded on pubsub.NewNATSBroker's nats.Connect wiring.
type NATSSettings struct {
	URL            string        `json:"url"`
	MaxReconnects  int           `json:"max_reconnects"`
	ReconnectWait  time.Duration `json:"reconnect_wait"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
}

// Default returns a default config.
func Default() *Config {
	return &Config{
		ServiceName: "default",
		Version:     "1",
		ListenAddr:  "127.0.0.1:0",
		LogLevel:    "info",
		DevMode:     false,

		RegistryAddr: "127.0.0.1:4000",

		NATS: NATSSettings{
			URL:            "nats://127.0.0.1:4222",
			MaxReconnects:  10,
			ReconnectWait:  2 * time.Second,
			ConnectTimeout: 5 * time.Second,
		},
	}
}

// Load loads config from a JSON file, expanding ${ENV_VAR} references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	data = replaceEnvVars(data)

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config json: %w", err)
	}
	return &cfg, nil
}

// LoadFromEnv loads config from environment using prefix.
func LoadFromEnv(prefix string) *Config {
	cfg := Default()

	cfg.ServiceName = getenvStr(prefix+"SERVICE_NAME", cfg.ServiceName)
	cfg.Version = getenvStr(prefix+"VERSION", cfg.Version)
	cfg.ListenAddr = getenvStr(prefix+"LISTEN_ADDR", cfg.ListenAddr)
	cfg.LogLevel = getenvStr(prefix+"LOG_LEVEL", cfg.LogLevel)
	cfg.DevMode = getenvBool(prefix+"DEV_MODE", cfg.DevMode)

	cfg.RegistryAddr = getenvStr(prefix+"REGISTRY_ADDR", cfg.RegistryAddr)
	cfg.Dependencies = parseDependencies(getenvStr(prefix+"DEPENDENCIES", ""))
	cfg.Subscriptions = parseSubscriptions(getenvStr(prefix+"SUBSCRIPTIONS", ""))

	cfg.NATS.URL = getenvStr(prefix+"NATS_URL", cfg.NATS.URL)
	cfg.NATS.MaxReconnects = getenvInt(prefix+"NATS_MAX_RECONNECTS", cfg.NATS.MaxReconnects)

	return cfg
}

// parseDependencies parses a comma-separated "service:version,..." list
// into declared Vendor dependencies.
func parseDependencies(raw string) []pkt.Vendor {
	if raw == "" {
		return nil
	}
	var deps []pkt.Vendor
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
		if len(parts) != 2 || parts[0] == "" {
			continue
		}
		deps = append(deps, pkt.Vendor{Service: parts[0], Version: parts[1]})
	}
	return deps
}

// parseSubscriptions parses a comma-separated
// "service:version:endpoint:strategy,..." list into declared xsubscribe
// intents. Strategy is optional per entry and defaults to RANDOM via
// pkt.NormalizeStrategy.
func parseSubscriptions(raw string) []pkt.SubscribeEvent {
	if raw == "" {
		return nil
	}
	var events []pkt.SubscribeEvent
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 4)
		if len(parts) < 3 || parts[0] == "" || parts[2] == "" {
			continue
		}
		ev := pkt.SubscribeEvent{Service: parts[0], Version: parts[1], Endpoint: parts[2]}
		if len(parts) == 4 {
			ev.Strategy = pkt.Strategy(strings.ToUpper(parts[3]))
		}
		ev.Strategy = pkt.NormalizeStrategy(ev.Strategy)
		events = append(events, ev)
	}
	return events
}

// LoadWithFallback loads from MESH_CONFIG or env vars.
func LoadWithFallback() *Config {
	if path := os.Getenv("MESH_CONFIG"); path != "" {
		if cfg, err := Load(path); err == nil {
			return cfg
		}
	}
	return LoadFromEnv("MESH_")
}

// MustLoadFromEnv panics if config is invalid.
func MustLoadFromEnv() *Config {
	cfg := LoadWithFallback()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("invalid config: %v", err))
	}
	return cfg
}

// Validate checks config for required values.
func (cfg *Config) Validate() error {
	var missing []string
	if cfg.ServiceName == "" {
		missing = append(missing, "service_name")
	}
	if cfg.Version == "" {
		missing = append(missing, "version")
	}
	if cfg.RegistryAddr == "" {
		missing = append(missing, "registry_addr")
	}
	if cfg.LogLevel == "" {
		missing = append(missing, "log_level")
	}
	if len(missing) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (cfg *Config) String() string {
	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}

func (cfg *Config) Dump(w io.Writer) {
	data, _ := json.MarshalIndent(cfg, "", "  ")
	_, _ = w.Write(data)
}

// ----------------------------------------------------
// Env helpers
// ----------------------------------------------------

func getenvStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "1" || v == "true" || v == "yes"
	}
	return fallback
}

// replaceEnvVars replaces ${ENV_VAR} in JSON with values from os.Getenv
func replaceEnvVars(data []byte) []byte {
	s := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})
	return []byte(s)
}
