package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config aggregates every setting of the relay process.
type Config struct {
	Server ServerConfig `toml:"server"`
	Relay  RelayConfig  `toml:"relay"`
	Redis  RedisConfig  `toml:"redis"`
	NATS   NATSConfig   `toml:"nats"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr      string   `toml:"addr"`
	Env       string   `toml:"env"`
	CORSAllow []string `toml:"cors_allow"`
}

// RelayConfig tunes room and connection behaviour.
type RelayConfig struct {
	HistoryLimit    int           `toml:"history_limit"`
	BacklogLimit    int           `toml:"backlog_limit"`
	ReapInterval    time.Duration `toml:"reap_interval"`
	RoomRetention   time.Duration `toml:"room_retention"`
	SendBuffer      int           `toml:"send_buffer"`
	MaxMessageBytes int64         `toml:"max_message_bytes"`
	EchoSender      bool          `toml:"echo_sender"`
	// MessageRate caps gesture, chat and signal frames per second per
	// session. Zero disables the limiter.
	MessageRate     float64       `toml:"message_rate"`
	MessageBurst    int           `toml:"message_burst"`
	StatsInterval   time.Duration `toml:"stats_interval"`
}

// RedisConfig enables the cross-instance bus when Addr is set.
type RedisConfig struct {
	Addr          string `toml:"addr"`
	DB            int    `toml:"db"`
	ChannelPrefix string `toml:"channel_prefix"`
}

// Enabled reports whether a redis server was configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// NATSConfig enables the NATS bus when URL is set.
type NATSConfig struct {
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
}

func (c NATSConfig) Enabled() bool { return c.URL != "" }

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:      ":8080",
			Env:       "dev",
			CORSAllow: []string{"*"},
		},
		Relay: RelayConfig{
			HistoryLimit:    100,
			BacklogLimit:    20,
			ReapInterval:    30 * time.Minute,
			RoomRetention:   2 * time.Hour,
			SendBuffer:      64,
			MaxMessageBytes: 4096,
			EchoSender:      true,
			MessageBurst:    60,
			StatsInterval:   5 * time.Second,
		},
		Redis: RedisConfig{
			ChannelPrefix: "wavy:room:",
		},
		NATS: NATSConfig{
			Subject: "wavy.rooms",
		},
	}
}

// Load builds the configuration from defaults, an optional TOML file named by
// CONFIG_FILE, and finally environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if err := applyServerEnv(&cfg.Server); err != nil {
		return nil, err
	}
	if err := applyRelayEnv(&cfg.Relay); err != nil {
		return nil, err
	}
	if err := applyRedisEnv(&cfg.Redis); err != nil {
		return nil, err
	}
	cfg.NATS.URL = getEnvOrDefault("NATS_URL", cfg.NATS.URL)
	cfg.NATS.Subject = getEnvOrDefault("NATS_SUBJECT", cfg.NATS.Subject)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) validate() error {
	r := c.Relay
	switch {
	case r.HistoryLimit < 1:
		return fmt.Errorf("history limit must be positive, got %d", r.HistoryLimit)
	case r.BacklogLimit < 0 || r.BacklogLimit > r.HistoryLimit:
		return fmt.Errorf("backlog limit %d must be between 0 and history limit %d", r.BacklogLimit, r.HistoryLimit)
	case r.SendBuffer < 1:
		return fmt.Errorf("send buffer must be positive, got %d", r.SendBuffer)
	case r.MessageRate < 0:
		return fmt.Errorf("message rate must not be negative, got %v", r.MessageRate)
	case c.Redis.Enabled() && c.NATS.Enabled():
		return fmt.Errorf("REDIS_ADDR and NATS_URL are mutually exclusive")
	}
	return nil
}

func applyServerEnv(s *ServerConfig) error {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		addr, err := parseAddr(port)
		if err != nil {
			return err
		}
		s.Addr = addr
	}
	s.Env = getEnvOrDefault("APP_ENV", s.Env)
	if allow := strings.TrimSpace(os.Getenv("CORS_ALLOW")); allow != "" {
		s.CORSAllow = splitCSV(allow)
	}
	return nil
}

// parseAddr accepts "8080", ":8080" or "127.0.0.1:8080".
func parseAddr(port string) (string, error) {
	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}
	if strings.Contains(port, ":") {
		return port, nil
	}
	return ":" + port, nil
}

func applyRelayEnv(r *RelayConfig) error {
	var err error
	if r.HistoryLimit, err = intEnv("RELAY_HISTORY_LIMIT", r.HistoryLimit); err != nil {
		return err
	}
	if r.BacklogLimit, err = intEnv("RELAY_BACKLOG_LIMIT", r.BacklogLimit); err != nil {
		return err
	}
	if r.ReapInterval, err = durationEnv("RELAY_REAP_INTERVAL", r.ReapInterval); err != nil {
		return err
	}
	if r.RoomRetention, err = durationEnv("RELAY_ROOM_RETENTION", r.RoomRetention); err != nil {
		return err
	}
	if r.SendBuffer, err = intEnv("RELAY_SEND_BUFFER", r.SendBuffer); err != nil {
		return err
	}
	maxBytes, err := intEnv("RELAY_MAX_MESSAGE_BYTES", int(r.MaxMessageBytes))
	if err != nil {
		return err
	}
	r.MaxMessageBytes = int64(maxBytes)
	if r.EchoSender, err = parseBoolEnv("RELAY_ECHO_SENDER", r.EchoSender); err != nil {
		return err
	}
	if r.MessageRate, err = floatEnv("RELAY_MESSAGE_RATE", r.MessageRate); err != nil {
		return err
	}
	if r.MessageBurst, err = intEnv("RELAY_MESSAGE_BURST", r.MessageBurst); err != nil {
		return err
	}
	if r.StatsInterval, err = durationEnv("RELAY_STATS_INTERVAL", r.StatsInterval); err != nil {
		return err
	}
	return nil
}

func applyRedisEnv(r *RedisConfig) error {
	r.Addr = getEnvOrDefault("REDIS_ADDR", r.Addr)
	r.ChannelPrefix = getEnvOrDefault("REDIS_CHANNEL_PREFIX", r.ChannelPrefix)
	db, err := intEnv("REDIS_DB", r.DB)
	if err != nil {
		return err
	}
	r.DB = db
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func intEnv(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func floatEnv(key string, defaultValue float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func durationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}

// splitCSV trims and filters a comma-separated list.
func splitCSV(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
