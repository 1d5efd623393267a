package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Config stores service settings.
type Config struct {
	Port      int
	LogLevel  string
	WS        WS
	RateLimit RateLimit
	Pprof     Pprof
	Kafka     Kafka
}

// WS stores per-connection WebSocket settings.
type WS struct {
	SendBuffer      int
	MaxMessageBytes int64
	WriteTimeout    time.Duration
	PongWait        time.Duration
	MessageRate     float64 // inbound frames per second per connection
	MessageBurst    int
}

// PingPeriod is how often the server pings; it must stay below PongWait.
func (w WS) PingPeriod() time.Duration {
	return w.PongWait * 9 / 10
}

// RateLimit stores per-IP limits for the upgrade endpoint.
type RateLimit struct {
	Enabled    bool
	Rate       float64
	Burst      int
	TTL        time.Duration
	MaxBuckets int
	// TrustProxy keys clients on X-Forwarded-For / X-Real-IP. Enable only
	// behind a proxy that overwrites those headers.
	TrustProxy bool
}

// Pprof stores debug server settings.
type Pprof struct {
	Enabled bool
	Addr    string
	User    string
	Pass    string
}

// Kafka stores presence event publishing settings.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Enabled reports whether presence events should be published.
func (k Kafka) Enabled() bool {
	return len(k.Brokers) > 0 && strings.TrimSpace(k.Topic) != ""
}

// Load reads configuration in order: .env (if present) → environment → flags.
func Load() (*Config, error) {
	return Parse(os.Args[1:])
}

// Parse is Load with explicit command-line arguments.
func Parse(args []string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: .env not loaded: %v", err)
	}

	cfg, err := fromEnv()
	if err != nil {
		return nil, err
	}

	fs := pflag.NewFlagSet("service-dispatch", pflag.ContinueOnError)
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "port to listen on")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	fs.BoolVar(&cfg.Pprof.Enabled, "pprof", cfg.Pprof.Enabled, "enable pprof server")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() (*Config, error) {
	cfg := &Config{
		Port:      defaultPort,
		LogLevel:  defaultLogLevel,
		WS:        defaultWS,
		RateLimit: defaultRateLimit,
		Pprof:     defaultPprof,
		Kafka:     defaultKafka,
	}

	var err error
	if cfg.Port, err = envInt("PORT", cfg.Port); err != nil {
		return nil, err
	}
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)

	if cfg.WS.SendBuffer, err = envInt("WS_SEND_BUFFER", cfg.WS.SendBuffer); err != nil {
		return nil, err
	}
	maxBytes, err := envInt("WS_MAX_MESSAGE_BYTES", int(cfg.WS.MaxMessageBytes))
	if err != nil {
		return nil, err
	}
	cfg.WS.MaxMessageBytes = int64(maxBytes)
	if cfg.WS.WriteTimeout, err = envDuration("WS_WRITE_TIMEOUT", cfg.WS.WriteTimeout); err != nil {
		return nil, err
	}
	if cfg.WS.PongWait, err = envDuration("WS_PONG_WAIT", cfg.WS.PongWait); err != nil {
		return nil, err
	}
	if cfg.WS.MessageRate, err = envFloat("WS_MESSAGE_RATE", cfg.WS.MessageRate); err != nil {
		return nil, err
	}
	if cfg.WS.MessageBurst, err = envInt("WS_MESSAGE_BURST", cfg.WS.MessageBurst); err != nil {
		return nil, err
	}

	if cfg.RateLimit.Enabled, err = envBool("RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled); err != nil {
		return nil, err
	}
	if cfg.RateLimit.Rate, err = envFloat("RATE_LIMIT_RATE", cfg.RateLimit.Rate); err != nil {
		return nil, err
	}
	if cfg.RateLimit.Burst, err = envInt("RATE_LIMIT_BURST", cfg.RateLimit.Burst); err != nil {
		return nil, err
	}
	if cfg.RateLimit.TTL, err = envDuration("RATE_LIMIT_TTL", cfg.RateLimit.TTL); err != nil {
		return nil, err
	}
	if cfg.RateLimit.MaxBuckets, err = envInt("RATE_LIMIT_MAX_BUCKETS", cfg.RateLimit.MaxBuckets); err != nil {
		return nil, err
	}
	if cfg.RateLimit.TrustProxy, err = envBool("RATE_LIMIT_TRUST_PROXY", cfg.RateLimit.TrustProxy); err != nil {
		return nil, err
	}

	if cfg.Pprof.Enabled, err = envBool("PPROF_ENABLED", cfg.Pprof.Enabled); err != nil {
		return nil, err
	}
	cfg.Pprof.Addr = envString("PPROF_ADDR", cfg.Pprof.Addr)
	cfg.Pprof.User = envString("PPROF_USER", cfg.Pprof.User)
	cfg.Pprof.Pass = envString("PPROF_PASS", cfg.Pprof.Pass)

	cfg.Kafka.Brokers = envList("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Kafka.Topic = envString("KAFKA_PRESENCE_TOPIC", cfg.Kafka.Topic)

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.WS.SendBuffer <= 0 {
		return fmt.Errorf("invalid WS_SEND_BUFFER: %d", c.WS.SendBuffer)
	}
	if c.WS.MaxMessageBytes <= 0 {
		return fmt.Errorf("invalid WS_MAX_MESSAGE_BYTES: %d", c.WS.MaxMessageBytes)
	}
	if c.WS.WriteTimeout <= 0 {
		return fmt.Errorf("invalid WS_WRITE_TIMEOUT: %s", c.WS.WriteTimeout)
	}
	if c.WS.PongWait < minPongWait {
		return fmt.Errorf("invalid WS_PONG_WAIT: %s, must be at least %s", c.WS.PongWait, minPongWait)
	}
	if c.WS.MessageRate <= 0 || c.WS.MessageBurst <= 0 {
		return fmt.Errorf("ws message rate and burst must be positive")
	}
	return nil
}

// envString returns the trimmed variable or def when unset or blank.
func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func envBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// envList splits a comma separated variable, dropping empty items.
func envList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
