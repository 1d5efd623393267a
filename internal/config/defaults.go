package config

import "time"

const (
	defaultPort     = 8080
	defaultLogLevel = "info"

	// PingPeriod is derived from PongWait and must stay positive.
	minPongWait = time.Second
)

var defaultWS = WS{
	SendBuffer:      64,
	MaxMessageBytes: 64 << 10,
	WriteTimeout:    5 * time.Second,
	PongWait:        60 * time.Second,
	MessageRate:     20,
	MessageBurst:    40,
}

var defaultRateLimit = RateLimit{
	Enabled:    true,
	Rate:       5,
	Burst:      20,
	TTL:        10 * time.Minute,
	MaxBuckets: 100_000,
}

var defaultPprof = Pprof{
	Enabled: false,
	Addr:    "127.0.0.1:6060",
}

var defaultKafka = Kafka{
	Topic: "courier-presence",
}

// DefaultPort returns the default HTTP port.
func DefaultPort() int { return defaultPort }

// DefaultWS returns the default WebSocket settings.
func DefaultWS() WS { return defaultWS }

// DefaultRateLimit returns the default upgrade rate-limit settings.
func DefaultRateLimit() RateLimit { return defaultRateLimit }

// DefaultPprof returns the default pprof settings.
func DefaultPprof() Pprof { return defaultPprof }

// DefaultKafka returns the default Kafka settings. Brokers are empty, which disables publishing.
func DefaultKafka() Kafka { return defaultKafka }
