package model

import "time"

// ================ Config ================
type GenerationModelConfig struct {
	Model       string  `envconfig:"GENERATION_MODEL" default:"gemini-2.5-flash"`
	Temperature float32 `envconfig:"GENERATION_TEMPERATURE" default:"0.7"`
}

type ChatModelConfig struct {
	Model       string  `envconfig:"CHAT_MODEL" default:"gemini-2.5-flash"`
	Temperature float32 `envconfig:"CHAT_TEMPERATURE" default:"0.8"`
	MaxTokens   int     `envconfig:"CHAT_MAX_TOKENS" default:"2048"`
}

type BreakerConfig struct {
	MaxFailures uint32        `envconfig:"BREAKER_MAX_FAILURES" default:"5"`
	Timeout     time.Duration `envconfig:"BREAKER_TIMEOUT" default:"30s"`
	Interval    time.Duration `envconfig:"BREAKER_INTERVAL" default:"60s"`
}

type CreditsConfig struct {
	Initial int `envconfig:"CREDITS_INITIAL" default:"20"`
}

type ProcessingConfig struct {
	Interval time.Duration `envconfig:"PROCESSING_INTERVAL" default:"1200ms"`
}

type GatewayConfig struct {
	Addr           string   `envconfig:"GATEWAY_ADDR" default:":8080"`
	RatePerMin     int      `envconfig:"GATEWAY_RATE_PER_MIN" default:"30"`
	Burst          int      `envconfig:"GATEWAY_BURST" default:"5"`
	AllowedOrigins []string `envconfig:"GATEWAY_ALLOWED_ORIGINS" default:"localhost,localhost:*,127.0.0.1,127.0.0.1:*"`
	ReadLimit      int64    `envconfig:"GATEWAY_READ_LIMIT" default:"1048576"`
}

type TranscriptConfig struct {
	TTL string `envconfig:"TRANSCRIPT_TTL" default:"24h"`
}
