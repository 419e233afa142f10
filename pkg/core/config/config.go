package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds engine settings loaded from the environment.
type Config struct {
	// BackendBaseURL is the AI backend root (http(s)); the voice channel
	// derives its ws(s) URL from it.
	BackendBaseURL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Session provisioning.
	ProvisionTimeout time.Duration

	// Generation streaming.
	StreamIdleTimeout time.Duration

	// Voice channel.
	VoiceConnectTimeout time.Duration
	VoiceWriteTimeout   time.Duration
	DefaultVoiceID      string

	// Outbound audio capture chunk size in bytes.
	AudioFrameBytes int
}

// LoadFromEnv builds a Config from TUTOR_* environment variables with
// defaults applied, then validates it.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		BackendBaseURL:      envOr("TUTOR_BACKEND_URL", "http://localhost:8080"),
		APIKey:              strings.TrimSpace(os.Getenv("TUTOR_API_KEY")),
		ProvisionTimeout:    envDurationOr("TUTOR_PROVISION_TIMEOUT", 10*time.Second),
		StreamIdleTimeout:   envDurationOr("TUTOR_STREAM_IDLE_TIMEOUT", 60*time.Second),
		VoiceConnectTimeout: envDurationOr("TUTOR_VOICE_CONNECT_TIMEOUT", 15*time.Second),
		VoiceWriteTimeout:   envDurationOr("TUTOR_VOICE_WRITE_TIMEOUT", 5*time.Second),
		DefaultVoiceID:      envOr("TUTOR_VOICE_ID", "classroom-default"),
		AudioFrameBytes:     envIntOr("TUTOR_AUDIO_FRAME_BYTES", 4096),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	base := strings.TrimSpace(c.BackendBaseURL)
	if base == "" {
		return fmt.Errorf("TUTOR_BACKEND_URL must not be empty")
	}
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return fmt.Errorf("TUTOR_BACKEND_URL must be a valid absolute URL")
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("TUTOR_BACKEND_URL must use http(s)")
	}
	if c.ProvisionTimeout <= 0 {
		return fmt.Errorf("TUTOR_PROVISION_TIMEOUT must be > 0")
	}
	if c.StreamIdleTimeout <= 0 {
		return fmt.Errorf("TUTOR_STREAM_IDLE_TIMEOUT must be > 0")
	}
	if c.VoiceConnectTimeout <= 0 {
		return fmt.Errorf("TUTOR_VOICE_CONNECT_TIMEOUT must be > 0")
	}
	if c.VoiceWriteTimeout <= 0 {
		return fmt.Errorf("TUTOR_VOICE_WRITE_TIMEOUT must be > 0")
	}
	if c.AudioFrameBytes <= 0 {
		return fmt.Errorf("TUTOR_AUDIO_FRAME_BYTES must be > 0")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	// Accept bare integers as milliseconds for _MS-suffixed style values.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
