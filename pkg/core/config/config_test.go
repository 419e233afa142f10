package config

import (
	"strings"
	"testing"
	"time"
)

var engineEnvKeys = []string{
	"TUTOR_BACKEND_URL",
	"TUTOR_API_KEY",
	"TUTOR_PROVISION_TIMEOUT",
	"TUTOR_STREAM_IDLE_TIMEOUT",
	"TUTOR_VOICE_CONNECT_TIMEOUT",
	"TUTOR_VOICE_WRITE_TIMEOUT",
	"TUTOR_VOICE_ID",
	"TUTOR_AUDIO_FRAME_BYTES",
}

func clearEngineEnv(t *testing.T) {
	t.Helper()
	for _, key := range engineEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEngineEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error: %v", err)
	}
	if cfg.BackendBaseURL != "http://localhost:8080" {
		t.Fatalf("BackendBaseURL = %q", cfg.BackendBaseURL)
	}
	if cfg.ProvisionTimeout != 10*time.Second {
		t.Fatalf("ProvisionTimeout = %v", cfg.ProvisionTimeout)
	}
	if cfg.VoiceConnectTimeout != 15*time.Second {
		t.Fatalf("VoiceConnectTimeout = %v", cfg.VoiceConnectTimeout)
	}
	if cfg.AudioFrameBytes != 4096 {
		t.Fatalf("AudioFrameBytes = %d", cfg.AudioFrameBytes)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEngineEnv(t)
	t.Setenv("TUTOR_BACKEND_URL", "https://tutor.example.com")
	t.Setenv("TUTOR_PROVISION_TIMEOUT", "2s")
	t.Setenv("TUTOR_VOICE_CONNECT_TIMEOUT", "2500")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error: %v", err)
	}
	if cfg.BackendBaseURL != "https://tutor.example.com" {
		t.Fatalf("BackendBaseURL = %q", cfg.BackendBaseURL)
	}
	if cfg.ProvisionTimeout != 2*time.Second {
		t.Fatalf("ProvisionTimeout = %v", cfg.ProvisionTimeout)
	}
	if cfg.VoiceConnectTimeout != 2500*time.Millisecond {
		t.Fatalf("bare integers should parse as milliseconds, got %v", cfg.VoiceConnectTimeout)
	}
}

func TestLoadFromEnv_RejectsBadBaseURL(t *testing.T) {
	clearEngineEnv(t)
	t.Setenv("TUTOR_BACKEND_URL", "ftp://tutor.example.com")

	if _, err := LoadFromEnv(); err == nil || !strings.Contains(err.Error(), "TUTOR_BACKEND_URL") {
		t.Fatalf("expected base URL scheme error, got %v", err)
	}
}
