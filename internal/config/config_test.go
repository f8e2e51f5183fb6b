package config

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}

	if cfg.Artifacts.Source != "dir" || cfg.Artifacts.Dir != "./models" {
		t.Errorf("unexpected artifact defaults: %+v", cfg.Artifacts)
	}
	if !cfg.Models.NeuralEnabled || cfg.Models.NeuralTimeout != 2*time.Second {
		t.Errorf("unexpected model defaults: %+v", cfg.Models)
	}
	if cfg.EventBus.Type != "none" {
		t.Errorf("expected bus none, got %s", cfg.EventBus.Type)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"MERLIN_DEBUG":          "true",
		"MERLIN_LOG_FORMAT":     "text",
		"MERLIN_NEURAL":         "false",
		"MERLIN_NEURAL_TIMEOUT": "500ms",
		"MERLIN_MODEL_SOURCE":   "sqlite",
		"MERLIN_SQLITE_PATH":    "/tmp/m.db",
		"MERLIN_PORT":           "9090",
		"MERLIN_RATE_LIMIT":     "12.5",
		"MERLIN_BUS":            "nats",
		"MERLIN_NATS_URL":       "nats://localhost:4222",
	}))
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}

	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("unexpected logging: %+v", cfg.Logging)
	}
	if cfg.Models.NeuralEnabled || cfg.Models.NeuralTimeout != 500*time.Millisecond {
		t.Errorf("unexpected models: %+v", cfg.Models)
	}
	if cfg.Artifacts.Source != "sqlite" || cfg.Artifacts.SQLitePath != "/tmp/m.db" {
		t.Errorf("unexpected artifacts: %+v", cfg.Artifacts)
	}
	if cfg.Server.Port != 9090 || cfg.Server.RateLimit != 12.5 {
		t.Errorf("unexpected server: %+v", cfg.Server)
	}
	if cfg.EventBus.Type != "nats" || cfg.EventBus.NATSUrl != "nats://localhost:4222" {
		t.Errorf("unexpected bus: %+v", cfg.EventBus)
	}
}

func TestFromEnvErrors(t *testing.T) {
	tests := map[string]map[string]string{
		"BadBool":     {"MERLIN_NEURAL": "maybe"},
		"BadInt":      {"MERLIN_PORT": "eighty"},
		"BadDuration": {"MERLIN_NEURAL_TIMEOUT": "2"},
		"BadSource":   {"MERLIN_MODEL_SOURCE": "s3"},
		"BadBus":      {"MERLIN_BUS": "kafka"},
		"BadFormat":   {"MERLIN_LOG_FORMAT": "xml"},
		"ZeroTimeout": {"MERLIN_NEURAL_TIMEOUT": "0s"},
	}

	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := FromEnv(env(vars)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg, _ := FromEnv(env(nil))

	logger := NewLogger(cfg.Logging, &buf)
	logger.Debug("hidden")
	logger.Info("shown", "model", "rf")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug records must be filtered at info level")
	}
	if !strings.Contains(out, `"model":"rf"`) {
		t.Errorf("expected JSON output, got %s", out)
	}
}
