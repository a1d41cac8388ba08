package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Serial.BaudRate != 115200 {
		t.Errorf("serial.baudRate = %d, want 115200", cfg.Serial.BaudRate)
	}
	if cfg.Serial.AckTimeoutSeconds != 3 {
		t.Errorf("serial.ackTimeoutSeconds = %d, want 3", cfg.Serial.AckTimeoutSeconds)
	}
	if cfg.Serial.MaxAttempts != 3 {
		t.Errorf("serial.maxAttempts = %d, want 3", cfg.Serial.MaxAttempts)
	}
	if cfg.Payment.TimeoutSeconds != 30 {
		t.Errorf("payment.timeoutSeconds = %d, want 30", cfg.Payment.TimeoutSeconds)
	}
	if cfg.Payment.UseSimulator {
		t.Error("payment.useSimulator = true, want false by default")
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("logger.level = %q, want \"info\"", cfg.Logger.Level)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Serial.BaudRate != 115200 {
		t.Errorf("serial.baudRate = %d, want default", cfg.Serial.BaudRate)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
terminal:
  id: "STORE42"
serial:
  port: "/dev/ttyS3"
  baudRate: 9600
payment:
  useSimulator: true
  timeoutSeconds: 45
logger:
  level: "debug"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Terminal.ID != "STORE42" {
		t.Errorf("terminal.id = %q", cfg.Terminal.ID)
	}
	if cfg.Serial.Port != "/dev/ttyS3" {
		t.Errorf("serial.port = %q", cfg.Serial.Port)
	}
	if cfg.Serial.BaudRate != 9600 {
		t.Errorf("serial.baudRate = %d", cfg.Serial.BaudRate)
	}
	if !cfg.Payment.UseSimulator {
		t.Error("payment.useSimulator = false, want true")
	}
	if cfg.Payment.TimeoutSeconds != 45 {
		t.Errorf("payment.timeoutSeconds = %d", cfg.Payment.TimeoutSeconds)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("logger.level = %q", cfg.Logger.Level)
	}
	// Поля, отсутствующие в файле, берутся из значений по умолчанию
	if cfg.Serial.MaxAttempts != 3 {
		t.Errorf("serial.maxAttempts = %d, want default 3", cfg.Serial.MaxAttempts)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"terminal id too long", "terminal:\n  id: \"12345678901234567\"\n"},
		{"zero baud rate", "serial:\n  baudRate: 0\n"},
		{"negative attempts", "serial:\n  maxAttempts: -1\n"},
		{"zero payment timeout", "payment:\n  timeoutSeconds: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.body), 0o644); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Load accepted invalid config")
			}
		})
	}
}
