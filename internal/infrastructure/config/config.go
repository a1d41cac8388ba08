package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

// Config — конфигурация приложения.
type Config struct {
	Terminal TerminalConfig `mapstructure:"terminal"`
	Serial   SerialConfig   `mapstructure:"serial"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// TerminalConfig — параметры платёжного терминала.
type TerminalConfig struct {
	ID string `mapstructure:"id"` // идентификатор, до 16 символов
}

// SerialConfig — параметры последовательного порта.
type SerialConfig struct {
	Port                   string `mapstructure:"port"`
	BaudRate               int    `mapstructure:"baudRate"`
	AckTimeoutSeconds      int    `mapstructure:"ackTimeoutSeconds"`
	ResponseTimeoutSeconds int    `mapstructure:"responseTimeoutSeconds"`
	MaxAttempts            int    `mapstructure:"maxAttempts"`
}

// PaymentConfig — параметры платёжного фасада.
type PaymentConfig struct {
	TimeoutSeconds int  `mapstructure:"timeoutSeconds"` // ожидание карты и одобрения
	UseSimulator   bool `mapstructure:"useSimulator"`

	// Задержки симулятора, используются только при useSimulator: true
	SimulatorCardDelayMs     int `mapstructure:"simulatorCardDelayMs"`
	SimulatorApprovalDelayMs int `mapstructure:"simulatorApprovalDelayMs"`
}

// LoggerConfig — конфигурация журналирования.
type LoggerConfig struct {
	Level         string `mapstructure:"level"`
	FilePath      string `mapstructure:"filePath"`
	MaxSizeMB     int    `mapstructure:"maxSizeMB"`
	MaxBackups    int    `mapstructure:"maxBackups"`
	MaxAgeDays    int    `mapstructure:"maxAgeDays"`
	EnableConsole bool   `mapstructure:"enableConsole"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("terminal.id", "KIOSK001")
	v.SetDefault("serial.port", "/dev/ttyUSB0")
	v.SetDefault("serial.baudRate", 115200)
	v.SetDefault("serial.ackTimeoutSeconds", 3)
	v.SetDefault("serial.responseTimeoutSeconds", 30)
	v.SetDefault("serial.maxAttempts", 3)
	v.SetDefault("payment.timeoutSeconds", 30)
	v.SetDefault("payment.useSimulator", false)
	v.SetDefault("payment.simulatorCardDelayMs", 1500)
	v.SetDefault("payment.simulatorApprovalDelayMs", 800)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.filePath", "")
	v.SetDefault("logger.maxSizeMB", 10)
	v.SetDefault("logger.maxBackups", 5)
	v.SetDefault("logger.maxAgeDays", 30)
	v.SetDefault("logger.enableConsole", true)
}

// Load читает конфигурацию из YAML-файла и переменных окружения
// с префиксом TLTERM. Пустой путь или отсутствующий файл не считаются
// ошибкой: применяются значения по умолчанию.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("TLTERM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Terminal.ID) > 16 {
		return fmt.Errorf("terminal.id exceeds 16 characters: %q", c.Terminal.ID)
	}
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial.baudRate must be positive, got %d", c.Serial.BaudRate)
	}
	if c.Serial.MaxAttempts <= 0 {
		return fmt.Errorf("serial.maxAttempts must be positive, got %d", c.Serial.MaxAttempts)
	}
	if c.Payment.TimeoutSeconds <= 0 {
		return fmt.Errorf("payment.timeoutSeconds must be positive, got %d", c.Payment.TimeoutSeconds)
	}
	return nil
}
