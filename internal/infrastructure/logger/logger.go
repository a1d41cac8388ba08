package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"tlterm/internal/infrastructure/config"
)

// Init собирает журнал приложения по конфигурации: уровень, консоль
// и файл с ротацией. Пустой filePath отключает файловый вывод.
func Init(cfg *config.LoggerConfig) (*logrus.Logger, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
		log.Warnf("unknown log level %q, falling back to info", cfg.Level)
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	var outputs []io.Writer
	if cfg.EnableConsole {
		outputs = append(outputs, os.Stdout)
	}
	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, err
		}
		outputs = append(outputs, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}
	switch len(outputs) {
	case 0:
		log.SetOutput(io.Discard)
	case 1:
		log.SetOutput(outputs[0])
	default:
		log.SetOutput(io.MultiWriter(outputs...))
	}
	return log, nil
}

// Protocol адаптирует журнал приложения к сигнатуре журнала
// протокольного уровня. Обмен с терминалом пишется уровнем debug:
// в штатной работе он избыточен, при разборе инцидентов незаменим.
func Protocol(log *logrus.Logger) func(msg string) {
	l := log.WithField("component", "tl3600")
	return func(msg string) {
		l.Debug(msg)
	}
}
