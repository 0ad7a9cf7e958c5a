package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trustnet/trustnet-cache/internal/config"
)

// RequestIDField is the log field carrying the admin API request id
const RequestIDField = "request_id"

// Logger wraps logrus with the component helpers used across the cache packages
type Logger struct {
	*logrus.Logger
	config *config.LoggingConfig
}

// NewLogger creates a new logger instance based on configuration
func NewLogger(cfg *config.LoggingConfig) (*Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}
	logger.SetLevel(level)

	if err := setFormatter(logger, cfg); err != nil {
		return nil, fmt.Errorf("failed to set formatter: %w", err)
	}

	if err := setOutput(logger, cfg); err != nil {
		return nil, fmt.Errorf("failed to set output: %w", err)
	}

	if len(cfg.Fields) > 0 {
		fields := make(logrus.Fields, len(cfg.Fields))
		for k, v := range cfg.Fields {
			fields[k] = v
		}
		logger.AddHook(&defaultFieldsHook{fields: fields})
	}

	return &Logger{
		Logger: logger,
		config: cfg,
	}, nil
}

// NewNop returns a logger that discards everything. Tests and library
// callers without a configured logger use it.
func NewNop() *Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &Logger{Logger: logger, config: &config.LoggingConfig{Level: "panic"}}
}

// setFormatter configures the log formatter
func setFormatter(logger *logrus.Logger, cfg *config.LoggingConfig) error {
	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
				logrus.FieldKeyFunc:  "function",
			},
		})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
			DisableColors:   os.Getenv("TERM") == "",
		})
	default:
		return fmt.Errorf("unsupported log format: %s", cfg.Format)
	}

	return nil
}

// setOutput configures log output destinations
func setOutput(logger *logrus.Logger, cfg *config.LoggingConfig) error {
	var writers []io.Writer

	for _, output := range cfg.Output {
		switch strings.ToLower(output) {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		case "file":
			fileWriter, err := createFileWriter(cfg.File)
			if err != nil {
				return fmt.Errorf("failed to create file writer: %w", err)
			}
			writers = append(writers, fileWriter)
		default:
			return fmt.Errorf("unsupported output destination: %s", output)
		}
	}

	switch len(writers) {
	case 0:
		logger.SetOutput(os.Stdout)
	case 1:
		logger.SetOutput(writers[0])
	default:
		logger.SetOutput(io.MultiWriter(writers...))
	}

	return nil
}

func createFileWriter(path string) (io.Writer, error) {
	if path == "" {
		return nil, fmt.Errorf("file output requires logging.file")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return file, nil
}

// WithComponent adds component name to log context
func (l *Logger) WithComponent(component string) *logrus.Entry {
	return l.WithField("component", component)
}

// WithRequestID adds request ID to log context
func WithRequestID(logger logrus.FieldLogger, requestID string) *logrus.Entry {
	return logger.WithField(RequestIDField, requestID)
}

// defaultFieldsHook stamps the configured static fields on every entry
type defaultFieldsHook struct {
	fields logrus.Fields
}

func (h *defaultFieldsHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *defaultFieldsHook) Fire(entry *logrus.Entry) error {
	for k, v := range h.fields {
		if _, exists := entry.Data[k]; !exists {
			entry.Data[k] = v
		}
	}
	return nil
}
