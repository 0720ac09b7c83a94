package geminiwebapi

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggingConfig controls log level and optional rotating file output.
type LoggingConfig struct {
	// Level is a logrus level name; empty means info.
	Level string `yaml:"level"`

	// File is the log file path. Empty logs to stdout.
	File string `yaml:"file"`

	// MaxSizeMB rotates the file once it grows past this size.
	MaxSizeMB int `yaml:"max-size-mb"`

	// MaxBackups caps the number of rotated files kept.
	MaxBackups int `yaml:"max-backups"`
}

var (
	setupOnce sync.Once
	writerMu  sync.Mutex
	logWriter *lumberjack.Logger
)

// LogFormatter defines a custom log format for logrus.
// This formatter adds timestamp, level, and source location to each log entry.
type LogFormatter struct{}

// Format renders a single log entry with custom formatting.
func (m *LogFormatter) Format(entry *log.Entry) ([]byte, error) {
	var buffer *bytes.Buffer
	if entry.Buffer != nil {
		buffer = entry.Buffer
	} else {
		buffer = &bytes.Buffer{}
	}

	timestamp := entry.Time.Format("2006-01-02 15:04:05")
	message := strings.TrimRight(entry.Message, "\r\n")
	if entry.Caller != nil {
		buffer.WriteString(fmt.Sprintf("[%s] [%s] [%s:%d] %s\n", timestamp, entry.Level, filepath.Base(entry.Caller.File), entry.Caller.Line, message))
	} else {
		buffer.WriteString(fmt.Sprintf("[%s] [%s] %s\n", timestamp, entry.Level, message))
	}

	return buffer.Bytes(), nil
}

// SetupLogger configures the shared logrus instance from the given config.
// Formatter installation happens only once; level and output follow the
// latest call so config reloads take effect.
func SetupLogger(cfg LoggingConfig) error {
	setupOnce.Do(func() {
		log.SetOutput(os.Stdout)
		log.SetReportCaller(true)
		log.SetFormatter(&LogFormatter{})
		log.RegisterExitHandler(closeLogOutput)
	})

	level := log.InfoLevel
	if cfg.Level != "" {
		parsed, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("logging: invalid level %q: %w", cfg.Level, err)
		}
		level = parsed
	}
	log.SetLevel(level)

	writerMu.Lock()
	defer writerMu.Unlock()

	if cfg.File == "" {
		if logWriter != nil {
			_ = logWriter.Close()
			logWriter = nil
		}
		log.SetOutput(os.Stdout)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return fmt.Errorf("logging: failed to create log directory: %w", err)
	}
	if logWriter != nil {
		_ = logWriter.Close()
	}
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	logWriter = &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
	}
	log.SetOutput(logWriter)
	return nil
}

func closeLogOutput() {
	writerMu.Lock()
	defer writerMu.Unlock()

	if logWriter != nil {
		_ = logWriter.Close()
		logWriter = nil
	}
}
