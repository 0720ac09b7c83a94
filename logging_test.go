package geminiwebapi

import (
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

func TestLogFormatter(t *testing.T) {
	f := &LogFormatter{}
	entry := &log.Entry{
		Time:    time.Date(2025, 8, 25, 10, 30, 0, 0, time.UTC),
		Level:   log.InfoLevel,
		Message: "hello world\r\n",
	}
	out, err := f.Format(entry)
	if err != nil {
		t.Fatal(err)
	}
	line := string(out)
	if !strings.HasPrefix(line, "[2025-08-25 10:30:00] [info] ") {
		t.Errorf("line = %q", line)
	}
	if !strings.HasSuffix(line, "hello world\n") {
		t.Errorf("trailing newlines should be normalized: %q", line)
	}
}

func TestSetupLoggerRejectsBadLevel(t *testing.T) {
	if err := SetupLogger(LoggingConfig{Level: "chatty"}); err == nil {
		t.Error("want error for unknown level")
	}
}
