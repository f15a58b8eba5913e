package logger

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Fields carries structured log context.
type Fields map[string]interface{}

// Logger is the structured logging interface injected into services.
type Logger interface {
	Debug(message string, fields Fields)
	Info(message string, fields Fields)
	Warn(message string, fields Fields)
	Error(message string, err error, fields Fields)
	WithFields(fields Fields) Logger
}

// Config controls the logrus backend.
type Config struct {
	Level       string
	Format      string // json or text
	ServiceName string
}

type logrusLogger struct {
	entry *logrus.Entry
}

// New builds a logrus-backed structured logger writing to stdout.
func New(cfg Config) Logger {
	base := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	if cfg.Format == "text" {
		base.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339Nano,
			FullTimestamp:   true,
		})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	}
	base.SetOutput(os.Stdout)

	return &logrusLogger{entry: base.WithField("service", cfg.ServiceName)}
}

// NewNop returns a logger that discards everything; used in tests.
func NewNop() Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &logrusLogger{entry: logrus.NewEntry(base)}
}

func (l *logrusLogger) Debug(message string, fields Fields) {
	l.entry.WithFields(logrus.Fields(fields)).Debug(message)
}

func (l *logrusLogger) Info(message string, fields Fields) {
	l.entry.WithFields(logrus.Fields(fields)).Info(message)
}

func (l *logrusLogger) Warn(message string, fields Fields) {
	l.entry.WithFields(logrus.Fields(fields)).Warn(message)
}

func (l *logrusLogger) Error(message string, err error, fields Fields) {
	entry := l.entry.WithFields(logrus.Fields(fields))
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(message)
}

func (l *logrusLogger) WithFields(fields Fields) Logger {
	return &logrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}
