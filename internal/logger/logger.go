package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger writes structured debug logs to a file, or nowhere
type Logger struct {
	*logrus.Logger
	file *os.File
}

// Creates a new logger writing to path at the given level.
// An empty path gives a disabled logger.
func New(path, level string) (*Logger, error) {
	if path == "" {
		return Noop(), nil
	}

	lvl := logrus.InfoLevel
	if level != "" {
		var err error
		lvl, err = logrus.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	l := logrus.New()
	l.SetOutput(file)
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})

	return &Logger{Logger: l, file: file}, nil
}

// returns a no-op logger
func Noop() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return &Logger{Logger: l}
}

// Closes the log file
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
