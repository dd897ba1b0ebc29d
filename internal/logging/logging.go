package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/menta2k/crop-studio/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the developer-facing logger. With a log file configured the
// output goes to a rotating file instead of w. The returned closer releases
// that file and must be called once logging is done.
func New(cfg config.LogConfig, w io.Writer) (*logrus.Logger, io.Closer, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10, // MB
			MaxBackups: 2,
			MaxAge:     28, // days
			Compress:   true,
		}
		logger.SetOutput(file)
		logger.SetFormatter(&logrus.JSONFormatter{})
		return logger, file, nil
	}

	return logger, nopCloser{}, nil
}
