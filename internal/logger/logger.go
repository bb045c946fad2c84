package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var Logger *logrus.Logger

// DefaultLogDir is used when no directory is configured
const DefaultLogDir = "logs"

// InitLogger sets up the global logger. Errors, info and debug lines go to
// separate rotated files under logDir and everything is echoed to stdout.
func InitLogger(logLevel, logDir string) error {
	Logger = logrus.New()

	if logDir == "" {
		logDir = DefaultLogDir
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return err
	}

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	Logger.SetLevel(level)

	Logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
	})

	Logger.AddHook(&FileHook{
		ErrorWriter: rotated(filepath.Join(logDir, "error.log")),
		InfoWriter:  rotated(filepath.Join(logDir, "info.log")),
		DebugWriter: rotated(filepath.Join(logDir, "debug.log")),
	})

	Logger.SetOutput(os.Stdout)

	return nil
}

// InitDiscard installs a logger that drops every line. Used by tests and
// by code paths that run before configuration is loaded.
func InitDiscard() {
	Logger = logrus.New()
	Logger.SetOutput(io.Discard)
}

func rotated(path string) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
}

// FileHook routes entries to a writer chosen by level
type FileHook struct {
	ErrorWriter io.Writer
	InfoWriter  io.Writer
	DebugWriter io.Writer
}

func (hook *FileHook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}

	var w io.Writer
	switch entry.Level {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		w = hook.ErrorWriter
	case logrus.WarnLevel, logrus.InfoLevel:
		w = hook.InfoWriter
	case logrus.DebugLevel, logrus.TraceLevel:
		w = hook.DebugWriter
	}
	if w == nil {
		return nil
	}

	_, err = w.Write([]byte(line))
	return err
}

func (hook *FileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func Error(msg string, fields map[string]interface{}) {
	if Logger != nil {
		Logger.WithFields(fields).Error(msg)
	}
}

func Info(msg string, fields map[string]interface{}) {
	if Logger != nil {
		Logger.WithFields(fields).Info(msg)
	}
}

func Debug(msg string, fields map[string]interface{}) {
	if Logger != nil {
		Logger.WithFields(fields).Debug(msg)
	}
}

func Warn(msg string, fields map[string]interface{}) {
	if Logger != nil {
		Logger.WithFields(fields).Warn(msg)
	}
}

func ErrorMsg(msg string) {
	Error(msg, nil)
}

func InfoMsg(msg string) {
	Info(msg, nil)
}

func DebugMsg(msg string) {
	Debug(msg, nil)
}

func WarnMsg(msg string) {
	Warn(msg, nil)
}
