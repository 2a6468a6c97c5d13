//go:build debug
// +build debug

package log

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/kr/pretty"
	"github.com/sirupsen/logrus"
)

var (
	Log = logrus.New()
)

func init() {
	Log.SetOutput(os.Stderr)
	Log.SetLevel(logrus.DebugLevel)
	Log.SetReportCaller(true)
	Log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "01-02 15:04:05",
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			_, file, _, _ := runtime.Caller(0)
			prefix := filepath.Dir(file) + "/"
			function := strings.TrimPrefix(f.Function, prefix) + "()"
			fileLine := strings.TrimPrefix(f.File, prefix) + ":" + strconv.Itoa(f.Line)
			return function, fileLine
		},
	})
}

// Config represents the logger configuration.
type Config struct {
	// Level is the minimum log level.
	Level string
	// Format is the log format (text or json).
	Format string
	// Output is the log output file path. If empty, use stderr.
	Output string
	// Debug enables debug mode.
	Debug bool
}

// Init is mostly a no-op in debug builds: level and caller reporting are
// forced on, only the output file is honored.
func Init(config *Config) error {
	if config == nil || config.Output == "" {
		return nil
	}

	file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	Log.SetOutput(file)
	return nil
}

func WithField(key string, value interface{}) *logrus.Entry {
	return Log.WithField(key, value)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log.WithFields(fields)
}

func WithError(err error) *logrus.Entry {
	return Log.WithError(err)
}

func Debug(args ...interface{}) {
	Log.Debug(args...)
}

func Debugf(format string, args ...interface{}) {
	Log.Debugf(format, args...)
}

func Info(args ...interface{}) {
	Log.Info(args...)
}

func Infof(format string, args ...interface{}) {
	Log.Infof(format, args...)
}

func Warn(args ...interface{}) {
	Log.Warn(args...)
}

func Warnf(format string, args ...interface{}) {
	Log.Warnf(format, args...)
}

func Error(args ...interface{}) {
	Log.Error(args...)
}

func Errorf(format string, args ...interface{}) {
	Log.Errorf(format, args...)
}

func Fatal(args ...interface{}) {
	Log.Fatal(args...)
}

func Fatalf(format string, args ...interface{}) {
	Log.Fatalf(format, args...)
}

// Pretty renders each argument with kr/pretty before logging. pretty can
// panic on exotic values, so recover and fall back to plain %v.
func Pretty(format string, args ...interface{}) {
	rendered := make([]interface{}, len(args))
	for i, arg := range args {
		rendered[i] = safePrettyFormat(arg)
	}
	Log.Debugf(format, rendered...)
}

func safePrettyFormat(arg interface{}) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = fmt.Sprintf("%v", arg)
		}
	}()
	return pretty.Sprint(arg)
}
